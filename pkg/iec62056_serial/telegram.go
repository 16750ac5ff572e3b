package iec62056_serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrIncompleteTelegram = errors.New("incomplete telegram")

// ReadTelegram frames the data block the meter sends after a handshake:
// CR-LF lines up to the '!' terminator. Blank lines are dropped and a
// mid-telegram line starting with '/' is treated as a re-echoed
// identification some firmware emits, not as an error. Content is never
// interpreted here.
func ReadTelegram(conn SerialConnection) ([]string, error) {
	var lines []string
	for {
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, fmt.Errorf("%w: %v", ErrIncompleteTelegram, err)
			}
			return nil, fmt.Errorf("read telegram line: %w", err)
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "!") {
			return lines, nil
		}
		if strings.HasPrefix(trimmed, "/") {
			continue
		}
		lines = append(lines, trimmed)
	}
}
