package iec62056_serial

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrHandshakeRejected = errors.New("handshake rejected: unexpected device")
	ErrBaudChangeFailed  = errors.New("baud rate change failed")
)

// mode C wake-up sequence: "/?!" CR LF
var initSequence = []byte{0x2F, 0x3F, 0x21, 0x0D, 0x0A}

const ackByte = 0x06

type HandshakeResult struct {
	// Identification line without the leading '/'
	Identification string
	// Active baud rate after the handshake
	BaudRate int
}

// BaudRateForChar maps the identification baud character to a transfer
// rate. Characters outside '0'..'6' advertise no rate this engine knows.
func BaudRateForChar(c byte) (int, bool) {
	switch c {
	case '0':
		return 300, true
	case '1':
		return 600, true
	case '2':
		return 1200, true
	case '3':
		return 2400, true
	case '4':
		return 4800, true
	case '5':
		return 9600, true
	case '6':
		return 19200, true
	default:
		return 0, false
	}
}

// ParseBaudRateChar extracts the 4th character of the identification line
// once the leading '/' is stripped: "/ISk5MT174" advertises '5'.
func ParseBaudRateChar(identification string) (byte, bool) {
	id := strings.TrimPrefix(strings.TrimSpace(identification), "/")
	if len(id) < 4 {
		return 0, false
	}
	return id[3], true
}

// PerformHandshake runs one wake-up exchange on an open connection: send
// the init sequence, wait out the transmitter power-up window, read the
// identification line, then optionally step the link up to the advertised
// baud rate. currentBaud is the rate the link runs at right now;
// negotiation only ever steps up.
func PerformHandshake(conn SerialConnection, config ProtocolConfig, currentBaud int) (*HandshakeResult, error) {
	if err := conn.Write(initSequence); err != nil {
		return nil, fmt.Errorf("send init sequence: %w", err)
	}
	// the meter needs this window to power up its transmitter; reading
	// earlier yields garbled bytes, not an error
	time.Sleep(config.SettleDelay)

	line, err := conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read identification: %w", err)
	}
	if !strings.Contains(line, config.DeviceId) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrHandshakeRejected, line, config.DeviceId)
	}
	identification := strings.TrimPrefix(strings.TrimSpace(line), "/")

	result := &HandshakeResult{
		Identification: identification,
		BaudRate:       currentBaud,
	}
	if !config.BaudNegotiation {
		return result, nil
	}
	baudChar, ok := ParseBaudRateChar(line)
	if !ok {
		return result, nil
	}
	target, ok := BaudRateForChar(baudChar)
	if !ok || target <= currentBaud {
		return result, nil
	}
	if err := negotiateBaudRate(conn, baudChar, target, config.SwitchDelay); err != nil {
		return nil, err
	}
	result.BaudRate = target
	return result, nil
}

func negotiateBaudRate(conn SerialConnection, baudChar byte, target int, switchDelay time.Duration) error {
	// ACK '0' <baud-char> '0' CR LF: keep protocol mode, switch speed
	ack := []byte{ackByte, '0', baudChar, '0', 0x0D, 0x0A}
	if err := conn.Write(ack); err != nil {
		return fmt.Errorf("send baud acknowledge: %w", err)
	}
	// protocol switch window; the meter changes speed on its side first
	time.Sleep(switchDelay)
	if err := conn.SetBaudRate(target); err != nil {
		return fmt.Errorf("%w: %d baud: %v", ErrBaudChangeFailed, target, err)
	}
	return nil
}
