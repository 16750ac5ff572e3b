package iec62056_serial

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

var ErrNoCandidatePorts = errors.New("no candidate serial ports found")

// DeviceNotFoundError means every candidate was probed and none answered
// with the expected device.
type DeviceNotFoundError struct {
	Attempted int
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("could not find the meter on any candidate port (%d attempted)", e.Attempted)
}

// ProbeResult holds the winning connection, still open and already past
// its handshake. The meter is about to send a telegram; closing and
// reopening here would wake it a second time mid-transmission.
type ProbeResult struct {
	Connection     SerialConnection
	Port           string
	Identification string
	BaudRate       int
}

func ListCandidatePorts(filter string) ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	var candidates []string
	for _, name := range ports {
		if strings.Contains(name, filter) {
			candidates = append(candidates, name)
		}
	}
	return candidates, nil
}

// FindMeterPort probes candidate ports in enumeration order until one
// answers the handshake with the expected device. A failure on one
// candidate is recorded and probing continues; with a fixed port path
// configured the failure is returned as is instead.
func FindMeterPort(config ProtocolConfig, logger *zap.Logger, instrument []SerialInstrument) (*ProbeResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.PortPath != "" {
		return probePort(config.PortPath, config, instrument)
	}

	candidates, err := ListCandidatePorts(config.PortFilter)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidatePorts
	}

	attempted := 0
	for _, path := range candidates {
		attempted++
		result, err := probePort(path, config, instrument)
		if err != nil {
			logger.Warn("meter probe failed", zap.String("port", path), zap.Error(err))
			continue
		}
		logger.Info("meter found", zap.String("port", path),
			zap.String("identification", result.Identification),
			zap.Int("baudRate", result.BaudRate))
		return result, nil
	}
	return nil, &DeviceNotFoundError{Attempted: attempted}
}

func probePort(path string, config ProtocolConfig, instrument []SerialInstrument) (*ProbeResult, error) {
	conn, err := OpenSerialPort(path, ModeCParameters(config.ProbeTimeout), instrument)
	if err != nil {
		return nil, err
	}
	handshake, err := PerformHandshake(conn, config, InitialBaudRate)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &ProbeResult{
		Connection:     conn,
		Port:           path,
		Identification: handshake.Identification,
		BaudRate:       handshake.BaudRate,
	}, nil
}
