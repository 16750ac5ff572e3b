package iec62056_serial

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// IEC 62056-21 mode C physical layer: every exchange starts at 300 baud,
// 7 data bits, even parity, 1 stop bit.
const (
	InitialBaudRate = 300
	modeCDataBits   = 7
)

var (
	ErrPortUnavailable = errors.New("serial port unavailable")
	ErrReadTimeout     = errors.New("serial read timeout")
)

// SerialParameters describes one opened link. Data bits, parity and stop
// bits are protocol constants; only the baud rate and the read timeout
// change at runtime.
type SerialParameters struct {
	BaudRate    int
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

func ModeCParameters(readTimeout time.Duration) SerialParameters {
	return SerialParameters{
		BaudRate:    InitialBaudRate,
		DataBits:    modeCDataBits,
		Parity:      serial.EvenParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: readTimeout,
	}
}

// SerialConnection is the capability set the protocol engine needs from a
// serial link. One production implementation over go.bug.st/serial, one
// scripted implementation for tests.
type SerialConnection interface {
	ReadLine() (string, error)
	Write(data []byte) error
	SetBaudRate(baudRate int) error
	SetReadTimeout(timeout time.Duration) error
	ClearInput() error
	Close() error
}

type SerialInstrument struct {
	RecordTime func(fnName string, opTime time.Duration)
}

type serialPortConnection struct {
	port       serial.Port
	params     SerialParameters
	instrument []SerialInstrument
}

func OpenSerialPort(path string, params SerialParameters, instrument []SerialInstrument) (SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: params.BaudRate,
		DataBits: params.DataBits,
		Parity:   params.Parity,
		StopBits: params.StopBits,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortUnavailable, path, err)
	}
	// the optical head draws its illumination power from DTR, so both
	// control lines must be asserted or the meter never answers
	if err := port.SetDTR(true); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: set DTR: %v", ErrPortUnavailable, path, err)
	}
	if err := port.SetRTS(true); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: set RTS: %v", ErrPortUnavailable, path, err)
	}
	if err := port.SetReadTimeout(params.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %v", ErrPortUnavailable, path, err)
	}
	return &serialPortConnection{
		port:       port,
		params:     params,
		instrument: instrument,
	}, nil
}

// ReadLine reads one CR-LF terminated line. A read that yields zero bytes
// means the port timeout expired with the meter silent; a line that never
// terminates is cut off by the per-line deadline.
func (conn *serialPortConnection) ReadLine() (string, error) {
	defer recordTimer("ReadLine", conn.instrument)()
	deadline := time.Now().Add(conn.params.ReadTimeout)
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := conn.port.Read(buf)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return "", ErrReadTimeout
		}
		if buf[0] == '\n' {
			return strings.TrimRight(string(line), "\r"), nil
		}
		line = append(line, buf[0])
		if time.Now().After(deadline) {
			return "", ErrReadTimeout
		}
	}
}

func (conn *serialPortConnection) Write(data []byte) error {
	defer recordTimer("Write", conn.instrument)()
	for len(data) > 0 {
		n, err := conn.port.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return conn.port.Drain()
}

func (conn *serialPortConnection) SetBaudRate(baudRate int) error {
	defer recordTimer("SetBaudRate", conn.instrument)()
	params := conn.params
	params.BaudRate = baudRate
	err := conn.port.SetMode(&serial.Mode{
		BaudRate: params.BaudRate,
		DataBits: params.DataBits,
		Parity:   params.Parity,
		StopBits: params.StopBits,
	})
	if err != nil {
		return err
	}
	conn.params = params
	return nil
}

func (conn *serialPortConnection) SetReadTimeout(timeout time.Duration) error {
	if err := conn.port.SetReadTimeout(timeout); err != nil {
		return err
	}
	conn.params.ReadTimeout = timeout
	return nil
}

func (conn *serialPortConnection) ClearInput() error {
	return conn.port.ResetInputBuffer()
}

func (conn *serialPortConnection) Close() error {
	return conn.port.Close()
}

func recordTimer(name string, instrument []SerialInstrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
