package iec62056_serial

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrConnectionClosed = errors.New("meter connection closed")

// serialMeterReader keeps one physical optical link open across repeated
// polls. The first handshake is satisfied by the probe, so the first cycle
// reads the telegram the meter is already sending. Every later cycle waits
// out the idle window, drops the link back to 300 baud, clears stray input
// and re-runs the full handshake before reading. Cycle failures leave the
// connection open; only baud switching and terminal close tear it down.
type serialMeterReader struct {
	config     ProtocolConfig
	logger     *zap.Logger
	instrument []SerialInstrument

	conn           SerialConnection
	state          ConnectionState
	port           string
	identification string
	baudRate       int
	primed         bool
}

func CreateSerialMeterReader(config ProtocolConfig, logger *zap.Logger,
	instrumentation *SerialInstrument) (MeterReader, error) {
	if config.DeviceId == "" {
		return nil, errors.New("expected device identifier must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// instrumentation
	var inst []SerialInstrument
	logInst := traceLoggerInstrumentation(logger.With(zap.String("target", "meter")))
	if logInst != nil {
		inst = append(inst, *logInst)
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}

	reader := serialMeterReader{
		config:     config,
		logger:     logger,
		instrument: inst,
		state:      ConnectionClosed,
		baudRate:   InitialBaudRate,
	}
	return &reader, nil
}

// Open probes for the meter and primes the connection with the probe's
// handshake. The winning port is kept open exactly as the prober returned
// it; reopening would wake the meter a second time mid-transmission.
func (reader *serialMeterReader) Open() error {
	if reader.conn != nil {
		return nil
	}
	probe, err := FindMeterPort(reader.config, reader.logger, reader.instrument)
	if err != nil {
		return err
	}
	reader.conn = probe.Connection
	reader.port = probe.Port
	reader.identification = probe.Identification
	reader.baudRate = probe.BaudRate
	reader.primed = true
	reader.state = ConnectionIdentified
	// probing reads with the short timeout; steady reads get the full one
	if err := reader.conn.SetReadTimeout(reader.config.ReadTimeout); err != nil {
		reader.teardown()
		return fmt.Errorf("%w: set read timeout: %v", ErrPortUnavailable, err)
	}
	return nil
}

func (reader *serialMeterReader) Close() error {
	if reader.conn == nil {
		return nil
	}
	err := reader.conn.Close()
	reader.conn = nil
	reader.state = ConnectionClosed
	return err
}

func (reader *serialMeterReader) GetInfo() (*MeterInfo, error) {
	if reader.conn == nil {
		return nil, ErrConnectionClosed
	}
	info := parseIdentification(reader.identification)
	info.Port = reader.port
	info.BaudRate = reader.baudRate
	return info, nil
}

func (reader *serialMeterReader) State() ConnectionState {
	return reader.state
}

// ReadCycle runs one poll: handshake (unless primed), telegram, decode,
// assemble. Errors are isolated to the cycle; the caller retries by simply
// polling again.
func (reader *serialMeterReader) ReadCycle() (*MeterReading, error) {
	if reader.conn == nil {
		return nil, ErrConnectionClosed
	}
	if reader.primed {
		reader.primed = false
	} else {
		// the optical transceiver needs to fully idle before re-waking
		time.Sleep(reader.config.PollDelay)
		if err := reader.rewake(); err != nil {
			return nil, err
		}
	}

	reader.state = ConnectionReadingTelegram
	lines, err := ReadTelegram(reader.conn)
	if err != nil {
		reader.state = ConnectionIdle
		return nil, err
	}

	assembler := NewReadingAssembler()
	for _, line := range lines {
		assembler.DecodeLine(line)
	}
	reading, err := assembler.Assemble(reader.identification, time.Now())
	reader.state = ConnectionIdle
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// rewake brings the link back to its initial state and re-runs the
// handshake. A failed local baud switch leaves the link at an unknown
// speed, so that one error tears the connection down.
func (reader *serialMeterReader) rewake() error {
	reader.state = ConnectionHandshaking
	if reader.baudRate != InitialBaudRate {
		reader.state = ConnectionBaudSwitching
		if err := reader.conn.SetBaudRate(InitialBaudRate); err != nil {
			reader.teardown()
			return fmt.Errorf("%w: reset to %d baud: %v", ErrBaudChangeFailed, InitialBaudRate, err)
		}
		reader.baudRate = InitialBaudRate
		reader.state = ConnectionHandshaking
	}
	if err := reader.conn.ClearInput(); err != nil {
		reader.state = ConnectionIdle
		return fmt.Errorf("clear input: %w", err)
	}
	handshake, err := PerformHandshake(reader.conn, reader.config, reader.baudRate)
	if err != nil {
		if errors.Is(err, ErrBaudChangeFailed) {
			reader.teardown()
		} else {
			reader.state = ConnectionIdle
		}
		return err
	}
	reader.identification = handshake.Identification
	reader.baudRate = handshake.BaudRate
	reader.state = ConnectionIdentified
	return nil
}

func (reader *serialMeterReader) teardown() {
	if reader.conn != nil {
		_ = reader.conn.Close()
		reader.conn = nil
	}
	reader.state = ConnectionClosed
}

// parseIdentification splits "ISk5MT174-0001" into vendor "ISk" and model
// "MT174-0001"; the 4th character is the advertised baud and belongs to
// neither.
func parseIdentification(identification string) *MeterInfo {
	info := &MeterInfo{Identification: identification}
	if len(identification) >= 4 {
		info.Vendor = identification[0:3]
		info.Model = identification[4:]
	}
	return info
}

func traceLoggerInstrumentation(logger *zap.Logger) *SerialInstrument {
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		return nil
	}
	return &SerialInstrument{
		RecordTime: func(fnName string, opTime time.Duration) {
			logger.Debug(fmt.Sprintf("serial [%s]: %d millis", fnName, opTime.Milliseconds()))
		},
	}
}
