package iec62056_serial

import (
	"time"
)

func CreateTestMeterReader() (MeterReader, error) {
	return &TestMeterReader{}, nil
}

// TestMeterReader yields one canned reading per cycle. Setting CycleErr
// makes every cycle fail with it instead.
type TestMeterReader struct {
	CycleErr error
}

func (reader *TestMeterReader) Open() error {
	return nil
}

func (reader *TestMeterReader) Close() error {
	return nil
}

func (reader *TestMeterReader) GetInfo() (*MeterInfo, error) {
	return &MeterInfo{
		Port:           "/dev/ttyUSB0",
		Identification: "ISk5MT174-0001",
		Vendor:         "ISk",
		Model:          "MT174-0001",
		BaudRate:       9600,
	}, nil
}

func (reader *TestMeterReader) State() ConnectionState {
	return ConnectionIdle
}

func (reader *TestMeterReader) ReadCycle() (*MeterReading, error) {
	if reader.CycleErr != nil {
		return nil, reader.CycleErr
	}
	return &MeterReading{
		DeviceId:              "ISk5MT174-0001",
		Time:                  "12:00:54",
		Date:                  "20-07-03",
		ConsumptionTotalKWh:   12345.678,
		ConsumptionTariff1KWh: 804.1,
		ConsumptionTariff2KWh: 11541.578,
		ProductionTotalKWh:    220.2,
		ProductionTariff2KWh:  220.2,
		Phase1Voltage:         231.3,
		Phase2Voltage:         233.2,
		Phase3Voltage:         231.4,
		Phase1Current:         0.98,
		Phase2Current:         0.10,
		Phase3Current:         0.64,
		Phase1PowerFactor:     1.0,
		Phase2PowerFactor:     1.0,
		Phase3PowerFactor:     1.0,
		Frequency:             49.99,
		Phase1Power:           226.67,
		Phase2Power:           23.32,
		Phase3Power:           148.10,
		TotalPower:            398.09,
		Timestamp:             time.Now().Format(ReadingTimestampLayout),
	}, nil
}

// ScriptedSerialConnection feeds canned read results to the protocol
// engine and records everything written to it. Reads past the end of the
// script behave like a silent meter.
type ScriptedSerialConnection struct {
	Reads []ScriptedRead
	next  int

	Writes         [][]byte
	WriteErr       error
	BaudRate       int
	BaudChanges    []int
	SetBaudRateErr error
	ReadTimeout    time.Duration
	InputClears    int
	Closed         bool
}

type ScriptedRead struct {
	Line string
	// Returned instead of the line when set.
	Err error
	// Slept before the read resolves.
	Delay time.Duration
}

func (conn *ScriptedSerialConnection) ReadLine() (string, error) {
	if conn.next >= len(conn.Reads) {
		return "", ErrReadTimeout
	}
	step := conn.Reads[conn.next]
	conn.next++
	if step.Delay > 0 {
		time.Sleep(step.Delay)
	}
	if step.Err != nil {
		return "", step.Err
	}
	return step.Line, nil
}

func (conn *ScriptedSerialConnection) Write(data []byte) error {
	if conn.WriteErr != nil {
		return conn.WriteErr
	}
	conn.Writes = append(conn.Writes, append([]byte(nil), data...))
	return nil
}

func (conn *ScriptedSerialConnection) SetBaudRate(baudRate int) error {
	if conn.SetBaudRateErr != nil {
		return conn.SetBaudRateErr
	}
	conn.BaudRate = baudRate
	conn.BaudChanges = append(conn.BaudChanges, baudRate)
	return nil
}

func (conn *ScriptedSerialConnection) SetReadTimeout(timeout time.Duration) error {
	conn.ReadTimeout = timeout
	return nil
}

func (conn *ScriptedSerialConnection) ClearInput() error {
	conn.InputClears++
	return nil
}

func (conn *ScriptedSerialConnection) Close() error {
	conn.Closed = true
	return nil
}
