package iec62056_serial

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"go.uber.org/zap"
)

const (
	USE_REAL_METER = false
)

func testProtocolConfig() ProtocolConfig {
	config := DefaultProtocolConfig("ISk5MT174")
	// protocol delays shrunk so the scripted exchanges run instantly
	config.SettleDelay = time.Millisecond
	config.SwitchDelay = time.Millisecond
	config.PollDelay = time.Millisecond
	return config
}

func TestHandshakeConfirmed(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "/ISk5MT174-0001"},
		},
	}

	result, err := PerformHandshake(conn, testProtocolConfig(), InitialBaudRate)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if result.Identification != "ISk5MT174-0001" {
		t.Errorf("identification: got %q", result.Identification)
	}
	if result.BaudRate != 9600 {
		t.Errorf("baud rate: got %d, want 9600", result.BaudRate)
	}
	if len(conn.Writes) != 2 {
		t.Fatalf("writes: got %d, want init sequence and baud acknowledge", len(conn.Writes))
	}
	if !bytes.Equal(conn.Writes[0], []byte{0x2F, 0x3F, 0x21, 0x0D, 0x0A}) {
		t.Errorf("init sequence: got % X", conn.Writes[0])
	}
	if !bytes.Equal(conn.Writes[1], []byte{0x06, '0', '5', '0', 0x0D, 0x0A}) {
		t.Errorf("baud acknowledge: got % X", conn.Writes[1])
	}
	if len(conn.BaudChanges) != 1 || conn.BaudChanges[0] != 9600 {
		t.Errorf("baud changes: got %v, want [9600]", conn.BaudChanges)
	}
}

func TestHandshakeRejected(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "/XYZ5Other-0001"},
		},
	}

	_, err := PerformHandshake(conn, testProtocolConfig(), InitialBaudRate)
	if !errors.Is(err, ErrHandshakeRejected) {
		t.Errorf("handshake: got %v, want ErrHandshakeRejected", err)
	}
}

func TestHandshakeTimedOut(t *testing.T) {
	conn := &ScriptedSerialConnection{}

	_, err := PerformHandshake(conn, testProtocolConfig(), InitialBaudRate)
	if !errors.Is(err, ErrReadTimeout) {
		t.Errorf("handshake: got %v, want ErrReadTimeout", err)
	}
}

func TestHandshakeUnknownBaudChar(t *testing.T) {
	config := testProtocolConfig()
	config.DeviceId = "ISk"
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "/ISk9MT174-0001"},
		},
	}

	result, err := PerformHandshake(conn, config, InitialBaudRate)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if result.BaudRate != InitialBaudRate {
		t.Errorf("baud rate: got %d, want %d", result.BaudRate, InitialBaudRate)
	}
	if len(conn.Writes) != 1 {
		t.Errorf("writes: got %d, want only the init sequence", len(conn.Writes))
	}
}

func TestHandshakeNegotiationDisabled(t *testing.T) {
	config := testProtocolConfig()
	config.BaudNegotiation = false
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "/ISk5MT174-0001"},
		},
	}

	result, err := PerformHandshake(conn, config, InitialBaudRate)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if result.BaudRate != InitialBaudRate {
		t.Errorf("baud rate: got %d, want %d", result.BaudRate, InitialBaudRate)
	}
	if len(conn.BaudChanges) != 0 {
		t.Errorf("baud changes: got %v, want none", conn.BaudChanges)
	}
}

func TestHandshakeBaudChangeFailed(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "/ISk5MT174-0001"},
		},
		SetBaudRateErr: errors.New("ioctl failed"),
	}

	_, err := PerformHandshake(conn, testProtocolConfig(), InitialBaudRate)
	if !errors.Is(err, ErrBaudChangeFailed) {
		t.Errorf("handshake: got %v, want ErrBaudChangeFailed", err)
	}
}

func TestReadTelegram(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "1-0:32.7.0(231.3*V)"},
			{Line: ""},
			{Line: "/ISk5MT174-0001"},
			{Line: "1-0:31.7.0(0.98*A)"},
			{Line: "!"},
		},
	}

	lines, err := ReadTelegram(conn)
	if err != nil {
		t.Fatalf("read telegram: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("lines: got %v, want the two data records", lines)
	}
	if lines[0] != "1-0:32.7.0(231.3*V)" || lines[1] != "1-0:31.7.0(0.98*A)" {
		t.Errorf("lines: got %v", lines)
	}
}

func TestReadTelegramEOF(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "1-0:32.7.0(231.3*V)"},
			{Err: io.EOF},
		},
	}

	_, err := ReadTelegram(conn)
	if !errors.Is(err, ErrIncompleteTelegram) {
		t.Errorf("read telegram: got %v, want ErrIncompleteTelegram", err)
	}
}

func TestReadTelegramTimeout(t *testing.T) {
	conn := &ScriptedSerialConnection{
		Reads: []ScriptedRead{
			{Line: "1-0:32.7.0(231.3*V)"},
		},
	}

	_, err := ReadTelegram(conn)
	if !errors.Is(err, ErrReadTimeout) {
		t.Errorf("read telegram: got %v, want ErrReadTimeout", err)
	}
}

func primedTestReader(conn SerialConnection) *serialMeterReader {
	return &serialMeterReader{
		config:         testProtocolConfig(),
		logger:         zap.NewNop(),
		conn:           conn,
		state:          ConnectionIdentified,
		port:           "scripted",
		identification: "ISk5MT174-0001",
		baudRate:       9600,
		primed:         true,
	}
}

var testTelegramReads = []ScriptedRead{
	{Line: "1-0:1.8.0(12345.678*kWh)"},
	{Line: "1-0:32.7.0(231.3*V)"},
	{Line: "1-0:52.7.0(233.2*V)"},
	{Line: "1-0:72.7.0(231.4*V)"},
	{Line: "1-0:31.7.0(0.98*A)"},
	{Line: "1-0:51.7.0(0.10*A)"},
	{Line: "1-0:71.7.0(0.64*A)"},
	{Line: "!"},
}

func TestReadCyclePrimedThenRewake(t *testing.T) {
	script := append([]ScriptedRead{}, testTelegramReads...)
	// second cycle: full handshake then another telegram
	script = append(script, ScriptedRead{Line: "/ISk5MT174-0001"})
	script = append(script, testTelegramReads...)
	conn := &ScriptedSerialConnection{Reads: script}
	reader := primedTestReader(conn)

	first, err := reader.ReadCycle()
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if first.DeviceId != "ISk5MT174-0001" {
		t.Errorf("device id: got %q", first.DeviceId)
	}
	if !almostEqual(first.TotalPower, 398.09) {
		t.Errorf("total power: got %f, want 398.09", first.TotalPower)
	}
	// primed cycle consumes the probe handshake: nothing written yet
	if len(conn.Writes) != 0 {
		t.Errorf("writes after primed cycle: got %d, want 0", len(conn.Writes))
	}

	second, err := reader.ReadCycle()
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if !almostEqual(second.TotalPower, 398.09) {
		t.Errorf("total power: got %f, want 398.09", second.TotalPower)
	}
	// rewake: drop to 300 baud, clear stray input, handshake back up
	if len(conn.BaudChanges) != 2 || conn.BaudChanges[0] != InitialBaudRate || conn.BaudChanges[1] != 9600 {
		t.Errorf("baud changes: got %v, want [300 9600]", conn.BaudChanges)
	}
	if conn.InputClears != 1 {
		t.Errorf("input clears: got %d, want 1", conn.InputClears)
	}
	if len(conn.Writes) != 2 {
		t.Errorf("writes after second cycle: got %d, want init and acknowledge", len(conn.Writes))
	}
}

func TestReadCycleRejectionIsolated(t *testing.T) {
	script := append([]ScriptedRead{}, testTelegramReads...)
	// second cycle answered by the wrong device, third is fine again
	script = append(script, ScriptedRead{Line: "/XYZ5Other-0001"})
	script = append(script, ScriptedRead{Line: "/ISk5MT174-0001"})
	script = append(script, testTelegramReads...)
	conn := &ScriptedSerialConnection{Reads: script}
	reader := primedTestReader(conn)

	if _, err := reader.ReadCycle(); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	_, err := reader.ReadCycle()
	if !errors.Is(err, ErrHandshakeRejected) {
		t.Fatalf("second cycle: got %v, want ErrHandshakeRejected", err)
	}
	if conn.Closed {
		t.Fatal("connection closed after an isolated cycle failure")
	}
	third, err := reader.ReadCycle()
	if err != nil {
		t.Fatalf("third cycle: %v", err)
	}
	if !almostEqual(third.TotalPower, 398.09) {
		t.Errorf("total power: got %f, want 398.09", third.TotalPower)
	}
}

func TestReadCycleIncompleteTelegramIsolated(t *testing.T) {
	script := append([]ScriptedRead{}, testTelegramReads...)
	script = append(script, ScriptedRead{Line: "/ISk5MT174-0001"})
	script = append(script, ScriptedRead{Line: "1-0:32.7.0(231.3*V)"})
	script = append(script, ScriptedRead{Err: io.EOF})
	conn := &ScriptedSerialConnection{Reads: script}
	reader := primedTestReader(conn)

	if _, err := reader.ReadCycle(); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	_, err := reader.ReadCycle()
	if !errors.Is(err, ErrIncompleteTelegram) {
		t.Fatalf("second cycle: got %v, want ErrIncompleteTelegram", err)
	}
	if conn.Closed {
		t.Fatal("connection closed after an isolated cycle failure")
	}
}

func TestReadCycleBaudResetFailureClosesConnection(t *testing.T) {
	script := append([]ScriptedRead{}, testTelegramReads...)
	conn := &ScriptedSerialConnection{
		Reads:          script,
		SetBaudRateErr: errors.New("ioctl failed"),
	}
	reader := primedTestReader(conn)

	if _, err := reader.ReadCycle(); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	_, err := reader.ReadCycle()
	if !errors.Is(err, ErrBaudChangeFailed) {
		t.Fatalf("second cycle: got %v, want ErrBaudChangeFailed", err)
	}
	if !conn.Closed {
		t.Fatal("connection must be torn down after a failed baud reset")
	}
	if _, err := reader.ReadCycle(); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("third cycle: got %v, want ErrConnectionClosed", err)
	}
}

func TestCyclesDoNotOverlap(t *testing.T) {
	script := append([]ScriptedRead{}, testTelegramReads...)
	script = append(script, ScriptedRead{Line: "/ISk5MT174-0001", Delay: 5 * time.Millisecond})
	script = append(script, testTelegramReads...)
	conn := &ScriptedSerialConnection{Reads: script}
	reader := primedTestReader(conn)

	firstStart := time.Now()
	if _, err := reader.ReadCycle(); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	firstEnd := time.Now()
	secondStart := time.Now()
	if _, err := reader.ReadCycle(); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	secondEnd := time.Now()

	if firstEnd.After(secondStart) {
		t.Error("cycle reads overlap")
	}
	if !firstStart.Before(firstEnd) || !secondStart.Before(secondEnd) {
		t.Error("cycle boundaries out of order")
	}
}

func TestMeterReaderInfo(t *testing.T) {
	reader := MeterReaderForTest()

	err := reader.Open()
	if err != nil {
		t.Fatal(err)
	}

	info, err := reader.GetInfo()
	if err != nil {
		t.Error(err)
		return
	}
	fmt.Printf("Meter info: %+v\n", info)

	reading, err := reader.ReadCycle()
	if err != nil {
		t.Error(err)
		return
	}
	fmt.Printf("Meter reading: %+v\n", reading)
	fmt.Printf("Total power: %f\n", reading.TotalPower)
}

func RealMeterReader() MeterReader {
	logger := zap.Must(zap.NewDevelopment())
	reader, err := CreateSerialMeterReader(DefaultProtocolConfig("ISk5MT174"), logger, nil)
	if err != nil {
		panic(err)
	}
	return reader
}

func MockedMeterReader() MeterReader {
	reader, err := CreateTestMeterReader()
	if err != nil {
		panic(err)
	}
	return reader
}

func MeterReaderForTest() MeterReader {
	if USE_REAL_METER {
		return RealMeterReader()
	} else {
		return MockedMeterReader()
	}
}
