package iec62056_serial

import (
	"errors"
	"math"
	"testing"
	"time"
)

func almostEqual(a float64, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assembleLines(t *testing.T, lines ...string) *MeterReading {
	t.Helper()
	assembler := NewReadingAssembler()
	for _, line := range lines {
		assembler.DecodeLine(line)
	}
	reading, err := assembler.Assemble("ISk5MT174-0001", time.Now())
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return reading
}

func TestDecodeVoltageLine(t *testing.T) {
	reading := assembleLines(t, "1-0:32.7.0(230.1*V)")
	if !almostEqual(reading.Phase1Voltage, 230.1) {
		t.Errorf("phase 1 voltage: got %f, want 230.1", reading.Phase1Voltage)
	}
}

func TestDecodeUnitSuffixes(t *testing.T) {
	reading := assembleLines(t,
		"1-0:1.8.0(12345.678*kWh)",
		"1-0:21.7.0(226.67*kW)",
		"1-0:31.7.0(0.98*A)",
		"1-0:52.7.0(233.2*V)",
		"1-0:14.7.0(49.99*Hz)",
	)
	if !almostEqual(reading.ConsumptionTotalKWh, 12345.678) {
		t.Errorf("consumption total: got %f", reading.ConsumptionTotalKWh)
	}
	if !almostEqual(reading.Phase1Power, 226.67) {
		t.Errorf("phase 1 power: got %f", reading.Phase1Power)
	}
	if !almostEqual(reading.Phase1Current, 0.98) {
		t.Errorf("phase 1 current: got %f", reading.Phase1Current)
	}
	if !almostEqual(reading.Phase2Voltage, 233.2) {
		t.Errorf("phase 2 voltage: got %f", reading.Phase2Voltage)
	}
	if !almostEqual(reading.Frequency, 49.99) {
		t.Errorf("frequency: got %f", reading.Frequency)
	}
}

func TestDecodeBillingChannelSuffix(t *testing.T) {
	reading := assembleLines(t, "1-0:1.8.1*01(804.1*kWh)")
	if !almostEqual(reading.ConsumptionTariff1KWh, 804.1) {
		t.Errorf("consumption tariff 1: got %f, want 804.1", reading.ConsumptionTariff1KWh)
	}
}

func TestDecodeMalformedLines(t *testing.T) {
	reading := assembleLines(t,
		"1-0:32.7.0",
		"1-0:32.7.0)230.1(",
		"garbage",
		"C.1.6(FDF5)",
		"1-0:52.7.0(not-a-number*V)",
		"(230.1*V)",
	)
	if reading.Phase1Voltage != 0 || reading.Phase2Voltage != 0 {
		t.Errorf("malformed lines mutated fields: %+v", reading)
	}
	if reading.TotalPower != 0 {
		t.Errorf("total power: got %f, want 0", reading.TotalPower)
	}
}

func TestMeterTimeReformat(t *testing.T) {
	reading := assembleLines(t, "0.8.1(120054)")
	if reading.Time != "12:00:54" {
		t.Errorf("meter time: got %q, want \"12:00:54\"", reading.Time)
	}

	short := assembleLines(t, "0.8.1(1200)")
	if short.Time != "" {
		t.Errorf("short meter time: got %q, want empty", short.Time)
	}
}

func TestMeterDateReformat(t *testing.T) {
	reading := assembleLines(t, "0.8.2(1200703)")
	if reading.Date != "20-07-03" {
		t.Errorf("meter date: got %q, want \"20-07-03\"", reading.Date)
	}

	short := assembleLines(t, "0.8.2(200703)")
	if short.Date != "" {
		t.Errorf("short meter date: got %q, want empty", short.Date)
	}
}

func TestDerivedPhasePower(t *testing.T) {
	reading := assembleLines(t,
		"1-0:32.7.0(231.3*V)",
		"1-0:52.7.0(233.2*V)",
		"1-0:72.7.0(231.4*V)",
		"1-0:31.7.0(0.98*A)",
		"1-0:51.7.0(0.10*A)",
		"1-0:71.7.0(0.64*A)",
		"1-0:33.7.0(1.00)",
		"1-0:53.7.0(1.00)",
		"1-0:73.7.0(1.00)",
	)
	if !almostEqual(reading.Phase1Power, 226.67) {
		t.Errorf("phase 1 power: got %f, want 226.67", reading.Phase1Power)
	}
	if !almostEqual(reading.Phase2Power, 23.32) {
		t.Errorf("phase 2 power: got %f, want 23.32", reading.Phase2Power)
	}
	if !almostEqual(reading.Phase3Power, 148.10) {
		t.Errorf("phase 3 power: got %f, want 148.10", reading.Phase3Power)
	}
	if !almostEqual(reading.TotalPower, 398.09) {
		t.Errorf("total power: got %f, want 398.09", reading.TotalPower)
	}
}

func TestDerivedPhasePowerDefaultPowerFactor(t *testing.T) {
	// no power factor lines at all: derivation assumes 1.0
	reading := assembleLines(t,
		"1-0:32.7.0(231.3*V)",
		"1-0:31.7.0(0.98*A)",
	)
	if !almostEqual(reading.Phase1Power, 226.67) {
		t.Errorf("phase 1 power: got %f, want 226.67", reading.Phase1Power)
	}
	if !almostEqual(reading.TotalPower, 226.67) {
		t.Errorf("total power: got %f, want 226.67", reading.TotalPower)
	}
}

func TestDirectPhasePowerDialect(t *testing.T) {
	reading := assembleLines(t,
		"1-0:21.7.0(100.51*kW)",
		"1-0:41.7.0(50.25*kW)",
		"1-0:61.7.0(25.13*kW)",
	)
	if !almostEqual(reading.Phase1Power, 100.51) {
		t.Errorf("phase 1 power: got %f, want 100.51", reading.Phase1Power)
	}
	if !almostEqual(reading.TotalPower, 175.89) {
		t.Errorf("total power: got %f, want 175.89", reading.TotalPower)
	}
}

func TestDirectPowerWinsOverDerivation(t *testing.T) {
	// a telegram carrying both dialects keeps the reported power untouched
	reading := assembleLines(t,
		"1-0:21.7.0(42.0*kW)",
		"1-0:32.7.0(231.3*V)",
		"1-0:31.7.0(0.98*A)",
	)
	if !almostEqual(reading.Phase1Power, 42.0) {
		t.Errorf("phase 1 power: got %f, want 42.0", reading.Phase1Power)
	}
}

func TestBaudRateChars(t *testing.T) {
	cases := []struct {
		c    byte
		baud int
		ok   bool
	}{
		{'0', 300, true},
		{'1', 600, true},
		{'2', 1200, true},
		{'3', 2400, true},
		{'4', 4800, true},
		{'5', 9600, true},
		{'6', 19200, true},
		{'7', 0, false},
		{'A', 0, false},
	}
	for _, c := range cases {
		baud, ok := BaudRateForChar(c.c)
		if ok != c.ok || baud != c.baud {
			t.Errorf("baud for %q: got (%d, %v), want (%d, %v)", c.c, baud, ok, c.baud, c.ok)
		}
	}
}

func TestParseBaudRateChar(t *testing.T) {
	c, ok := ParseBaudRateChar("/ISk5MT174-0001")
	if !ok || c != '5' {
		t.Errorf("parse baud char: got (%q, %v), want ('5', true)", c, ok)
	}

	if _, ok := ParseBaudRateChar("/AB"); ok {
		t.Error("parse baud char on short identification: want no char")
	}
}

func TestAssembleWithoutIdentification(t *testing.T) {
	assembler := NewReadingAssembler()
	assembler.DecodeLine("1-0:32.7.0(230.1*V)")
	_, err := assembler.Assemble("", time.Now())
	if !errors.Is(err, ErrMissingIdentification) {
		t.Errorf("assemble without identification: got %v, want ErrMissingIdentification", err)
	}
}

func TestAssembleStampsTimestamp(t *testing.T) {
	at := time.Date(2020, 7, 3, 12, 0, 54, 123456000, time.Local)
	assembler := NewReadingAssembler()
	reading, err := assembler.Assemble("ISk5MT174-0001", at)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if reading.Timestamp != "2020-07-03 12:00:54.123456" {
		t.Errorf("timestamp: got %q", reading.Timestamp)
	}
	if reading.DeviceId != "ISk5MT174-0001" {
		t.Errorf("device id: got %q", reading.DeviceId)
	}
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{226.674, 226.67},
		{148.096, 148.10},
		// 0.625 and 0.375 are exact in binary, so these really do sit on
		// the rounding boundary
		{0.625, 0.63},
		{-0.625, -0.63},
		{0.375, 0.38},
	}
	for _, c := range cases {
		if got := round2(c.in); !almostEqual(got, c.want) {
			t.Errorf("round2(%f): got %f, want %f", c.in, got, c.want)
		}
	}
}
