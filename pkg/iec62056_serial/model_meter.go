package iec62056_serial

import (
	"fmt"
	"math"
	"time"
)

// connection states
const (
	ConnectionClosed ConnectionState = iota
	ConnectionOpened
	ConnectionHandshaking
	ConnectionIdentified
	ConnectionBaudSwitching
	ConnectionReadingTelegram
	ConnectionIdle
)

// connection state strings
const (
	ConnectionClosedStr          = "closed"
	ConnectionOpenedStr          = "opened"
	ConnectionHandshakingStr     = "handshaking"
	ConnectionIdentifiedStr      = "identified"
	ConnectionBaudSwitchingStr   = "baud_switching"
	ConnectionReadingTelegramStr = "reading_telegram"
	ConnectionIdleStr            = "idle"
	ConnectionUnknownStr         = "unknown"
)

type ConnectionState int

func ConnectionStateToString(state ConnectionState) string {
	switch state {
	case ConnectionClosed:
		return ConnectionClosedStr
	case ConnectionOpened:
		return ConnectionOpenedStr
	case ConnectionHandshaking:
		return ConnectionHandshakingStr
	case ConnectionIdentified:
		return ConnectionIdentifiedStr
	case ConnectionBaudSwitching:
		return ConnectionBaudSwitchingStr
	case ConnectionReadingTelegram:
		return ConnectionReadingTelegramStr
	case ConnectionIdle:
		return ConnectionIdleStr
	default:
		return fmt.Sprintf("%s(%d)", ConnectionUnknownStr, state)
	}
}

// capture timestamp layout, local time
const ReadingTimestampLayout = "2006-01-02 15:04:05.000000"

// MeterReading is one normalized readout. Every numeric field keeps its
// zero value when the matching OBIS code never appears in the telegram.
type MeterReading struct {
	// Full identification, e.g. "ISk5MT174-0001"
	DeviceId string `json:"device_id"`
	// Meter clock, "HH:MM:SS"
	Time string `json:"time,omitempty"`
	// Meter date, "YY-MM-DD"
	Date string `json:"date,omitempty"`
	// Lifetime imported energy in kWh, total and per tariff
	ConsumptionTotalKWh   float64 `json:"consumption_total_kwh"`
	ConsumptionTariff1KWh float64 `json:"consumption_tariff1_kwh"`
	ConsumptionTariff2KWh float64 `json:"consumption_tariff2_kwh"`
	// Lifetime exported energy in kWh, total and per tariff
	ProductionTotalKWh   float64 `json:"production_total_kwh"`
	ProductionTariff1KWh float64 `json:"production_tariff1_kwh"`
	ProductionTariff2KWh float64 `json:"production_tariff2_kwh"`
	// Phase voltages in V
	Phase1Voltage float64 `json:"phase1_voltage"`
	Phase2Voltage float64 `json:"phase2_voltage"`
	Phase3Voltage float64 `json:"phase3_voltage"`
	// Phase currents in A
	Phase1Current float64 `json:"phase1_current"`
	Phase2Current float64 `json:"phase2_current"`
	Phase3Current float64 `json:"phase3_current"`
	// Phase power factors
	Phase1PowerFactor float64 `json:"phase1_power_factor"`
	Phase2PowerFactor float64 `json:"phase2_power_factor"`
	Phase3PowerFactor float64 `json:"phase3_power_factor"`
	// Grid frequency in Hz
	Frequency float64 `json:"frequency"`
	// Phase real power in W, reported by the meter or derived from V*I*PF
	Phase1Power float64 `json:"phase1_power"`
	Phase2Power float64 `json:"phase2_power"`
	Phase3Power float64 `json:"phase3_power"`
	// Sum of the three phase powers in W
	TotalPower float64 `json:"total_power"`
	// Capture instant, local time
	Timestamp string `json:"timestamp"`
}

type MeterInfo struct {
	Port           string
	Identification string
	Vendor         string
	Model          string
	BaudRate       int
}

type MeterReader interface {
	Open() error
	Close() error
	GetInfo() (*MeterInfo, error)
	ReadCycle() (*MeterReading, error)
	State() ConnectionState
}

// ProtocolConfig carries everything one connection needs. Values are fixed
// at construction; nothing here mutates after Open.
type ProtocolConfig struct {
	// Fixed serial device path. Empty enables candidate discovery.
	PortPath string
	// Substring candidate port names must contain during discovery.
	PortFilter string
	// Substring the identification line must contain.
	DeviceId string
	// Per-line read timeout once a meter is attached.
	ReadTimeout time.Duration
	// Per-line read timeout while probing candidates.
	ProbeTimeout time.Duration
	// Step up to the advertised baud rate after identification.
	BaudNegotiation bool
	// Wake-up window between the init sequence and the identification line.
	SettleDelay time.Duration
	// Protocol switch window between the baud acknowledge and the change.
	SwitchDelay time.Duration
	// Idle window between poll cycles.
	PollDelay time.Duration
}

func DefaultProtocolConfig(deviceId string) ProtocolConfig {
	return ProtocolConfig{
		PortFilter:      "ttyUSB",
		DeviceId:        deviceId,
		ReadTimeout:     10 * time.Second,
		ProbeTimeout:    3 * time.Second,
		BaudNegotiation: true,
		SettleDelay:     500 * time.Millisecond,
		SwitchDelay:     300 * time.Millisecond,
		PollDelay:       1 * time.Second,
	}
}

// round2 rounds to two decimals, half away from zero.
func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
