package domain

import (
	"fmt"

	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals uint
}

type BinarySensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// MeterReadingUpdateEvent carries a whole decoded telegram so it can be
// published as a single JSON document next to the per-sensor states.
type MeterReadingUpdateEvent struct {
	SensorUpdateEventMixIn
	Reading *iec62056_serial.MeterReading
}
