package events

import (
	. "github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"
)

func MeterReadingToUpdateEvents(r *iec62056_serial.MeterReading) []any {
	var events []any

	// Energy counters
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CONSUMPTION_TOTAL,
		},
		Value:    r.ConsumptionTotalKWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CONSUMPTION_TARIFF1,
		},
		Value:    r.ConsumptionTariff1KWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_CONSUMPTION_TARIFF2,
		},
		Value:    r.ConsumptionTariff2KWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PRODUCTION_TOTAL,
		},
		Value:    r.ProductionTotalKWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PRODUCTION_TARIFF1,
		},
		Value:    r.ProductionTariff1KWh,
		Decimals: 3,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PRODUCTION_TARIFF2,
		},
		Value:    r.ProductionTariff2KWh,
		Decimals: 3,
	})

	// Phase voltages
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE1_VOLTAGE,
		},
		Value:    r.Phase1Voltage,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE2_VOLTAGE,
		},
		Value:    r.Phase2Voltage,
		Decimals: 1,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE3_VOLTAGE,
		},
		Value:    r.Phase3Voltage,
		Decimals: 1,
	})

	// Phase currents
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE1_CURRENT,
		},
		Value:    r.Phase1Current,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE2_CURRENT,
		},
		Value:    r.Phase2Current,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE3_CURRENT,
		},
		Value:    r.Phase3Current,
		Decimals: 2,
	})

	// Phase power factors
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE1_POWER_FACTOR,
		},
		Value:    r.Phase1PowerFactor,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE2_POWER_FACTOR,
		},
		Value:    r.Phase2PowerFactor,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE3_POWER_FACTOR,
		},
		Value:    r.Phase3PowerFactor,
		Decimals: 2,
	})

	// Grid frequency
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_GRID_FREQUENCY,
		},
		Value:    r.Frequency,
		Decimals: 2,
	})

	// Phase powers
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE1_POWER,
		},
		Value:    r.Phase1Power,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE2_POWER,
		},
		Value:    r.Phase2Power,
		Decimals: 2,
	})
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_PHASE3_POWER,
		},
		Value:    r.Phase3Power,
		Decimals: 2,
	})

	// Total power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_TOTAL_POWER,
		},
		Value:    r.TotalPower,
		Decimals: 2,
	})

	// Meter clock
	if r.Time != "" {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_METER_TIME,
			},
			Value: r.Time,
		})
	}
	if r.Date != "" {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: SENSOR_ID_METER_DATE,
			},
			Value: r.Date,
		})
	}

	return events
}

func MeterReadingToReadingEvent(r *iec62056_serial.MeterReading) any {
	return MeterReadingUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: r.DeviceId,
		},
		Reading: r,
	}
}
