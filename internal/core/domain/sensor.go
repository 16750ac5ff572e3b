package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE         = "bridge"
	SENSOR_ID_METER_TIME           = "meter_time"
	SENSOR_ID_METER_DATE           = "meter_date"
	SENSOR_ID_CONSUMPTION_TOTAL    = "consumption_total"
	SENSOR_ID_CONSUMPTION_TARIFF1  = "consumption_tariff1"
	SENSOR_ID_CONSUMPTION_TARIFF2  = "consumption_tariff2"
	SENSOR_ID_PRODUCTION_TOTAL     = "production_total"
	SENSOR_ID_PRODUCTION_TARIFF1   = "production_tariff1"
	SENSOR_ID_PRODUCTION_TARIFF2   = "production_tariff2"
	SENSOR_ID_PHASE1_VOLTAGE       = "phase1_voltage"
	SENSOR_ID_PHASE2_VOLTAGE       = "phase2_voltage"
	SENSOR_ID_PHASE3_VOLTAGE       = "phase3_voltage"
	SENSOR_ID_PHASE1_CURRENT       = "phase1_current"
	SENSOR_ID_PHASE2_CURRENT       = "phase2_current"
	SENSOR_ID_PHASE3_CURRENT       = "phase3_current"
	SENSOR_ID_PHASE1_POWER_FACTOR  = "phase1_power_factor"
	SENSOR_ID_PHASE2_POWER_FACTOR  = "phase2_power_factor"
	SENSOR_ID_PHASE3_POWER_FACTOR  = "phase3_power_factor"
	SENSOR_ID_GRID_FREQUENCY       = "grid_frequency"
	SENSOR_ID_PHASE1_POWER         = "phase1_power"
	SENSOR_ID_PHASE2_POWER         = "phase2_power"
	SENSOR_ID_PHASE3_POWER         = "phase3_power"
	SENSOR_ID_TOTAL_POWER          = "total_power"
	STATE_CLASS_MEASUREMENT        = "measurement"
	STATE_CLASS_TOTAL_INCREASING   = "total_increasing"
	DEVICE_CLASS_CURRENT           = "current"
	DEVICE_CLASS_ENERGY            = "energy"
	DEVICE_CLASS_FREQUENCY         = "frequency"
	DEVICE_CLASS_POWER             = "power"
	DEVICE_CLASS_POWER_FACTOR      = "power_factor"
	DEVICE_CLASS_VOLTAGE           = "voltage"
	DEVICE_CLASS_CONNECTIVITY      = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC        = "diagnostic"
	ENTITY_CLASS_CONFIG            = "config"
	SENSOR_TYPE_SENSOR             = "sensor"
	SENSOR_TYPE_BINARY             = "binary_sensor"
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("optimeter_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Optimeter",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Optimeter %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(info *iec62056_serial.MeterInfo) Device {
	return Device{
		Id:           fmt.Sprintf("opti_meter_%s", md5HashShort(info.Identification)),
		Manufacturer: info.Vendor,
		Model:        info.Model,
		Name:         fmt.Sprintf("%s %s %s", info.Vendor, info.Model, md5HashShort(info.Identification)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func MeterEnergySensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	type row struct {
		id   string
		name string
	}
	rows := []row{
		{SENSOR_ID_CONSUMPTION_TOTAL, "Total energy consumed"},
		{SENSOR_ID_CONSUMPTION_TARIFF1, "Energy consumed tariff 1"},
		{SENSOR_ID_CONSUMPTION_TARIFF2, "Energy consumed tariff 2"},
		{SENSOR_ID_PRODUCTION_TOTAL, "Total energy produced"},
		{SENSOR_ID_PRODUCTION_TARIFF1, "Energy produced tariff 1"},
		{SENSOR_ID_PRODUCTION_TARIFF2, "Energy produced tariff 2"},
	}
	for _, r := range rows {
		sensors = append(sensors, GenericSensor{
			Device:            meterDevice,
			Id:                r.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              r.name,
			StateClass:        STATE_CLASS_TOTAL_INCREASING,
			DeviceClass:       DEVICE_CLASS_ENERGY,
			UnitOfMeasurement: "kWh",
			UniqueId:          uniqueId(meterDevice.Id, r.id),
		})
	}

	return sensors
}

func MeterPhaseSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	type row struct {
		id          string
		name        string
		deviceClass string
		unit        string
	}
	rows := []row{
		{SENSOR_ID_PHASE1_VOLTAGE, "Phase 1 voltage", DEVICE_CLASS_VOLTAGE, "V"},
		{SENSOR_ID_PHASE2_VOLTAGE, "Phase 2 voltage", DEVICE_CLASS_VOLTAGE, "V"},
		{SENSOR_ID_PHASE3_VOLTAGE, "Phase 3 voltage", DEVICE_CLASS_VOLTAGE, "V"},
		{SENSOR_ID_PHASE1_CURRENT, "Phase 1 current", DEVICE_CLASS_CURRENT, "A"},
		{SENSOR_ID_PHASE2_CURRENT, "Phase 2 current", DEVICE_CLASS_CURRENT, "A"},
		{SENSOR_ID_PHASE3_CURRENT, "Phase 3 current", DEVICE_CLASS_CURRENT, "A"},
		{SENSOR_ID_PHASE1_POWER, "Phase 1 power", DEVICE_CLASS_POWER, "W"},
		{SENSOR_ID_PHASE2_POWER, "Phase 2 power", DEVICE_CLASS_POWER, "W"},
		{SENSOR_ID_PHASE3_POWER, "Phase 3 power", DEVICE_CLASS_POWER, "W"},
		{SENSOR_ID_TOTAL_POWER, "Total power", DEVICE_CLASS_POWER, "W"},
	}
	for _, r := range rows {
		sensors = append(sensors, GenericSensor{
			Device:            meterDevice,
			Id:                r.id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              r.name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       r.deviceClass,
			UnitOfMeasurement: r.unit,
			UniqueId:          uniqueId(meterDevice.Id, r.id),
		})
	}

	// Power factors
	pfRows := []row{
		{SENSOR_ID_PHASE1_POWER_FACTOR, "Phase 1 power factor", DEVICE_CLASS_POWER_FACTOR, ""},
		{SENSOR_ID_PHASE2_POWER_FACTOR, "Phase 2 power factor", DEVICE_CLASS_POWER_FACTOR, ""},
		{SENSOR_ID_PHASE3_POWER_FACTOR, "Phase 3 power factor", DEVICE_CLASS_POWER_FACTOR, ""},
	}
	for _, r := range pfRows {
		sensors = append(sensors, GenericSensor{
			Device:           meterDevice,
			Id:               r.id,
			SensorType:       SENSOR_TYPE_SENSOR,
			Name:             r.name,
			StateClass:       STATE_CLASS_MEASUREMENT,
			DeviceClass:      r.deviceClass,
			EnabledByDefault: optionalBool(false),
			UniqueId:         uniqueId(meterDevice.Id, r.id),
		})
	}

	// Grid frequency
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SENSOR_ID_GRID_FREQUENCY,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Grid frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		EnabledByDefault:  optionalBool(false),
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_ID_GRID_FREQUENCY),
	})

	return sensors
}

func MeterClockSensors(meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Meter time
	sensors = append(sensors, GenericSensor{
		Device:           meterDevice,
		Id:               SENSOR_ID_METER_TIME,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Meter time",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		Icon:             "mdi:clock-outline",
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(meterDevice.Id, SENSOR_ID_METER_TIME),
	})

	// Meter date
	sensors = append(sensors, GenericSensor{
		Device:           meterDevice,
		Id:               SENSOR_ID_METER_DATE,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Meter date",
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		Icon:             "mdi:calendar",
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(meterDevice.Id, SENSOR_ID_METER_DATE),
	})

	return sensors
}

func MeterBaseSensors(meterDevice Device) []GenericSensor {
	var sensors []GenericSensor
	sensors = append(sensors, MeterEnergySensors(meterDevice)...)
	sensors = append(sensors, MeterPhaseSensors(meterDevice)...)
	sensors = append(sensors, MeterClockSensors(meterDevice)...)
	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
