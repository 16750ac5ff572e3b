package mqtt

import (
	"testing"

	"github.com/berfenger/optimeter2mqtt/internal/config"
	"github.com/berfenger/optimeter2mqtt/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func testClient(baseTopic string) *MQTTClient {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: baseTopic,
		},
	}
	return CreateMQTTClient(cfg, OptsFromConfig(cfg), nil, nil)
}

func TestStateTopics(t *testing.T) {

	assert := assert.New(t)

	client := testClient("loremTopic")

	assert.Equal("loremTopic/sensor/total_power/state", client.SensorStateTopic("total_power"), "sensor state topic")
	assert.Equal("loremTopic/binary_sensor/bridge/state", client.BinarySensorStateTopic("bridge"), "binary sensor state topic")
	assert.Equal("loremTopic/bridge/state", client.BridgeStateTopic(), "bridge state topic")
	assert.Equal("loremTopic/reading", client.ReadingTopic(), "reading topic")
}

func TestDiscoveryTopic(t *testing.T) {

	assert := assert.New(t)

	sensor := domain.GenericSensor{
		Device: domain.Device{
			Id: "opti_meter_0a1b2c3d",
		},
		Id:         domain.SENSOR_ID_TOTAL_POWER,
		SensorType: domain.SENSOR_TYPE_SENSOR,
	}

	topic := HADiscoverySensorTopic("homeassistant", sensor)
	assert.Equal("homeassistant/sensor/opti_meter_0a1b2c3d/total_power/config", topic, "discovery topic")
}

func TestDiscoveryMessageBridgeSensor(t *testing.T) {

	assert := assert.New(t)

	client := testClient("optimeter2mqtt")

	bridge := domain.BridgeSensors(domain.BridgeDevice("optimeter2mqtt"))[0]
	msg := GenericSensorToHADiscoveryMessage(client, bridge)

	assert.Equal("optimeter2mqtt/bridge/state", msg.StateTopic, "bridge sensor uses the bridge state topic")
	assert.Equal(MQTT_PAYLOAD_ONLINE, msg.PayloadOn, "payload on")
	assert.Equal(MQTT_PAYLOAD_OFFLINE, msg.PayloadOff, "payload off")
	assert.Equal("mqtt", msg.Platform, "platform")
}

func TestDiscoveryMessageMeterSensor(t *testing.T) {

	assert := assert.New(t)

	client := testClient("optimeter2mqtt")

	meterDevice := domain.Device{
		Id:           "opti_meter_0a1b2c3d",
		Manufacturer: "ISk",
		Model:        "MT174-0001",
	}
	sensors := domain.MeterEnergySensors(meterDevice)
	msg := GenericSensorToHADiscoveryMessage(client, sensors[0])

	assert.Equal("optimeter2mqtt/sensor/consumption_total/state", msg.StateTopic, "state topic")
	assert.Equal("optimeter2mqtt/bridge/state", msg.AvTopic, "availability topic")
	assert.Equal(domain.DEVICE_CLASS_ENERGY, msg.DeviceClass, "device class")
	assert.Equal("kWh", msg.UnitOfMeasurement, "unit")
	assert.Equal([]string{"opti_meter_0a1b2c3d"}, msg.Device.Id, "device id")
}
