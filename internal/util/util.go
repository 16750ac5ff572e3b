package util

import (
	"github.com/berfenger/optimeter2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialConfig{
			PortFilter:         "ttyUSB",
			DeviceId:           "ISk5MT174",
			ReadTimeoutMillis:  10000,
			ProbeTimeoutMillis: 3000,
			BaudNegotiation:    true,
		},
		MQTT: config.MQTTConfig{
			Host: "localhost",
			Port: 1883,
		},
		MonitorConfig: config.MonitorConfig{
			PollIntervalMillis: 1000,
			MaxCycleFailures:   5,
		},
		Port: 8080,
	}
}
