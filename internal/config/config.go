package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Serial   SerialConfig `mapstructure:"serial"`
	MQTT     MQTTConfig   `mapstructure:"mqtt"`

	MonitorConfig MonitorConfig `mapstructure:"monitor"`
	Port          uint          `mapstructure:"port"`
	HttpLog       bool          `mapstructure:"http_log"`
}

type SerialConfig struct {
	Port               string `mapstructure:"port"`
	PortFilter         string `mapstructure:"port_filter"`
	DeviceId           string `mapstructure:"device_id"`
	ReadTimeoutMillis  uint32 `mapstructure:"read_timeout_millis"`
	ProbeTimeoutMillis uint32 `mapstructure:"probe_timeout_millis"`
	BaudNegotiation    bool   `mapstructure:"baud_negotiation"`
}

type MonitorConfig struct {
	PollIntervalMillis uint32 `mapstructure:"poll_interval_millis"`
	MaxCycleFailures   uint32 `mapstructure:"max_cycle_failures"`
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	ClientId          string `mapstructure:"client_id"`
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
