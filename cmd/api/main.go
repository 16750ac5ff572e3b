package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/optimeter2mqtt/internal/adapter/actor"
	"github.com/berfenger/optimeter2mqtt/internal/config"
	"github.com/berfenger/optimeter2mqtt/internal/core/actor"
	"github.com/berfenger/optimeter2mqtt/internal/core/service"
	"github.com/berfenger/optimeter2mqtt/internal/server"
	"github.com/berfenger/optimeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// init meter actor provider
	meterProv, err := meterActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, meterProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => OPTIMETER_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("OPTIMETER_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("optimeter")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if cfg.Serial.DeviceId == "" {
		return nil, errors.New("config param serial.device_id must not be empty")
	}
	if cfg.Serial.ReadTimeoutMillis == 0 {
		return nil, errors.New("config param serial.read_timeout_millis should be > 0")
	}
	if cfg.Serial.ProbeTimeoutMillis == 0 {
		return nil, errors.New("config param serial.probe_timeout_millis should be > 0")
	}
	if cfg.MonitorConfig.PollIntervalMillis < 200 {
		return nil, errors.New("config param monitor.poll_interval_millis should be >= 200")
	}

	return &cfg, nil
}

func meterActorProvider(cfg *config.Config, logger *zap.Logger) (actor.MeterActorProvider, error) {

	protoCfg := iec62056_serial.DefaultProtocolConfig(cfg.Serial.DeviceId)
	protoCfg.PortPath = cfg.Serial.Port
	protoCfg.PortFilter = cfg.Serial.PortFilter
	protoCfg.ReadTimeout = time.Duration(cfg.Serial.ReadTimeoutMillis) * time.Millisecond
	protoCfg.ProbeTimeout = time.Duration(cfg.Serial.ProbeTimeoutMillis) * time.Millisecond
	protoCfg.BaudNegotiation = cfg.Serial.BaudNegotiation
	// the monitor actor spaces out poll cycles
	protoCfg.PollDelay = 0

	meter, err := iec62056_serial.CreateSerialMeterReader(protoCfg, logger, nil)
	if err != nil {
		return nil, err
	}

	reconnect := service.NewMeterReconnectLogic(cfg.MonitorConfig.MaxCycleFailures, logger)

	return func() *adactor.MeterActor {
		return adactor.NewMeterActor(meter, reconnect, logger)
	}, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("serial.port", "")
	viper.SetDefault("serial.port_filter", "ttyUSB")
	viper.SetDefault("serial.device_id", "ISk5MT174")
	viper.SetDefault("serial.read_timeout_millis", 10000)
	viper.SetDefault("serial.probe_timeout_millis", 3000)
	viper.SetDefault("serial.baud_negotiation", true)
	viper.SetDefault("monitor.poll_interval_millis", 1000)
	viper.SetDefault("monitor.max_cycle_failures", 5)
	viper.SetDefault("mqtt.host", "127.0.0.1")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.client_id", "optimeter2mqtt")
	viper.SetDefault("mqtt.base_topic", "optimeter2mqtt")
	viper.SetDefault("mqtt.ha_discovery_enable", true)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("http_log", false)
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
