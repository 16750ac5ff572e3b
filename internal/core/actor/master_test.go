package actor

import (
	"fmt"
	"testing"
	"time"

	adactor "github.com/berfenger/optimeter2mqtt/internal/adapter/actor"
	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/internal/core/service"
	"github.com/berfenger/optimeter2mqtt/internal/util"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	as := actor.NewActorSystem()
	context := as.Root

	cfg := util.LoadTestConfig()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, func() *adactor.MeterActor {
			return adactor.NewMeterActor(&iec62056_serial.TestMeterReader{}, service.NewMeterReconnectLogic(cfg.MonitorConfig.MaxCycleFailures, logger), logger)
		}, func(es *eventstream.EventStream) *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, es, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		//return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	fmt.Printf("Health response: %+v\n", healthResp)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")

	context.Stop(pid)

	as.Shutdown()
}
