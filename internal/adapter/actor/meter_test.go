package actor

import (
	"testing"
	"time"

	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/internal/core/service"
	"github.com/berfenger/optimeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetMeterInfoMeterActor(t *testing.T) {

	assert := assert.New(t)

	meter, err := iec62056_serial.CreateTestMeterReader()
	if err != nil {
		t.Error(err)
		return
	}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(meter, service.NewMeterReconnectLogic(5, logger), logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.GetMeterInfoRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetMeterInfoResponse)

	assert.Equal(resp.Info.Vendor, "ISk", "Meter vendor")
	assert.Equal(resp.Info.Model, "MT174-0001", "Meter model")
	assert.Equal(resp.Info.Identification, "ISk5MT174-0001", "Meter identification")
	assert.Equal(resp.Info.BaudRate, 9600, "Meter negotiated baud rate")

	context.Stop(pid)

	as.Shutdown()
}

func TestReadMeterMeterActor(t *testing.T) {

	assert := assert.New(t)

	meter, err := iec62056_serial.CreateTestMeterReader()
	if err != nil {
		t.Error(err)
		return
	}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(meter, service.NewMeterReconnectLogic(5, logger), logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.ReadMeterRequest{}

	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadMeterResponse)

	assert.False(resp.HasResponseError(), "Read cycle error")
	assert.Equal(resp.Reading.ConsumptionTotalKWh, 12345.678, "Consumption total bounds")
	assert.Equal(resp.Reading.TotalPower, 398.09, "Total power value")
	assert.True(resp.Reading.Phase1Voltage > 0, "Phase 1 voltage bounds")
	assert.True(resp.Reading.Frequency > 0, "Grid frequency bounds")

	context.Stop(pid)

	as.Shutdown()
}

func TestReadMeterErrorMeterActor(t *testing.T) {

	assert := assert.New(t)

	meter := &iec62056_serial.TestMeterReader{
		CycleErr: iec62056_serial.ErrReadTimeout,
	}

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMeterActor(meter, service.NewMeterReconnectLogic(5, logger), logger)
	})
	pid := context.Spawn(props)

	time.Sleep(1 * time.Second)

	msg := domain.ReadMeterRequest{}

	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ReadMeterResponse)

	assert.True(resp.HasResponseError(), "Read cycle error")
	assert.Nil(resp.Reading, "Reading on failed cycle")

	context.Stop(pid)

	as.Shutdown()
}
