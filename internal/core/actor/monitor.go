package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/optimeter2mqtt/internal/config"
	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/internal/core/events"
	. "github.com/berfenger/optimeter2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// MonitorActor drives the meter poll loop. Each tick requests a full read
// cycle from the meter actor and publishes the decoded values on the event
// stream. The next tick is armed once the cycle finishes, so the poll
// interval is the idle time between cycles, not a fixed rate.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	meterActor  *actor.PID
	config      *config.Config
	eventStream *eventstream.EventStream

	logger *zap.Logger
}

type meterTick struct {
}

func NewMonitorActor(config *config.Config, meterActor *actor.PID, eventStream *eventstream.EventStream, logger *zap.Logger) *MonitorActor {
	act := &MonitorActor{
		config:      config,
		meterActor:  meterActor,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_MONITOR, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@starting started")

		if state.config.MonitorConfig.PollIntervalMillis > 0 {
			state.scheduler = scheduler.NewTimerScheduler(ctx)
		}
		// first cycle runs right away, the interval only spaces out
		// subsequent cycles
		ctx.Send(ctx.Self(), meterTick{})

		state.behavior.Become(state.DefaultReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("monitor@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   "idle",
		})
	case meterTick:
		state.logger.Debug("monitor@default tick")
		// read a full telegram from the meter
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.meterActor, domain.ReadMeterRequest{}, 35*time.Second), func(err error) any {
			return domain.ReadMeterResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingReadingReceive)
	default:
		state.logger.Debug("monitor@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingReadingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		// cycles take seconds, health checks are answered mid cycle
		state.logger.Debug("monitor@waiting: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_MONITOR,
			Healthy: true,
			State:   "reading",
		})
	case domain.ReadMeterResponse:
		if msg.HasResponseError() {
			// a failed cycle only skips publishing, reconnects are
			// handled meter side
			state.logger.Error("monitor@waiting ReadMeterResponse error", zap.Error(msg.GetResponseError()))
			state.scheduleNextTick(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("monitor@waiting ReadMeterResponse")
		if msg.Reading != nil {
			evs := events.MeterReadingToUpdateEvents(msg.Reading)
			for _, ev := range evs {
				state.eventStream.Publish(ev)
			}
			state.eventStream.Publish(events.MeterReadingToReadingEvent(msg.Reading))
		}

		state.scheduleNextTick(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("monitor@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) scheduleNextTick(ctx actor.Context) {
	if state.scheduler != nil {
		state.scheduler.RequestOnce(time.Duration(state.config.MonitorConfig.PollIntervalMillis)*time.Millisecond, ctx.Self(), meterTick{})
	}
}
