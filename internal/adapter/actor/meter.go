package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/internal/core/port"
	"github.com/berfenger/optimeter2mqtt/internal/util/actorutil"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

type MeterActor struct {
	behavior  actor.Behavior
	stash     *actorutil.Stash
	meter     iec62056_serial.MeterReader
	reconnect port.MeterReconnectLogic
	logger    *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewMeterActor(meter iec62056_serial.MeterReader, reconnect port.MeterReconnectLogic, logger *zap.Logger) *MeterActor {
	act := &MeterActor{
		meter:     meter,
		reconnect: reconnect,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_METER, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MeterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MeterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("meter@starting started")
		// probe and open the serial connection. On failure the supervisor
		// restarts this actor with backoff, which probes again.
		err := state.meter.Open()
		if err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.meter.Close()
	default:
		state.logger.Debug("meter@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MeterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("meter@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: true,
			State:   iec62056_serial.ConnectionStateToString(state.meter.State()),
		})
	case domain.GetMeterInfoRequest:
		state.logger.Debug("meter@default: GetMeterInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getMeterInfo),
			mapTaskResult[domain.GetMeterInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetMeterInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(5 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingMeter)
	case domain.ReadMeterRequest:
		state.logger.Debug("meter@default: ReadMeterRequest")
		sender := ctx.Sender()
		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readCycle),
			mapTaskResult[domain.ReadMeterResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ReadMeterResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(30 * time.Second).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingMeter)
	case *actor.Restarting:
		// close so the restarted instance probes a fresh connection
		state.meter.Close()
	case *actor.Stopping:
		state.meter.Close()
	default:
		state.logger.Debug("meter@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MeterActor) WaitingMeter(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		// a cycle in flight must not starve health checks, it can take
		// seconds at 300 baud
		state.logger.Debug("meter@WaitingMeter ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_METER,
			Healthy: true,
			State:   "busy",
		})
	case backgroundTaskResult:
		state.logger.Debug("meter@WaitingMeter backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		if resp, ok := msg.message.(domain.ReadMeterResponse); ok {
			tick := state.reconnect.OnCycleResult(resp.GetResponseError())
			if tick.Decision == domain.ReconnectDecisionReconnect {
				// let the supervisor close the connection and probe again
				panic(resp.GetResponseError())
			}
		}
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		state.meter.Close()
	case *actor.Stopping:
		state.meter.Close()
	default:
		state.logger.Debug("meter@WaitingMeter stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *MeterActor) getMeterInfo() (*domain.GetMeterInfoResponse, error) {
	info, err := a.meter.GetInfo()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetMeterInfoResponse{
		Info: info,
	}, nil
}

func (a *MeterActor) readCycle() (*domain.ReadMeterResponse, error) {
	reading, err := a.meter.ReadCycle()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.ReadMeterResponse{
		Reading: reading,
	}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
