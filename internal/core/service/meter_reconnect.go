package service

import (
	"errors"

	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
	"github.com/berfenger/optimeter2mqtt/internal/core/port"
	"github.com/berfenger/optimeter2mqtt/pkg/iec62056_serial"

	"go.uber.org/zap"
)

// DefaultMeterReconnectLogic decides when a failing serial connection should
// be torn down and reprobed. A cycle that fails because the port itself is
// unusable triggers an immediate reconnect. Transient cycle failures, such as
// a rejected handshake or a truncated telegram, keep the connection and only
// force a reconnect after maxFailures cycles fail in a row.
type DefaultMeterReconnectLogic struct {
	maxFailures uint32
	failures    uint32
	Logger      *zap.Logger
}

func NewMeterReconnectLogic(maxFailures uint32, logger *zap.Logger) *DefaultMeterReconnectLogic {
	return &DefaultMeterReconnectLogic{
		maxFailures: maxFailures,
		Logger:      logger,
	}
}

func (cfg *DefaultMeterReconnectLogic) OnCycleResult(err error) domain.MeterCycleTickResult {
	if err == nil {
		cfg.failures = 0
		return domain.MeterCycleTickResult{
			Decision: domain.ReconnectDecisionContinue,
		}
	}

	if isConnectionFatal(err) {
		cfg.Logger.Warn("meter_reconnect: connection is unusable, reconnecting", zap.Error(err))
		failures := cfg.failures
		cfg.failures = 0
		return domain.MeterCycleTickResult{
			Decision:            domain.ReconnectDecisionReconnect,
			ConsecutiveFailures: failures,
		}
	}

	cfg.failures++
	if cfg.maxFailures > 0 && cfg.failures >= cfg.maxFailures {
		cfg.Logger.Warn("meter_reconnect: too many failed cycles, reconnecting",
			zap.Uint32("failures", cfg.failures), zap.Error(err))
		failures := cfg.failures
		cfg.failures = 0
		return domain.MeterCycleTickResult{
			Decision:            domain.ReconnectDecisionReconnect,
			ConsecutiveFailures: failures,
		}
	}
	return domain.MeterCycleTickResult{
		Decision:            domain.ReconnectDecisionContinue,
		ConsecutiveFailures: cfg.failures,
	}
}

func (cfg *DefaultMeterReconnectLogic) SetMaxConsecutiveFailures(max uint32) {
	cfg.maxFailures = max
}

func (cfg *DefaultMeterReconnectLogic) MaxConsecutiveFailures() uint32 {
	return cfg.maxFailures
}

// isConnectionFatal reports whether the error means the connection cannot
// serve further cycles at all.
func isConnectionFatal(err error) bool {
	return errors.Is(err, iec62056_serial.ErrConnectionClosed) ||
		errors.Is(err, iec62056_serial.ErrBaudChangeFailed) ||
		errors.Is(err, iec62056_serial.ErrPortUnavailable)
}

// ensure interface compliance
var _ port.MeterReconnectLogic = (*DefaultMeterReconnectLogic)(nil)
