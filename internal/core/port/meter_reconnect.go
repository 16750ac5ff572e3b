package port

import (
	"github.com/berfenger/optimeter2mqtt/internal/core/domain"
)

type MeterReconnectLogic interface {
	OnCycleResult(err error) domain.MeterCycleTickResult
	SetMaxConsecutiveFailures(max uint32)
	MaxConsecutiveFailures() uint32
}
