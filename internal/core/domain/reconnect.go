package domain

type ReconnectDecision int

const (
	ReconnectDecisionContinue ReconnectDecision = iota
	ReconnectDecisionReconnect
)

type MeterCycleTickResult struct {
	Decision            ReconnectDecision
	ConsecutiveFailures uint32
}
