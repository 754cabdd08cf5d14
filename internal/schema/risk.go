package schema

import "time"

// RiskOutcome is the gate's verdict on a signal.
type RiskOutcome string

const (
	RiskAccept RiskOutcome = "ACCEPT"
	RiskReject RiskOutcome = "REJECT"
)

// RejectReason identifies a failed risk check.
type RejectReason string

const (
	ReasonKillSwitchEngaged RejectReason = "KILL_SWITCH_ENGAGED"
	ReasonMaxPositionSize   RejectReason = "MAX_POSITION_SIZE"
	ReasonMaxConcentration  RejectReason = "MAX_CONCENTRATION"
	ReasonMaxTotalExposure  RejectReason = "MAX_TOTAL_EXPOSURE"
	ReasonDailyLossLimit    RejectReason = "DAILY_LOSS_LIMIT"
	ReasonTotalDailyLoss    RejectReason = "TOTAL_DAILY_LOSS"
	ReasonMaxOrderNotional  RejectReason = "MAX_ORDER_NOTIONAL"
	ReasonMinOrderNotional  RejectReason = "MIN_ORDER_NOTIONAL"
	ReasonSlippageLimit     RejectReason = "SLIPPAGE_LIMIT"
	ReasonRateThrottle      RejectReason = "RATE_THROTTLE"
)

// RiskDecision is the audited unit of the risk gate. Reasons is ordered by
// check order; the first entry is the primary reason.
type RiskDecision struct {
	SignalKey   string         `json:"signal_key"`
	StrategyID  string         `json:"strategy_id"`
	Symbol      string         `json:"symbol"`
	Outcome     RiskOutcome    `json:"outcome"`
	Reasons     []RejectReason `json:"reasons,omitempty"`
	Details     []string       `json:"details,omitempty"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Accepted reports whether the signal may proceed to routing.
func (d RiskDecision) Accepted() bool {
	return d.Outcome == RiskAccept
}
