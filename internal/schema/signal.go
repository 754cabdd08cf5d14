package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"main/pkg/exception"
)

// Side describes order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TimeHorizon describes the intended holding period of a signal.
type TimeHorizon string

const (
	HorizonIntraday TimeHorizon = "INTRADAY"
	HorizonSwing    TimeHorizon = "SWING"
	HorizonLong     TimeHorizon = "LONG"
)

// SignalConstraints bound how a signal may be executed.
type SignalConstraints struct {
	MaxSlippageBps int64           `json:"max_slippage_bps"`
	MaxNotional    decimal.Decimal `json:"max_notional"`
}

// Signal is the immutable trading intent proposed by a strategy process.
// Legs is optional: when present the strategy declared a combo and the
// router builds a spread instead of a single order.
type Signal struct {
	StrategyID     string            `json:"strategy_id"`
	Symbol         string            `json:"symbol"`
	Side           Side              `json:"side"`
	Confidence     float64           `json:"confidence"`
	TargetExposure decimal.Decimal   `json:"target_exposure"`
	TimeHorizon    TimeHorizon       `json:"time_horizon"`
	Constraints    SignalConstraints `json:"constraints"`
	Legs           []Leg             `json:"legs,omitempty"`
	NetLimitPrice  decimal.Decimal   `json:"net_limit_price,omitempty"`
	Nonce          string            `json:"nonce,omitempty"`
}

// Validate checks the signal against the ingestion contract.
func (s Signal) Validate() error {
	if s.StrategyID == "" {
		return exception.ErrSignalEmptyStrategy
	}
	if !validSymbol(s.Symbol) {
		return exception.ErrSignalInvalidSymbol
	}
	if s.Side != SideBuy && s.Side != SideSell {
		return exception.ErrSignalInvalidSide
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return exception.ErrSignalInvalidConfidence
	}
	if !s.TargetExposure.IsPositive() {
		return exception.ErrSignalInvalidExposure
	}
	switch s.TimeHorizon {
	case HorizonIntraday, HorizonSwing, HorizonLong:
	default:
		return exception.ErrSignalInvalidHorizon
	}
	if s.Constraints.MaxSlippageBps < 0 || s.Constraints.MaxSlippageBps > 1000 {
		return exception.ErrSignalInvalidSlippage
	}
	if !s.Constraints.MaxNotional.IsZero() && !s.Constraints.MaxNotional.IsPositive() {
		return exception.ErrSignalInvalidNotional
	}
	return nil
}

// OrderNotional returns the notional the signal asks for, capped by the
// max_notional constraint when one is set.
func (s Signal) OrderNotional() decimal.Decimal {
	if !s.Constraints.MaxNotional.IsZero() && s.TargetExposure.GreaterThan(s.Constraints.MaxNotional) {
		return s.Constraints.MaxNotional
	}
	return s.TargetExposure
}

// RequestKey derives the deterministic idempotency key for the signal.
// The nonce keeps intentional re-submissions apart; absent a nonce the
// ingestion minute buckets retried deliveries together.
func (s Signal) RequestKey(now time.Time) string {
	nonce := s.Nonce
	if nonce == "" {
		nonce = now.UTC().Truncate(time.Minute).Format("200601021504")
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%s|%s|%s",
		s.StrategyID, s.Symbol, s.Side, s.TargetExposure.String(), nonce))
	return hex.EncodeToString(sum[:16])
}

func validSymbol(symbol string) bool {
	if symbol == "" {
		return false
	}
	for _, r := range symbol {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return false
		}
	}
	return true
}
