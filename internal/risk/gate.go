package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Gate runs every pre-trade check against externally-sourced context and
// combines the results into one audited decision. It is pure apart from
// producing the decision record: throttle and loss counters are only read.
type Gate struct {
	limits   Limits
	provider ContextProvider
}

// NewGate creates a gate with the given limits and context provider.
func NewGate(limits Limits, provider ContextProvider) *Gate {
	return &Gate{limits: limits, provider: provider}
}

// Evaluate runs the checks in a fixed order. The kill switch short-circuits
// to an immediate reject; otherwise every check runs and every failure is
// recorded, so the first reason is the primary one but none are lost.
func (g *Gate) Evaluate(ctx context.Context, sig schema.Signal, key string) (schema.RiskDecision, error) {
	decision := schema.RiskDecision{
		SignalKey:   key,
		StrategyID:  sig.StrategyID,
		Symbol:      sig.Symbol,
		Outcome:     schema.RiskAccept,
		EvaluatedAt: time.Now().UTC(),
	}

	engaged, err := g.provider.KillSwitchEngaged(ctx)
	if err != nil {
		return decision, errors.Wrap(err, "kill switch check")
	}
	if engaged {
		decision.Outcome = schema.RiskReject
		decision.Reasons = []schema.RejectReason{schema.ReasonKillSwitchEngaged}
		decision.Details = []string{"kill switch engaged: trading halted"}
		return decision, nil
	}

	fail := func(reason schema.RejectReason, detail string) {
		decision.Outcome = schema.RiskReject
		decision.Reasons = append(decision.Reasons, reason)
		decision.Details = append(decision.Details, detail)
	}

	position, err := g.provider.CurrentExposure(ctx, sig.Symbol)
	if err != nil {
		return decision, errors.Wrap(err, "fetch exposure")
	}
	newExposure := projectExposure(position, sig)

	if g.limits.MaxPositionSizeUSD.IsPositive() && newExposure.GreaterThan(g.limits.MaxPositionSizeUSD) {
		fail(schema.ReasonMaxPositionSize,
			fmt.Sprintf("position limit exceeded: %s > %s", newExposure, g.limits.MaxPositionSizeUSD))
	}

	portfolioValue, err := g.provider.PortfolioValue(ctx)
	if err != nil {
		return decision, errors.Wrap(err, "fetch portfolio value")
	}
	if g.limits.MaxSingleAssetPct.IsPositive() && portfolioValue.IsPositive() {
		pct := newExposure.Div(portfolioValue)
		if pct.GreaterThan(g.limits.MaxSingleAssetPct) {
			fail(schema.ReasonMaxConcentration,
				fmt.Sprintf("single asset concentration exceeded: %s > %s", pct, g.limits.MaxSingleAssetPct))
		}
	}

	if g.limits.MaxTotalExposureUSD.IsPositive() {
		total, err := g.provider.TotalExposure(ctx)
		if err != nil {
			return decision, errors.Wrap(err, "fetch total exposure")
		}
		newTotal := total.Sub(position.Abs()).Add(newExposure)
		if newTotal.GreaterThan(g.limits.MaxTotalExposureUSD) {
			fail(schema.ReasonMaxTotalExposure,
				fmt.Sprintf("total exposure limit exceeded: %s > %s", newTotal, g.limits.MaxTotalExposureUSD))
		}
	}

	strategyPnL, err := g.provider.DailyLoss(ctx, sig.StrategyID)
	if err != nil {
		return decision, errors.Wrap(err, "fetch strategy pnl")
	}
	if lossExceeded(strategyPnL, portfolioValue, g.limits) {
		fail(schema.ReasonDailyLossLimit,
			fmt.Sprintf("daily loss limit exceeded for %s: pnl %s", sig.StrategyID, strategyPnL))
	}

	totalPnL, err := g.provider.TotalDailyLoss(ctx)
	if err != nil {
		return decision, errors.Wrap(err, "fetch total pnl")
	}
	if g.limits.MaxDailyLossUSD.IsPositive() && totalPnL.IsNegative() && totalPnL.Abs().GreaterThan(g.limits.MaxDailyLossUSD) {
		fail(schema.ReasonTotalDailyLoss,
			fmt.Sprintf("total daily loss limit exceeded: pnl %s", totalPnL))
	}

	notional := sig.OrderNotional()
	if g.limits.MaxOrderNotionalUSD.IsPositive() && notional.GreaterThan(g.limits.MaxOrderNotionalUSD) {
		fail(schema.ReasonMaxOrderNotional,
			fmt.Sprintf("order notional exceeds limit: %s > %s", notional, g.limits.MaxOrderNotionalUSD))
	}
	if g.limits.MinOrderNotionalUSD.IsPositive() && notional.LessThan(g.limits.MinOrderNotionalUSD) {
		fail(schema.ReasonMinOrderNotional,
			fmt.Sprintf("order notional below minimum: %s < %s", notional, g.limits.MinOrderNotionalUSD))
	}

	if g.limits.MaxSlippageBps > 0 && sig.Constraints.MaxSlippageBps > g.limits.MaxSlippageBps {
		fail(schema.ReasonSlippageLimit,
			fmt.Sprintf("slippage constraint exceeds limit: %d > %d bps", sig.Constraints.MaxSlippageBps, g.limits.MaxSlippageBps))
	}

	if g.limits.MaxOrdersPerMinute > 0 {
		count, err := g.provider.ThrottleCount(ctx, sig.StrategyID, time.Minute)
		if err != nil {
			return decision, errors.Wrap(err, "fetch throttle count")
		}
		if count >= g.limits.MaxOrdersPerMinute {
			fail(schema.ReasonRateThrottle,
				fmt.Sprintf("rate limit exceeded: %d orders in last minute (max %d)", count, g.limits.MaxOrdersPerMinute))
		}
	}
	if g.limits.MaxOrdersPerHour > 0 {
		count, err := g.provider.ThrottleCount(ctx, sig.StrategyID, time.Hour)
		if err != nil {
			return decision, errors.Wrap(err, "fetch throttle count")
		}
		if count >= g.limits.MaxOrdersPerHour {
			fail(schema.ReasonRateThrottle,
				fmt.Sprintf("rate limit exceeded: %d orders in last hour (max %d)", count, g.limits.MaxOrdersPerHour))
		}
	}

	return decision, nil
}

// projectExposure returns the absolute exposure the symbol would carry
// after executing the signal.
func projectExposure(position decimal.Decimal, sig schema.Signal) decimal.Decimal {
	if sig.Side == schema.SideBuy {
		return position.Add(sig.TargetExposure).Abs()
	}
	return position.Sub(sig.TargetExposure).Abs()
}

func lossExceeded(pnl, portfolioValue decimal.Decimal, limits Limits) bool {
	if !pnl.IsNegative() {
		return false
	}
	loss := pnl.Abs()
	if limits.MaxDailyLossUSD.IsPositive() && loss.GreaterThan(limits.MaxDailyLossUSD) {
		return true
	}
	if limits.MaxDailyLossPct.IsPositive() && portfolioValue.IsPositive() {
		if loss.Div(portfolioValue).GreaterThan(limits.MaxDailyLossPct) {
			return true
		}
	}
	return false
}
