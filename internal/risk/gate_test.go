package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

type stubProvider struct {
	exposure    decimal.Decimal
	total       decimal.Decimal
	value       decimal.Decimal
	strategyPnL decimal.Decimal
	totalPnL    decimal.Decimal
	throttle    int
	killSwitch  bool
}

func (s *stubProvider) CurrentExposure(context.Context, string) (decimal.Decimal, error) {
	return s.exposure, nil
}
func (s *stubProvider) TotalExposure(context.Context) (decimal.Decimal, error) {
	return s.total, nil
}
func (s *stubProvider) PortfolioValue(context.Context) (decimal.Decimal, error) {
	return s.value, nil
}
func (s *stubProvider) DailyLoss(context.Context, string) (decimal.Decimal, error) {
	return s.strategyPnL, nil
}
func (s *stubProvider) TotalDailyLoss(context.Context) (decimal.Decimal, error) {
	return s.totalPnL, nil
}
func (s *stubProvider) ThrottleCount(context.Context, string, time.Duration) (int, error) {
	return s.throttle, nil
}
func (s *stubProvider) KillSwitchEngaged(context.Context) (bool, error) {
	return s.killSwitch, nil
}

func healthyProvider() *stubProvider {
	return &stubProvider{
		value: decimal.NewFromInt(1_000_000),
	}
}

func gateSignal() schema.Signal {
	return schema.Signal{
		StrategyID:     "momentum-1",
		Symbol:         "AAPL",
		Side:           schema.SideBuy,
		Confidence:     0.9,
		TargetExposure: decimal.NewFromInt(50_000),
		TimeHorizon:    schema.HorizonIntraday,
		Constraints:    schema.SignalConstraints{MaxSlippageBps: 20},
	}
}

func TestEvaluateAccepts(t *testing.T) {
	gate := NewGate(DefaultLimits(), healthyProvider())

	decision, err := gate.Evaluate(context.Background(), gateSignal(), "key-1")
	require.NoError(t, err)
	assert.True(t, decision.Accepted())
	assert.Empty(t, decision.Reasons)
	assert.Equal(t, "key-1", decision.SignalKey)
}

func TestKillSwitchShortCircuits(t *testing.T) {
	provider := healthyProvider()
	provider.killSwitch = true
	// Everything else is also broken; none of it may be evaluated.
	provider.exposure = decimal.NewFromInt(100_000_000)
	provider.totalPnL = decimal.NewFromInt(-10_000_000)

	gate := NewGate(DefaultLimits(), provider)
	decision, err := gate.Evaluate(context.Background(), gateSignal(), "key-2")
	require.NoError(t, err)

	assert.False(t, decision.Accepted())
	assert.Equal(t, []schema.RejectReason{schema.ReasonKillSwitchEngaged}, decision.Reasons,
		"kill switch must be the only reason")
}

func TestEvaluateAccumulatesAllFailures(t *testing.T) {
	provider := healthyProvider()
	provider.exposure = decimal.NewFromInt(990_000)
	provider.strategyPnL = decimal.NewFromInt(-150_000)
	provider.throttle = 50

	sig := gateSignal()
	sig.TargetExposure = decimal.NewFromInt(600_000)

	gate := NewGate(DefaultLimits(), provider)
	decision, err := gate.Evaluate(context.Background(), sig, "key-3")
	require.NoError(t, err)

	assert.False(t, decision.Accepted())
	assert.Contains(t, decision.Reasons, schema.ReasonMaxPositionSize)
	assert.Contains(t, decision.Reasons, schema.ReasonMaxConcentration)
	assert.Contains(t, decision.Reasons, schema.ReasonDailyLossLimit)
	assert.Contains(t, decision.Reasons, schema.ReasonMaxOrderNotional)
	assert.Contains(t, decision.Reasons, schema.ReasonRateThrottle)
	assert.Len(t, decision.Details, len(decision.Reasons))
	assert.Equal(t, schema.ReasonMaxPositionSize, decision.Reasons[0],
		"first reason is the primary one")
}

func TestMinNotionalAndSlippage(t *testing.T) {
	gate := NewGate(DefaultLimits(), healthyProvider())

	small := gateSignal()
	small.TargetExposure = decimal.NewFromInt(500)
	decision, err := gate.Evaluate(context.Background(), small, "key-4")
	require.NoError(t, err)
	assert.Contains(t, decision.Reasons, schema.ReasonMinOrderNotional)

	sloppy := gateSignal()
	sloppy.Constraints.MaxSlippageBps = 80
	decision, err = gate.Evaluate(context.Background(), sloppy, "key-5")
	require.NoError(t, err)
	assert.Contains(t, decision.Reasons, schema.ReasonSlippageLimit)
}

func TestSellReducesProjectedExposure(t *testing.T) {
	provider := healthyProvider()
	provider.exposure = decimal.NewFromInt(900_000)
	provider.value = decimal.NewFromInt(10_000_000)

	sig := gateSignal()
	sig.Side = schema.SideSell
	sig.TargetExposure = decimal.NewFromInt(400_000)

	gate := NewGate(DefaultLimits(), provider)
	decision, err := gate.Evaluate(context.Background(), sig, "key-6")
	require.NoError(t, err)
	assert.True(t, decision.Accepted(), "reasons: %v", decision.Reasons)
}
