package broker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
	"main/pkg/exception"
)

func drainFills(t *testing.T, p *Paper, want int) []schema.Fill {
	t.Helper()
	fills := make([]schema.Fill, 0, want)
	for range want {
		select {
		case f := <-p.Fills():
			fills = append(fills, f)
		case <-time.After(time.Second):
			t.Fatalf("expected %d fills, got %d", want, len(fills))
		}
	}
	return fills
}

func TestPaperSubmitOrderFillsFully(t *testing.T) {
	p := NewPaper(PaperConfig{Atomic: true})

	order := &schema.Order{
		OrderID: "o1",
		Leg:     schema.EquityLeg("AAPL", schema.SideBuy, 10),
	}
	ref, err := p.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	fills := drainFills(t, p, 1)
	assert.Equal(t, "o1", fills[0].OrderID)
	assert.Equal(t, int64(10), fills[0].Quantity)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromFloat(175.50)))
}

func TestPaperSlippageWorksAgainstTaker(t *testing.T) {
	p := NewPaper(PaperConfig{SlippageBps: 100})

	buy := &schema.Order{OrderID: "b1", Leg: schema.EquityLeg("TSLA", schema.SideBuy, 1)}
	_, err := p.SubmitOrder(context.Background(), buy)
	require.NoError(t, err)

	sell := &schema.Order{OrderID: "s1", Leg: schema.EquityLeg("TSLA", schema.SideSell, 1)}
	_, err = p.SubmitOrder(context.Background(), sell)
	require.NoError(t, err)

	fills := drainFills(t, p, 2)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromFloat(252.50)), "buy pays up: got %s", fills[0].Price)
	assert.True(t, fills[1].Price.Equal(decimal.NewFromFloat(247.50)), "sell hits down: got %s", fills[1].Price)
}

func TestPaperLimitPriceOverridesMark(t *testing.T) {
	p := NewPaper(PaperConfig{SlippageBps: 100})

	order := &schema.Order{
		OrderID:    "o1",
		Leg:        schema.EquityLeg("MSFT", schema.SideBuy, 5),
		LimitPrice: decimal.NewFromFloat(379.00),
	}
	_, err := p.SubmitOrder(context.Background(), order)
	require.NoError(t, err)

	fills := drainFills(t, p, 1)
	assert.True(t, fills[0].Price.Equal(decimal.NewFromFloat(379.00)))
}

func TestPaperResubmitReturnsSameRef(t *testing.T) {
	p := NewPaper(PaperConfig{})

	order := &schema.Order{OrderID: "o1", Leg: schema.EquityLeg("AAPL", schema.SideBuy, 10)}
	ref1, err := p.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	ref2, err := p.SubmitOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, ref1, ref2)

	// The resubmit must not synthesize a second fill.
	drainFills(t, p, 1)
	select {
	case f := <-p.Fills():
		t.Fatalf("unexpected duplicate fill %s", f.FillID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPaperHaltRejectsSubmissions(t *testing.T) {
	p := NewPaper(PaperConfig{})
	p.Halt()

	order := &schema.Order{OrderID: "o1", Leg: schema.EquityLeg("AAPL", schema.SideBuy, 1)}
	_, err := p.SubmitOrder(context.Background(), order)
	assert.ErrorIs(t, err, exception.ErrBrokerRejected)

	p.Resume()
	_, err = p.SubmitOrder(context.Background(), order)
	assert.NoError(t, err)
}

func verticalSpread() *schema.SpreadOrder {
	exp := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)
	return &schema.SpreadOrder{
		SpreadID: "sp1",
		Legs: []schema.Leg{
			schema.OptionLeg("AAPL", schema.OptionCall, decimal.NewFromInt(170), exp, schema.SideBuy, 2),
			schema.OptionLeg("AAPL", schema.OptionCall, decimal.NewFromInt(180), exp, schema.SideSell, 2),
		},
	}
}

func TestPaperAtomicSpreadFillsEveryLeg(t *testing.T) {
	p := NewPaper(PaperConfig{Atomic: true})
	assert.True(t, p.AtomicSpreads())

	ref, err := p.SubmitSpread(context.Background(), verticalSpread())
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	fills := drainFills(t, p, 2)
	assert.Equal(t, 0, fills[0].LegIndex)
	assert.Equal(t, 1, fills[1].LegIndex)
	for _, f := range fills {
		assert.Equal(t, "sp1", f.SpreadID)
		assert.Equal(t, int64(2), f.Quantity)
	}
}

func TestPaperNonAtomicSpreadLeaksFirstLegOnly(t *testing.T) {
	p := NewPaper(PaperConfig{Atomic: false})

	_, err := p.SubmitSpread(context.Background(), verticalSpread())
	require.NoError(t, err)

	fills := drainFills(t, p, 1)
	assert.Equal(t, 0, fills[0].LegIndex)
	select {
	case f := <-p.Fills():
		t.Fatalf("non-atomic venue must not fill leg %d", f.LegIndex)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPaperCancel(t *testing.T) {
	p := NewPaper(PaperConfig{})

	_, err := p.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, exception.ErrUnknownBrokerRef)

	order := &schema.Order{OrderID: "o1", Leg: schema.EquityLeg("AAPL", schema.SideBuy, 1)}
	ref, err := p.SubmitOrder(context.Background(), order)
	require.NoError(t, err)

	// Single paper orders fill instantly, so the cancel races a terminal
	// state and loses.
	status, err := p.Cancel(context.Background(), ref)
	assert.ErrorIs(t, err, exception.ErrCancelRejected)
	assert.Equal(t, schema.StatusFilled, status)
}
