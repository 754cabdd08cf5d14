package fills

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/audit"
	"main/internal/om"
	"main/internal/schema"
	"main/pkg/exception"
)

func newTestProcessor(t *testing.T) (*Processor, *om.Book, *om.Coordinator, *audit.LogSink) {
	t.Helper()
	book := om.NewBook()
	spreads := om.NewCoordinator(nil)
	sink := audit.NewLogSink(256)
	return NewProcessor(book, spreads, audit.NewEmitter(sink)), book, spreads, sink
}

func addOrder(t *testing.T, book *om.Book, id string, qty int64) *schema.Order {
	t.Helper()
	order := &schema.Order{
		OrderID: id,
		Leg:     schema.EquityLeg("AAPL", schema.SideBuy, qty),
		Status:  schema.StatusSubmitted,
	}
	require.NoError(t, book.Add(order))
	return order
}

func fillFor(orderID string, qty int64, price float64, fillID string) schema.Fill {
	return schema.Fill{
		FillID:    fillID,
		OrderID:   orderID,
		Quantity:  qty,
		Price:     decimal.NewFromFloat(price),
		Timestamp: time.Now().UTC(),
	}
}

func TestApplyFillWeightedAverage(t *testing.T) {
	p, book, _, _ := newTestProcessor(t)
	order := addOrder(t, book, "o1", 100)

	require.NoError(t, p.ApplyFill(context.Background(), fillFor("o1", 60, 10.00, "f1")))
	require.NoError(t, p.ApplyFill(context.Background(), fillFor("o1", 40, 10.50, "f2")))

	assert.Equal(t, schema.StatusFilled, order.Status)
	assert.Equal(t, int64(100), order.FilledQuantity)
	// (60*10.00 + 40*10.50) / 100 = 10.20 exactly.
	assert.True(t, order.AvgFillPrice.Equal(decimal.NewFromFloat(10.20)),
		"avg fill price %s", order.AvgFillPrice)
}

func TestApplyFillPartialThenFilled(t *testing.T) {
	p, book, _, _ := newTestProcessor(t)
	order := addOrder(t, book, "o1", 10)

	require.NoError(t, p.ApplyFill(context.Background(), fillFor("o1", 4, 100, "f1")))
	assert.Equal(t, schema.StatusPartiallyFilled, order.Status)
	assert.Equal(t, int64(6), order.RemainingQuantity())

	require.NoError(t, p.ApplyFill(context.Background(), fillFor("o1", 6, 100, "f2")))
	assert.Equal(t, schema.StatusFilled, order.Status)
}

func TestOverfillFreezesWithoutMutatingQuantities(t *testing.T) {
	p, book, _, _ := newTestProcessor(t)
	order := addOrder(t, book, "o1", 10)

	require.NoError(t, p.ApplyFill(context.Background(), fillFor("o1", 8, 100, "f1")))
	avgBefore := order.AvgFillPrice

	err := p.ApplyFill(context.Background(), fillFor("o1", 5, 100, "f2"))
	assert.ErrorIs(t, err, exception.ErrOverfill)
	assert.Equal(t, schema.StatusInconsistent, order.Status)
	assert.Equal(t, int64(8), order.FilledQuantity, "overfill must not be applied")
	assert.True(t, order.AvgFillPrice.Equal(avgBefore))

	// Frozen: even a valid-sized fill is refused now.
	err = p.ApplyFill(context.Background(), fillFor("o1", 1, 100, "f3"))
	assert.ErrorIs(t, err, exception.ErrInvalidTransition)
}

func TestDuplicateFillAppliesOnce(t *testing.T) {
	p, book, _, _ := newTestProcessor(t)
	order := addOrder(t, book, "o1", 10)

	fill := fillFor("o1", 10, 100, "f1")
	require.NoError(t, p.ApplyFill(context.Background(), fill))
	require.NoError(t, p.ApplyFill(context.Background(), fill), "redelivery is not an error")

	assert.Equal(t, int64(10), order.FilledQuantity)
	assert.Equal(t, schema.StatusFilled, order.Status)
}

func TestApplyFillValidation(t *testing.T) {
	p, book, _, _ := newTestProcessor(t)
	addOrder(t, book, "o1", 10)

	assert.ErrorIs(t, p.ApplyFill(context.Background(), fillFor("o1", 0, 100, "f1")), exception.ErrInvalidFillQty)
	assert.ErrorIs(t, p.ApplyFill(context.Background(), fillFor("o1", 1, 0, "f2")), exception.ErrInvalidFillPrice)
	assert.ErrorIs(t, p.ApplyFill(context.Background(), fillFor("unknown", 1, 100, "f3")), exception.ErrUnknownOrder)
}

func TestSpreadLegFillsDeriveSpreadStatus(t *testing.T) {
	p, _, spreads, _ := newTestProcessor(t)
	spread := registerSpread(t, spreads, 2, 2)

	// Leg fills of one atomic transaction arrive one at a time; a leg
	// running ahead of its sibling must not freeze the spread.
	first := schema.Fill{
		FillID:   "f1",
		SpreadID: spread.SpreadID,
		LegIndex: 0,
		Quantity: 2,
		Price:    decimal.NewFromInt(5),
	}
	require.NoError(t, p.ApplyFill(context.Background(), first))
	assert.Equal(t, schema.StatusPartiallyFilled, spread.Status)

	second := schema.Fill{
		FillID:   "f2",
		SpreadID: spread.SpreadID,
		LegIndex: 1,
		Quantity: 2,
		Price:    decimal.NewFromInt(3),
	}
	require.NoError(t, p.ApplyFill(context.Background(), second))
	assert.Equal(t, schema.StatusFilled, spread.Status)
}

func TestReconcileSpreadsFreezesDivergedLegsAfterSettle(t *testing.T) {
	p, _, spreads, sink := newTestProcessor(t)
	spread := registerSpread(t, spreads, 2, 2)

	fill := schema.Fill{
		FillID:   "f1",
		SpreadID: spread.SpreadID,
		LegIndex: 0,
		Quantity: 2,
		Price:    decimal.NewFromInt(5),
	}
	require.NoError(t, p.ApplyFill(context.Background(), fill))
	assert.Equal(t, schema.StatusPartiallyFilled, spread.Status)

	// Within the settle window the missing sibling fill may still be in
	// flight, so the sweep leaves the spread alone.
	assert.Zero(t, p.ReconcileSpreads(context.Background(), time.Hour))
	assert.Equal(t, schema.StatusPartiallyFilled, spread.Status)

	// Past the window the divergence is real and the spread freezes.
	frozen := p.ReconcileSpreads(context.Background(), 0)
	assert.Equal(t, 1, frozen)
	assert.Equal(t, schema.StatusInconsistent, spread.Status)

	alerts := sink.RecordsOfKind(audit.KindReconAlert)
	assert.NotEmpty(t, alerts, "inconsistency must raise a reconciliation alert")

	// A second sweep must not alert again for the frozen spread.
	assert.Zero(t, p.ReconcileSpreads(context.Background(), 0))
	assert.Len(t, sink.RecordsOfKind(audit.KindReconAlert), len(alerts))
}

func TestSpreadAtomicFillCompletes(t *testing.T) {
	p, _, spreads, _ := newTestProcessor(t)
	spread := registerSpread(t, spreads, 1, 1)

	for i := range spread.Orders {
		fill := schema.Fill{
			FillID:   "f" + spread.Orders[i].OrderID,
			SpreadID: spread.SpreadID,
			LegIndex: i,
			Quantity: 1,
			Price:    decimal.NewFromInt(5),
		}
		require.NoError(t, p.ApplyFill(context.Background(), fill))
	}
	assert.Equal(t, schema.StatusFilled, spread.Status)
}

func registerSpread(t *testing.T, spreads *om.Coordinator, legQty ...int64) *schema.SpreadOrder {
	t.Helper()
	expiration := time.Now().UTC().AddDate(0, 1, 0)
	spread := &schema.SpreadOrder{
		SpreadID:   "s1",
		StrategyID: "vertical-1",
		Status:     schema.StatusSubmitted,
	}
	for i, qty := range legQty {
		side := schema.SideBuy
		if i%2 == 1 {
			side = schema.SideSell
		}
		leg := schema.OptionLeg("AAPL", schema.OptionCall,
			decimal.NewFromInt(170+int64(i)*5), expiration, side, qty)
		spread.Legs = append(spread.Legs, leg)
		spread.Orders = append(spread.Orders, &schema.Order{
			OrderID: fmt.Sprintf("%s-leg-%d", spread.SpreadID, i),
			Leg:     leg,
			Status:  schema.StatusSubmitted,
		})
	}
	require.NoError(t, spreads.Register(spread))
	return spread
}

func TestSynthesizeExpirationEvents(t *testing.T) {
	p, book, _, sink := newTestProcessor(t)

	expired := time.Now().UTC().Add(-24 * time.Hour)
	short := &schema.Order{
		OrderID: "short-call",
		Leg: schema.Leg{
			Symbol:             "AAPL",
			InstrumentType:     schema.InstrumentOption,
			OptionType:         schema.OptionCall,
			Strike:             decimal.NewFromInt(170),
			Expiration:         expired,
			Side:               schema.SideSell,
			Quantity:           2,
			ContractMultiplier: schema.DefaultOptionMultiplier,
		},
		Status:         schema.StatusFilled,
		FilledQuantity: 2,
	}
	long := &schema.Order{
		OrderID: "long-put",
		Leg: schema.Leg{
			Symbol:             "AAPL",
			InstrumentType:     schema.InstrumentOption,
			OptionType:         schema.OptionPut,
			Strike:             decimal.NewFromInt(180),
			Expiration:         expired,
			Side:               schema.SideBuy,
			Quantity:           1,
			ContractMultiplier: schema.DefaultOptionMultiplier,
		},
		Status:         schema.StatusFilled,
		FilledQuantity: 1,
	}
	require.NoError(t, book.Add(short))
	require.NoError(t, book.Add(long))

	mark := func(string) decimal.Decimal { return decimal.NewFromFloat(175.50) }
	emitted, err := p.SynthesizeExpirationEvents(context.Background(), time.Now().UTC(), mark)
	require.NoError(t, err)
	assert.Equal(t, 2, emitted, "call is ITM above strike, put is ITM below strike")

	assert.Len(t, sink.RecordsOfKind(audit.KindAssignment), 1)
	assert.Len(t, sink.RecordsOfKind(audit.KindExercise), 1)
}

func TestExpirationMovesWorkingOptionOrdersToExpired(t *testing.T) {
	p, book, _, sink := newTestProcessor(t)

	expired := time.Now().UTC().Add(-24 * time.Hour)
	working := &schema.Order{
		OrderID: "otm-call",
		Leg: schema.Leg{
			Symbol:             "AAPL",
			InstrumentType:     schema.InstrumentOption,
			OptionType:         schema.OptionCall,
			Strike:             decimal.NewFromInt(200),
			Expiration:         expired,
			Side:               schema.SideBuy,
			Quantity:           3,
			ContractMultiplier: schema.DefaultOptionMultiplier,
		},
		Status: schema.StatusSubmitted,
	}
	partial := &schema.Order{
		OrderID: "itm-partial",
		Leg: schema.Leg{
			Symbol:             "AAPL",
			InstrumentType:     schema.InstrumentOption,
			OptionType:         schema.OptionCall,
			Strike:             decimal.NewFromInt(170),
			Expiration:         expired,
			Side:               schema.SideBuy,
			Quantity:           4,
			ContractMultiplier: schema.DefaultOptionMultiplier,
		},
		Status:         schema.StatusPartiallyFilled,
		FilledQuantity: 2,
	}
	require.NoError(t, book.Add(working))
	require.NoError(t, book.Add(partial))

	mark := func(string) decimal.Decimal { return decimal.NewFromFloat(175.50) }
	emitted, err := p.SynthesizeExpirationEvents(context.Background(), time.Now().UTC(), mark)
	require.NoError(t, err)

	assert.Equal(t, schema.StatusExpired, working.Status)
	assert.Equal(t, schema.StatusExpired, partial.Status)
	assert.Equal(t, 1, emitted, "only the in-the-money filled contracts exercise")
	assert.Len(t, sink.RecordsOfKind(audit.KindExercise), 1)

	// Expiry is terminal; a late venue fill is refused.
	late := fillFor("itm-partial", 1, 175.50, "late")
	assert.ErrorIs(t, p.ApplyFill(context.Background(), late), exception.ErrInvalidTransition)
}
