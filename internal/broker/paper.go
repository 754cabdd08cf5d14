package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"main/internal/schema"
	"main/pkg/exception"
)

// PaperConfig controls the simulated venue.
type PaperConfig struct {
	// SlippageBps is applied against the mark price for market orders.
	SlippageBps int64

	// Atomic selects all-or-none spread fills. Disable it to simulate a
	// venue that leaks partial leg fills and exercise the reconciliation
	// path.
	Atomic bool

	// FillQueueSize bounds the synthetic fill buffer.
	FillQueueSize int
}

type paperOrder struct {
	status schema.OrderStatus
}

// Paper simulates execution without capital at risk: instant synthetic
// fills, configurable slippage, idempotent resubmission by client order ID.
type Paper struct {
	cfg    PaperConfig
	mu     sync.Mutex
	orders map[string]*paperOrder
	refs   map[string]string
	fills  chan schema.Fill
	halted bool
}

// NewPaper creates a paper venue.
func NewPaper(cfg PaperConfig) *Paper {
	if cfg.FillQueueSize <= 0 {
		cfg.FillQueueSize = 256
	}
	return &Paper{
		cfg:    cfg,
		orders: make(map[string]*paperOrder),
		refs:   make(map[string]string),
		fills:  make(chan schema.Fill, cfg.FillQueueSize),
	}
}

// Name returns "PAPER".
func (p *Paper) Name() string { return "PAPER" }

// AtomicSpreads reports the configured all-or-none guarantee.
func (p *Paper) AtomicSpreads() bool { return p.cfg.Atomic }

// Fills exposes the synthetic fill stream for the reconciliation pump.
func (p *Paper) Fills() <-chan schema.Fill { return p.fills }

// Halt makes the venue reject every subsequent submission.
func (p *Paper) Halt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = true
}

// Resume lifts a halt.
func (p *Paper) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = false
}

// SubmitOrder accepts the order and emits one synthetic full fill.
func (p *Paper) SubmitOrder(ctx context.Context, order *schema.Order) (string, error) {
	return p.submitSingle(ctx, order)
}

// SubmitOptionOrder accepts a single-leg option order.
func (p *Paper) SubmitOptionOrder(ctx context.Context, order *schema.Order) (string, error) {
	return p.submitSingle(ctx, order)
}

func (p *Paper) submitSingle(_ context.Context, order *schema.Order) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return "", exception.ErrBrokerRejected
	}
	if ref, ok := p.refs[order.OrderID]; ok {
		return ref, nil
	}
	ref := fmt.Sprintf("PAPER_%s", uuid.NewString()[:8])
	p.refs[order.OrderID] = ref
	p.orders[ref] = &paperOrder{status: schema.StatusSubmitted}
	p.emitFill(schema.Fill{
		FillID:       uuid.NewString(),
		OrderID:      order.OrderID,
		Quantity:     order.Leg.Quantity,
		Price:        p.fillPrice(order.Leg, order.LimitPrice),
		BrokerFillID: fmt.Sprintf("%s_F1", ref),
		Timestamp:    time.Now().UTC(),
	})
	p.orders[ref].status = schema.StatusFilled
	return ref, nil
}

// SubmitSpread fills every leg in one synthetic transaction when the venue
// is atomic; in non-atomic mode only the first leg fills, leaking the
// partial state a real non-atomic venue could produce.
func (p *Paper) SubmitSpread(ctx context.Context, spread *schema.SpreadOrder) (string, error) {
	return p.submitSpread(ctx, spread)
}

// SubmitOptionSpread behaves exactly as SubmitSpread for the paper venue.
func (p *Paper) SubmitOptionSpread(ctx context.Context, spread *schema.SpreadOrder) (string, error) {
	return p.submitSpread(ctx, spread)
}

func (p *Paper) submitSpread(_ context.Context, spread *schema.SpreadOrder) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.halted {
		return "", exception.ErrBrokerRejected
	}
	if ref, ok := p.refs[spread.SpreadID]; ok {
		return ref, nil
	}
	ref := fmt.Sprintf("PAPER_SPR_%s", uuid.NewString()[:8])
	p.refs[spread.SpreadID] = ref
	p.orders[ref] = &paperOrder{status: schema.StatusSubmitted}

	legs := spread.Legs
	if !p.cfg.Atomic && len(legs) > 1 {
		legs = legs[:1]
	}
	for i, leg := range legs {
		perLeg := decimal.Decimal{}
		if !spread.NetLimitPrice.IsZero() {
			perLeg = spread.NetLimitPrice.Div(decimal.NewFromInt(int64(len(spread.Legs)))).Abs()
		}
		p.emitFill(schema.Fill{
			FillID:       uuid.NewString(),
			SpreadID:     spread.SpreadID,
			LegIndex:     i,
			Quantity:     leg.Quantity,
			Price:        p.fillPrice(leg, perLeg),
			BrokerFillID: fmt.Sprintf("%s_F%d", ref, i+1),
			Timestamp:    time.Now().UTC(),
		})
	}
	if p.cfg.Atomic {
		p.orders[ref].status = schema.StatusFilled
	} else {
		p.orders[ref].status = schema.StatusPartiallyFilled
	}
	return ref, nil
}

// Cancel marks a live paper order cancelled. Terminal orders reject the
// request so a racing fill keeps precedence.
func (p *Paper) Cancel(_ context.Context, brokerRef string) (schema.OrderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[brokerRef]
	if !ok {
		return "", exception.ErrUnknownBrokerRef
	}
	if o.status.IsTerminal() {
		return o.status, exception.ErrCancelRejected
	}
	o.status = schema.StatusCancelled
	return o.status, nil
}

func (p *Paper) emitFill(fill schema.Fill) {
	select {
	case p.fills <- fill:
	default:
		// Queue full: drop on the floor is not acceptable for fills, so
		// block outside the fast path.
		go func() { p.fills <- fill }()
	}
}

// fillPrice uses the limit when present, otherwise the mark price with
// slippage applied in the taker's disfavor.
func (p *Paper) fillPrice(leg schema.Leg, limit decimal.Decimal) decimal.Decimal {
	if !limit.IsZero() {
		return limit
	}
	mark := markPrice(leg)
	if p.cfg.SlippageBps == 0 {
		return mark
	}
	bps := decimal.NewFromInt(p.cfg.SlippageBps).Div(decimal.NewFromInt(10_000))
	if leg.Side == schema.SideBuy {
		return mark.Mul(decimal.NewFromInt(1).Add(bps))
	}
	return mark.Mul(decimal.NewFromInt(1).Sub(bps))
}

var paperMarks = map[string]decimal.Decimal{
	"AAPL":  decimal.NewFromFloat(175.50),
	"MSFT":  decimal.NewFromFloat(380.25),
	"GOOGL": decimal.NewFromFloat(140.75),
	"TSLA":  decimal.NewFromFloat(250.00),
}

func markPrice(leg schema.Leg) decimal.Decimal {
	if leg.InstrumentType == schema.InstrumentOption {
		// Flat synthetic premium; real pricing is a market-data concern.
		return decimal.NewFromFloat(2.50)
	}
	return MarkPrice(leg.Symbol)
}

// MarkPrice returns the simulated equity mark for a symbol. Unlisted
// symbols quote flat at 100 so sizing stays deterministic.
func MarkPrice(symbol string) decimal.Decimal {
	if mark, ok := paperMarks[symbol]; ok {
		return mark
	}
	return decimal.NewFromInt(100)
}
