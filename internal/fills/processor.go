// Package fills reconciles broker execution reports against the order book.
package fills

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/obs"
	"main/internal/om"
	"main/internal/schema"
	"main/pkg/exception"
)

// Processor applies fills, assignments and exercises to orders and spreads.
type Processor struct {
	book    *om.Book
	spreads *om.Coordinator
	emitter *audit.Emitter

	seenMu sync.Mutex
	seen   map[string]struct{}
}

// NewProcessor creates a fill processor over the given book and coordinator.
func NewProcessor(book *om.Book, spreads *om.Coordinator, emitter *audit.Emitter) *Processor {
	return &Processor{
		book:    book,
		spreads: spreads,
		emitter: emitter,
		seen:    make(map[string]struct{}),
	}
}

// duplicateFill remembers fill IDs so redelivered execution reports apply
// once. Venues redeliver; a duplicate is not an overfill.
func (p *Processor) duplicateFill(fillID string) bool {
	if fillID == "" {
		return false
	}
	p.seenMu.Lock()
	defer p.seenMu.Unlock()
	if _, ok := p.seen[fillID]; ok {
		return true
	}
	p.seen[fillID] = struct{}{}
	return false
}

// ApplyFill routes a fill to its single order or spread leg.
func (p *Processor) ApplyFill(ctx context.Context, fill schema.Fill) error {
	if err := validateFill(fill); err != nil {
		return err
	}
	if p.duplicateFill(fill.FillID) {
		obs.FillsTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	if fill.SpreadID != "" {
		obs.FillsTotal.WithLabelValues("spread_leg").Inc()
		return p.applySpreadFill(ctx, fill)
	}

	obs.FillsTotal.WithLabelValues("single").Inc()
	return p.applySingleFill(ctx, fill)
}

// Pump drains a broker fill stream into the processor until the context
// ends. Apply errors are logged, never fatal: a frozen order must not stop
// reconciliation of the rest of the book.
func (p *Processor) Pump(ctx context.Context, fills <-chan schema.Fill) {
	for {
		select {
		case <-ctx.Done():
			return
		case fill, ok := <-fills:
			if !ok {
				return
			}
			if err := p.ApplyFill(ctx, fill); err != nil {
				logs.Errorf("apply fill %s: %+v", fill.FillID, err)
			}
		}
	}
}

func (p *Processor) applySingleFill(ctx context.Context, fill schema.Fill) error {
	order, ok := p.book.Get(fill.OrderID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownOrder, fill.OrderID)
	}

	lock := p.book.Lock(fill.OrderID)
	lock.Lock()
	defer lock.Unlock()

	prev := order.Status
	if err := applyToOrder(order, fill); err != nil {
		if order.Status == schema.StatusInconsistent && prev != schema.StatusInconsistent {
			p.audit(p.emitter.ReconciliationAlert(ctx, order.OrderID, order.StrategyID,
				order.Leg.Symbol, "overfill, order frozen"))
		}
		return err
	}

	if order.Status != prev {
		p.audit(p.emitter.OrderTransition(ctx, order, prev, fill.BrokerFillID))
	}

	return nil
}

func (p *Processor) applySpreadFill(ctx context.Context, fill schema.Fill) error {
	spread, ok := p.spreads.Get(fill.SpreadID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownSpread, fill.SpreadID)
	}
	if fill.LegIndex < 0 || fill.LegIndex >= len(spread.Orders) {
		return exception.Wrapf(exception.ErrSpreadLegIndex, "spread %s leg %d", fill.SpreadID, fill.LegIndex)
	}

	lock := p.spreads.Lock(fill.SpreadID)
	lock.Lock()
	defer lock.Unlock()

	leg := spread.Orders[fill.LegIndex]
	prevLeg := leg.Status
	if err := applyToOrder(leg, fill); err != nil {
		if leg.Status == schema.StatusInconsistent && prevLeg != schema.StatusInconsistent {
			// The leg froze. Refresh so the spread freezes with it and
			// operators get the alert.
			prevSpread := spread.Status
			p.spreads.Refresh(spread)
			if spread.Status != prevSpread {
				p.audit(p.emitter.SpreadTransition(ctx, spread, prevSpread, "leg overfill"))
			}
			p.audit(p.emitter.ReconciliationAlert(ctx, spread.SpreadID, spread.StrategyID,
				leg.Leg.Symbol, "leg overfill, spread frozen"))
		}
		return err
	}

	if leg.Status != prevLeg {
		p.audit(p.emitter.OrderTransition(ctx, leg, prevLeg, fill.BrokerFillID))
	}

	prevSpread := spread.Status
	p.spreads.Refresh(spread)
	if spread.Status != prevSpread {
		p.audit(p.emitter.SpreadTransition(ctx, spread, prevSpread, fill.BrokerFillID))
	}

	return nil
}

// ReconcileSpreads sweeps every tracked spread for leg fills that diverged
// and stayed diverged past the settle window. Per-leg deliveries of one
// atomic venue transaction arrive staggered, so a spread touched within the
// window is skipped rather than frozen mid-delivery. Returns the number of
// spreads frozen this pass.
func (p *Processor) ReconcileSpreads(ctx context.Context, settle time.Duration) int {
	frozen := 0
	cutoff := time.Now().UTC().Add(-settle)
	for _, spread := range p.spreads.Snapshot() {
		lock := p.spreads.Lock(spread.SpreadID)
		lock.Lock()
		if spread.Status.IsTerminal() || spread.UpdatedAt.After(cutoff) {
			lock.Unlock()
			continue
		}
		prev := spread.Status
		if err := p.spreads.Reconcile(spread); err != nil {
			p.audit(p.emitter.SpreadTransition(ctx, spread, prev, "leg fills diverged"))
			p.audit(p.emitter.ReconciliationAlert(ctx, spread.SpreadID, spread.StrategyID,
				spread.Legs[0].Symbol, "leg fills diverged past settle window, spread frozen"))
			frozen++
		}
		lock.Unlock()
	}
	return frozen
}

// applyToOrder mutates one order under its lock. On overfill the order's
// quantities stay at their pre-fill values and the order freezes.
func applyToOrder(order *schema.Order, fill schema.Fill) error {
	if order.Status.IsTerminal() {
		return exception.Wrapf(exception.ErrInvalidTransition, "fill on terminal order %s (%s)", order.OrderID, order.Status)
	}

	if order.FilledQuantity+fill.Quantity > order.Leg.Quantity {
		logs.Errorf("overfill on order %s: filled %d + fill %d > ordered %d",
			order.OrderID, order.FilledQuantity, fill.Quantity, order.Leg.Quantity)
		order.Status = schema.StatusInconsistent
		return exception.Wrap(exception.ErrOverfill, order.OrderID)
	}

	order.FilledQuantity += fill.Quantity
	order.FilledNotional = order.FilledNotional.Add(
		fill.Price.Mul(decimal.NewFromInt(fill.Quantity)))
	order.AvgFillPrice = order.FilledNotional.Div(
		decimal.NewFromInt(order.FilledQuantity))
	order.UpdatedAt = fill.Timestamp

	if order.FilledQuantity == order.Leg.Quantity {
		order.Status = schema.StatusFilled
	} else {
		order.Status = schema.StatusPartiallyFilled
	}

	return nil
}

// ApplyAssignment records an option assignment against a filled option order.
func (p *Processor) ApplyAssignment(ctx context.Context, orderID string, event schema.AssignmentEvent) error {
	order, ok := p.book.Get(orderID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownOrder, orderID)
	}
	if order.Leg.InstrumentType != schema.InstrumentOption {
		return exception.Wrapf(exception.ErrLegInvalidInstrument, "assignment on non-option order %s", orderID)
	}

	p.audit(p.emitter.Assignment(ctx, order.StrategyID, event))
	logs.Infof("assignment on order %s: %d contracts of %s",
		orderID, event.Quantity, event.ContractSymbol)
	return nil
}

// ApplyExercise records an option exercise against a filled option order.
func (p *Processor) ApplyExercise(ctx context.Context, orderID string, event schema.ExerciseEvent) error {
	order, ok := p.book.Get(orderID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownOrder, orderID)
	}
	if order.Leg.InstrumentType != schema.InstrumentOption {
		return exception.Wrapf(exception.ErrLegInvalidInstrument, "exercise on non-option order %s", orderID)
	}

	p.audit(p.emitter.Exercise(ctx, order.StrategyID, event))
	logs.Infof("exercise on order %s: %d contracts of %s",
		orderID, event.Quantity, event.ContractSymbol)
	return nil
}

// SynthesizeExpirationEvents scans the book for option orders whose
// expiration has passed. Orders still working at expiry move to EXPIRED;
// filled in-the-money contracts additionally get an assignment or exercise
// event. Short legs are assigned, long legs exercised. Events are emitted
// only; position bookkeeping lives outside this engine.
func (p *Processor) SynthesizeExpirationEvents(ctx context.Context, now time.Time, mark func(symbol string) decimal.Decimal) (int, error) {
	emitted := 0
	for _, order := range p.book.Snapshot() {
		leg := order.Leg
		if leg.InstrumentType != schema.InstrumentOption {
			continue
		}
		if leg.Expiration.After(now) {
			continue
		}

		if !order.Status.IsTerminal() {
			lock := p.book.Lock(order.OrderID)
			lock.Lock()
			prev := order.Status
			if err := p.book.Transition(order, schema.StatusExpired); err == nil {
				p.audit(p.emitter.OrderTransition(ctx, order, prev, "contract expired"))
			}
			lock.Unlock()
		}

		if order.FilledQuantity == 0 {
			continue
		}
		if mark == nil || !inTheMoney(leg, mark(leg.Symbol)) {
			continue
		}

		if leg.Side == schema.SideSell {
			err := p.ApplyAssignment(ctx, order.OrderID, schema.AssignmentEvent{
				EventID:        uuid.NewString(),
				ContractSymbol: leg.ContractSymbol(),
				Quantity:       order.FilledQuantity,
				Price:          leg.Strike,
				Timestamp:      now,
			})
			if err != nil {
				return emitted, err
			}
		} else {
			err := p.ApplyExercise(ctx, order.OrderID, schema.ExerciseEvent{
				EventID:        uuid.NewString(),
				ContractSymbol: leg.ContractSymbol(),
				Quantity:       order.FilledQuantity,
				Price:          leg.Strike,
				Timestamp:      now,
			})
			if err != nil {
				return emitted, err
			}
		}
		emitted++
	}
	return emitted, nil
}

func inTheMoney(leg schema.Leg, mark decimal.Decimal) bool {
	if !mark.IsPositive() {
		return false
	}
	if leg.OptionType == schema.OptionCall {
		return mark.GreaterThan(leg.Strike)
	}
	return mark.LessThan(leg.Strike)
}

// audit keeps fill processing alive when the audit sink hiccups. Records
// are never a reason to drop an execution report.
func (p *Processor) audit(err error) {
	if err != nil {
		logs.Errorf("emit audit record: %+v", err)
	}
}

func validateFill(fill schema.Fill) error {
	if fill.Quantity <= 0 {
		return exception.Wrapf(exception.ErrInvalidFillQty, "%d", fill.Quantity)
	}
	if !fill.Price.IsPositive() {
		return exception.Wrapf(exception.ErrInvalidFillPrice, "%s", fill.Price)
	}
	if fill.OrderID == "" && fill.SpreadID == "" {
		return exception.Wrap(exception.ErrUnknownOrder, "fill carries neither order nor spread id")
	}
	return nil
}
