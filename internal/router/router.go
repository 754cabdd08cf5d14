// Package router turns accepted signals into broker submissions and owns
// the pre-fill order lifecycle.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/obs"
	"main/internal/om"
	"main/internal/schema"
	"main/pkg/exception"
)

// MarkSource quotes a reference price for sizing equity orders off a
// notional exposure.
type MarkSource interface {
	Mark(symbol string) decimal.Decimal
}

// MarkFunc adapts a plain function to MarkSource.
type MarkFunc func(symbol string) decimal.Decimal

// Mark implements MarkSource.
func (f MarkFunc) Mark(symbol string) decimal.Decimal { return f(symbol) }

// Router owns order construction, broker selection and submission. Every
// order passes through the book's state machine; the router never skips a
// lifecycle stage.
type Router struct {
	book      *om.Book
	spreads   *om.Coordinator
	emitter   *audit.Emitter
	marks     MarkSource
	def       broker.Adapter
	overrides map[string]broker.Adapter
}

// New creates a router with a default adapter. Per-strategy overrides are
// added with Bind.
func New(book *om.Book, spreads *om.Coordinator, emitter *audit.Emitter, marks MarkSource, def broker.Adapter) (*Router, error) {
	if def == nil {
		return nil, exception.ErrRouterNilBroker
	}
	return &Router{
		book:      book,
		spreads:   spreads,
		emitter:   emitter,
		marks:     marks,
		def:       def,
		overrides: make(map[string]broker.Adapter),
	}, nil
}

// Bind routes a strategy's orders to a dedicated adapter.
func (r *Router) Bind(strategyID string, adapter broker.Adapter) error {
	if adapter == nil {
		return exception.ErrRouterNilBroker
	}
	r.overrides[strategyID] = adapter
	return nil
}

func (r *Router) adapterFor(strategyID string) broker.Adapter {
	if a, ok := r.overrides[strategyID]; ok {
		return a
	}
	return r.def
}

// RouteResult reports what a routed signal became.
type RouteResult struct {
	OrderID  string
	SpreadID string
	Status   schema.OrderStatus
}

// Route builds an order or spread from an accepted signal and submits it.
// A transport failure leaves the order VALIDATED so a retry can resubmit
// without a duplicate; any other broker error rejects the order.
func (r *Router) Route(ctx context.Context, sig schema.Signal, decision schema.RiskDecision) (RouteResult, error) {
	if !decision.Accepted() {
		return RouteResult{}, exception.ErrRouteNotAccepted
	}

	if len(sig.Legs) > 1 {
		return r.routeSpread(ctx, sig, decision.SignalKey)
	}
	return r.routeSingle(ctx, sig, decision.SignalKey)
}

func (r *Router) routeSingle(ctx context.Context, sig schema.Signal, key string) (RouteResult, error) {
	order := r.buildOrder(sig, key)
	if err := r.book.Add(order); err != nil {
		if !exception.Is(err, exception.ErrDuplicateOrder) {
			return RouteResult{}, err
		}
		prior, ok := r.book.Get(order.OrderID)
		if !ok || prior.Status != schema.StatusValidated {
			return RouteResult{}, err
		}
		// Retry after a transport failure: resubmit the stranded order
		// under its original client order ID so venue-side idempotency
		// can dedup.
		order = prior
	}

	lock := r.book.Lock(order.OrderID)
	lock.Lock()
	defer lock.Unlock()

	if order.Status == schema.StatusPendingValidation {
		if err := order.Leg.Validate(time.Now().UTC()); err != nil {
			r.reject(ctx, order, err)
			return RouteResult{OrderID: order.OrderID, Status: order.Status}, err
		}
		r.transition(ctx, order, schema.StatusValidated, "")
	}

	adapter := r.adapterFor(sig.StrategyID)
	ref, err := r.submitOrder(ctx, adapter, order)
	if err != nil {
		obs.BrokerErrors.WithLabelValues(adapter.Name()).Inc()
		if exception.Is(err, exception.ErrTransport) {
			// Stay VALIDATED: the venue may or may not have seen the order,
			// and resubmission is idempotent on the client order ID.
			logs.Errorf("submit order %s via %s: %+v", order.OrderID, adapter.Name(), err)
			return RouteResult{OrderID: order.OrderID, Status: order.Status}, err
		}
		r.reject(ctx, order, err)
		return RouteResult{OrderID: order.OrderID, Status: order.Status}, err
	}

	order.BrokerRef = ref
	r.transition(ctx, order, schema.StatusSubmitted, ref)
	return RouteResult{OrderID: order.OrderID, Status: order.Status}, nil
}

func (r *Router) routeSpread(ctx context.Context, sig schema.Signal, key string) (RouteResult, error) {
	spread := r.buildSpread(sig, key)
	if err := r.spreads.Register(spread); err != nil {
		if !exception.Is(err, exception.ErrDuplicateSpread) {
			return RouteResult{}, err
		}
		prior, ok := r.spreads.Get(spread.SpreadID)
		if !ok || prior.Status != schema.StatusValidated {
			return RouteResult{}, err
		}
		spread = prior
	}

	lock := r.spreads.Lock(spread.SpreadID)
	lock.Lock()
	defer lock.Unlock()

	if spread.Status == schema.StatusPendingValidation {
		now := time.Now().UTC()
		for _, leg := range spread.Legs {
			if err := leg.Validate(now); err != nil {
				r.rejectSpread(ctx, spread, err)
				return RouteResult{SpreadID: spread.SpreadID, Status: spread.Status}, err
			}
		}
		// A rule violation still produces a tracked, audited rejection,
		// same as a leg that fails validation.
		if err := r.spreads.CheckLegs(spread.Legs); err != nil {
			r.rejectSpread(ctx, spread, err)
			return RouteResult{SpreadID: spread.SpreadID, Status: spread.Status}, err
		}
		r.transitionSpread(ctx, spread, schema.StatusValidated, "")
	}

	adapter := r.adapterFor(sig.StrategyID)
	ref, err := r.submitSpread(ctx, adapter, spread)
	if err != nil {
		obs.BrokerErrors.WithLabelValues(adapter.Name()).Inc()
		if exception.Is(err, exception.ErrTransport) {
			logs.Errorf("submit spread %s via %s: %+v", spread.SpreadID, adapter.Name(), err)
			return RouteResult{SpreadID: spread.SpreadID, Status: spread.Status}, err
		}
		r.rejectSpread(ctx, spread, err)
		return RouteResult{SpreadID: spread.SpreadID, Status: spread.Status}, err
	}

	spread.BrokerRef = ref
	r.transitionSpread(ctx, spread, schema.StatusSubmitted, ref)
	for _, o := range spread.Orders {
		prev := o.Status
		o.Status = schema.StatusSubmitted
		o.BrokerRef = ref
		o.UpdatedAt = time.Now().UTC()
		r.audit(r.emitter.OrderTransition(ctx, o, prev, ref))
	}
	return RouteResult{SpreadID: spread.SpreadID, Status: spread.Status}, nil
}

func (r *Router) submitOrder(ctx context.Context, adapter broker.Adapter, order *schema.Order) (string, error) {
	if order.Leg.InstrumentType == schema.InstrumentOption {
		return adapter.SubmitOptionOrder(ctx, order)
	}
	return adapter.SubmitOrder(ctx, order)
}

func (r *Router) submitSpread(ctx context.Context, adapter broker.Adapter, spread *schema.SpreadOrder) (string, error) {
	for _, leg := range spread.Legs {
		if leg.InstrumentType == schema.InstrumentOption {
			return adapter.SubmitOptionSpread(ctx, spread)
		}
	}
	return adapter.SubmitSpread(ctx, spread)
}

// Cancel requests cancellation for a single order. Local state changes only
// after the venue acknowledges; a racing fill keeps precedence, surfacing
// as ErrCancelRejected with the order left in its filled state.
func (r *Router) Cancel(ctx context.Context, orderID string) error {
	order, ok := r.book.Get(orderID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownOrder, orderID)
	}

	lock := r.book.Lock(orderID)
	lock.Lock()
	defer lock.Unlock()

	if order.Status.IsTerminal() {
		return exception.ErrCancelRejected
	}

	// Not yet at the venue: cancel locally.
	if order.BrokerRef == "" {
		r.transition(ctx, order, schema.StatusCancelled, "pre-submission cancel")
		return nil
	}

	adapter := r.adapterFor(order.StrategyID)
	venueStatus, err := adapter.Cancel(ctx, order.BrokerRef)
	if err != nil {
		logs.Errorf("cancel order %s via %s: %+v", orderID, adapter.Name(), err)
		return err
	}
	if venueStatus != schema.StatusCancelled {
		return exception.ErrCancelRejected
	}

	r.transition(ctx, order, schema.StatusCancelled, "venue ack")
	return nil
}

// CancelSpread requests cancellation for a whole spread. Any filled leg
// makes the spread irreversible and the request fails loud.
func (r *Router) CancelSpread(ctx context.Context, spreadID string) error {
	spread, ok := r.spreads.Get(spreadID)
	if !ok {
		return exception.Wrap(exception.ErrUnknownSpread, spreadID)
	}

	lock := r.spreads.Lock(spreadID)
	lock.Lock()
	defer lock.Unlock()

	if spread.HasFilledLeg() {
		return exception.ErrIrreversiblePartialState
	}

	if spread.BrokerRef != "" {
		adapter := r.adapterFor(spread.StrategyID)
		venueStatus, err := adapter.Cancel(ctx, spread.BrokerRef)
		if err != nil {
			logs.Errorf("cancel spread %s via %s: %+v", spreadID, adapter.Name(), err)
			return err
		}
		if venueStatus != schema.StatusCancelled {
			return exception.ErrCancelRejected
		}
	}

	prev := spread.Status
	if err := r.spreads.Cancel(spread); err != nil {
		return err
	}
	r.audit(r.emitter.SpreadTransition(ctx, spread, prev, "cancelled"))
	for _, o := range spread.Orders {
		if o.Status.IsTerminal() {
			continue
		}
		p := o.Status
		o.Status = schema.StatusCancelled
		o.UpdatedAt = time.Now().UTC()
		r.audit(r.emitter.OrderTransition(ctx, o, p, "spread cancelled"))
	}
	return nil
}

// orderID derives a stable client order ID from the risk decision's signal
// key. The same request key always mints the same ID, so a retried
// submission is idempotent at the venue. Decisions without a key (manual
// routing, tests) fall back to a random ID.
func orderID(key, scope string) string {
	if key == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(scope+":"+key)).String()
}

func (r *Router) buildOrder(sig schema.Signal, key string) *schema.Order {
	now := time.Now().UTC()
	order := &schema.Order{
		OrderID:    orderID(key, "order"),
		StrategyID: sig.StrategyID,
		Status:     schema.StatusPendingValidation,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// A signal with one declared leg routes that leg as-is. Bare signals
	// get an equity leg sized off the target exposure.
	if len(sig.Legs) == 1 {
		order.Leg = sig.Legs[0]
		order.LimitPrice = sig.NetLimitPrice
		return order
	}

	mark := decimal.NewFromInt(100)
	if r.marks != nil {
		if m := r.marks.Mark(sig.Symbol); m.IsPositive() {
			mark = m
		}
	}
	qty := sig.OrderNotional().Div(mark).IntPart()
	if qty < 1 {
		qty = 1
	}
	order.Leg = schema.EquityLeg(sig.Symbol, sig.Side, qty)
	return order
}

func (r *Router) buildSpread(sig schema.Signal, key string) *schema.SpreadOrder {
	now := time.Now().UTC()
	spread := &schema.SpreadOrder{
		SpreadID:      orderID(key, "spread"),
		StrategyID:    sig.StrategyID,
		Legs:          sig.Legs,
		NetLimitPrice: sig.NetLimitPrice,
		Status:        schema.StatusPendingValidation,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, leg := range sig.Legs {
		spread.Orders = append(spread.Orders, &schema.Order{
			OrderID:    orderID(key, fmt.Sprintf("spread-leg-%d", i)),
			StrategyID: sig.StrategyID,
			Leg:        leg,
			Status:     schema.StatusPendingValidation,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return spread
}

func (r *Router) transition(ctx context.Context, order *schema.Order, to schema.OrderStatus, detail string) {
	prev := order.Status
	if err := r.book.Transition(order, to); err != nil {
		logs.Errorf("transition order %s %s -> %s: %+v", order.OrderID, prev, to, err)
		return
	}
	r.audit(r.emitter.OrderTransition(ctx, order, prev, detail))
}

func (r *Router) reject(ctx context.Context, order *schema.Order, cause error) {
	order.RejectReason = cause.Error()
	r.transition(ctx, order, schema.StatusRejected, cause.Error())
}

func (r *Router) transitionSpread(ctx context.Context, spread *schema.SpreadOrder, to schema.OrderStatus, detail string) {
	prev := spread.Status
	if err := r.spreads.Transition(spread, to); err != nil {
		logs.Errorf("transition spread %s %s -> %s: %+v", spread.SpreadID, prev, to, err)
		return
	}
	r.audit(r.emitter.SpreadTransition(ctx, spread, prev, detail))
	for _, o := range spread.Orders {
		if o.Status == to || o.Status.IsTerminal() {
			continue
		}
		o.Status = to
		o.UpdatedAt = time.Now().UTC()
	}
}

func (r *Router) rejectSpread(ctx context.Context, spread *schema.SpreadOrder, cause error) {
	spread.RejectReason = cause.Error()
	prev := spread.Status
	spread.Status = schema.StatusRejected
	spread.UpdatedAt = time.Now().UTC()
	r.audit(r.emitter.SpreadTransition(ctx, spread, prev, cause.Error()))
	for _, o := range spread.Orders {
		p := o.Status
		o.Status = schema.StatusRejected
		o.RejectReason = cause.Error()
		o.UpdatedAt = time.Now().UTC()
		r.audit(r.emitter.OrderTransition(ctx, o, p, cause.Error()))
	}
}

func (r *Router) audit(err error) {
	if err != nil {
		logs.Errorf("emit audit record: %+v", err)
	}
}
