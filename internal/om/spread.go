package om

import (
	"sync"
	"time"

	"main/internal/schema"
	"main/pkg/exception"
)

// SpreadRule is the pluggable consistency predicate legs must satisfy
// before a spread is accepted.
type SpreadRule func(legs []schema.Leg) error

// SameUnderlyingSameExpiration is the default rule: every leg shares one
// underlying symbol and one expiration. Calendar and cross-underlying
// spreads are deferred.
func SameUnderlyingSameExpiration(legs []schema.Leg) error {
	for _, l := range legs[1:] {
		if l.Symbol != legs[0].Symbol {
			return exception.ErrSpreadRule
		}
		if !l.Expiration.Equal(legs[0].Expiration) {
			return exception.ErrSpreadRule
		}
	}
	return nil
}

// Coordinator composes leg order state machines into atomic spread units.
// It never submits legs independently: atomicity is the broker contract,
// and the coordinator fails loud when that contract is violated.
type Coordinator struct {
	mu      sync.RWMutex
	spreads map[string]*schema.SpreadOrder
	locks   map[string]*sync.Mutex
	rule    SpreadRule
}

// NewCoordinator creates a coordinator with the given consistency rule.
// A nil rule defaults to same-underlying/same-expiration.
func NewCoordinator(rule SpreadRule) *Coordinator {
	if rule == nil {
		rule = SameUnderlyingSameExpiration
	}
	return &Coordinator{
		spreads: make(map[string]*schema.SpreadOrder),
		locks:   make(map[string]*sync.Mutex),
		rule:    rule,
	}
}

// Register tracks a structurally valid spread. The consistency rule is not
// checked here: a rule violation must produce a tracked, audited REJECTED
// spread, so rule checking happens in the validation phase via CheckLegs.
func (c *Coordinator) Register(s *schema.SpreadOrder) error {
	if len(s.Legs) < 2 {
		return exception.ErrSpreadTooFewLegs
	}
	if len(s.Legs) > 4 {
		return exception.ErrSpreadTooManyLegs
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.spreads[s.SpreadID]; ok {
		return exception.ErrDuplicateSpread
	}
	c.spreads[s.SpreadID] = s
	c.locks[s.SpreadID] = &sync.Mutex{}
	return nil
}

// CheckLegs runs the consistency rule against a leg set.
func (c *Coordinator) CheckLegs(legs []schema.Leg) error {
	return c.rule(legs)
}

// Get returns the tracked spread.
func (c *Coordinator) Get(spreadID string) (*schema.SpreadOrder, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.spreads[spreadID]
	return s, ok
}

// Snapshot returns the current set of tracked spreads. The slice is a
// fresh copy; the pointed-to spreads are live and still need the per-spread
// lock for mutation.
func (c *Coordinator) Snapshot() []*schema.SpreadOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	spreads := make([]*schema.SpreadOrder, 0, len(c.spreads))
	for _, s := range c.spreads {
		spreads = append(spreads, s)
	}
	return spreads
}

// Lock returns the per-spread mutex.
func (c *Coordinator) Lock(spreadID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[spreadID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[spreadID] = l
	}
	return l
}

// Transition moves a spread through its pre-fill lifecycle. The caller
// must hold the per-spread lock.
func (c *Coordinator) Transition(s *schema.SpreadOrder, to schema.OrderStatus) error {
	if !CanTransition(s.Status, to) {
		return exception.ErrInvalidTransition
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Refresh recomputes the derived fill-phase status from the leg arena.
// Leg fills of one venue transaction arrive and apply one at a time, so a
// leg running ahead of its siblings is a legitimate transient state here;
// divergence freezing is Reconcile's job, once deliveries have settled.
// The caller must hold the per-spread lock.
func (c *Coordinator) Refresh(s *schema.SpreadOrder) {
	derived := s.DeriveStatus()
	if derived != s.Status {
		s.Status = derived
		s.UpdatedAt = time.Now().UTC()
	}
}

// Reconcile freezes a spread whose leg fills diverged after the venue had
// time to deliver every leg of the transaction. Diverging per-leg fills at
// rest violate the all-or-none contract: the spread is frozen INCONSISTENT
// and ErrInconsistentSpread is returned for the caller to raise a
// reconciliation alert. The caller must hold the per-spread lock.
func (c *Coordinator) Reconcile(s *schema.SpreadOrder) error {
	if s.Status.IsTerminal() {
		return nil
	}
	if s.HasFilledLeg() && legsDiverged(s) {
		s.Status = schema.StatusInconsistent
		s.UpdatedAt = time.Now().UTC()
		return exception.ErrInconsistentSpread
	}
	return nil
}

// legsDiverged reports whether leg fill ratios differ. Ratios are compared
// by cross-multiplication to stay in integer arithmetic.
func legsDiverged(s *schema.SpreadOrder) bool {
	if len(s.Orders) < 2 {
		return false
	}
	first := s.Orders[0]
	for _, o := range s.Orders[1:] {
		if first.FilledQuantity*o.Leg.Quantity != o.FilledQuantity*first.Leg.Quantity {
			return true
		}
	}
	return false
}

// Cancel validates that a spread can still be cancelled. A spread with at
// least one filled leg is irreversible: the request is rejected, never
// silently ignored. The caller must hold the per-spread lock.
func (c *Coordinator) Cancel(s *schema.SpreadOrder) error {
	if s.Status.IsTerminal() {
		return exception.ErrInvalidTransition
	}
	if s.HasFilledLeg() {
		return exception.ErrIrreversiblePartialState
	}
	return c.Transition(s, schema.StatusCancelled)
}
