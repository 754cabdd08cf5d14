package om

import (
	"sync"
	"time"

	"main/internal/schema"
	"main/pkg/exception"
)

// CanTransition reports whether the lifecycle permits moving from one
// status to another. No transition leaves a terminal status.
func CanTransition(from, to schema.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case schema.StatusPendingValidation:
		switch to {
		case schema.StatusValidated, schema.StatusRejected, schema.StatusCancelled:
			return true
		}
	case schema.StatusValidated:
		switch to {
		case schema.StatusSubmitted, schema.StatusRejected, schema.StatusCancelled, schema.StatusExpired:
			return true
		}
	case schema.StatusSubmitted:
		switch to {
		case schema.StatusPartiallyFilled, schema.StatusFilled, schema.StatusRejected,
			schema.StatusCancelled, schema.StatusExpired, schema.StatusInconsistent:
			return true
		}
	case schema.StatusPartiallyFilled:
		switch to {
		case schema.StatusSubmitted, schema.StatusFilled, schema.StatusCancelled,
			schema.StatusExpired, schema.StatusInconsistent:
			return true
		}
	}
	return false
}

// Book tracks live and terminal orders. Mutations on the same order are
// serialized through a per-order lock so a broker submission and a fill
// notification cannot interleave.
type Book struct {
	mu     sync.RWMutex
	orders map[string]*schema.Order
	locks  map[string]*sync.Mutex
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		orders: make(map[string]*schema.Order),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Add registers a new order.
func (b *Book) Add(o *schema.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[o.OrderID]; ok {
		return exception.ErrDuplicateOrder
	}
	b.orders[o.OrderID] = o
	b.locks[o.OrderID] = &sync.Mutex{}
	return nil
}

// Get returns the current order state.
func (b *Book) Get(orderID string) (*schema.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[orderID]
	return o, ok
}

// Snapshot returns the current set of tracked orders. The slice is a
// fresh copy; the pointed-to orders are live and still need the per-order
// lock for mutation.
func (b *Book) Snapshot() []*schema.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	orders := make([]*schema.Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, o)
	}
	return orders
}

// Lock returns the per-order mutex, registering it if needed.
func (b *Book) Lock(orderID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[orderID] = l
	}
	return l
}

// Transition moves an order to a new status after validating the lifecycle.
// The caller must hold the per-order lock.
func (b *Book) Transition(o *schema.Order, to schema.OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return exception.ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = time.Now().UTC()
	return nil
}
