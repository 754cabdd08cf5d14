// Package broker defines the venue adapter contract and the simulated
// adapters behind it. Capability gaps surface as exception.ErrUnsupported,
// never as silent no-ops.
package broker

import (
	"context"

	"main/internal/schema"
)

// Adapter is the polymorphic broker contract. SubmitSpread and
// SubmitOptionSpread must accept or reject the whole spread atomically at
// the venue, or document themselves as non-atomic so callers can expect
// the inconsistent-fill reconciliation path.
type Adapter interface {
	// Name returns the broker identifier.
	Name() string

	// SubmitOrder submits a single equity order, returning the venue ref.
	SubmitOrder(ctx context.Context, order *schema.Order) (string, error)

	// SubmitSpread submits a multi-leg equity spread atomically.
	SubmitSpread(ctx context.Context, spread *schema.SpreadOrder) (string, error)

	// SubmitOptionOrder submits a single-leg option order.
	SubmitOptionOrder(ctx context.Context, order *schema.Order) (string, error)

	// SubmitOptionSpread submits a multi-leg option spread atomically.
	SubmitOptionSpread(ctx context.Context, spread *schema.SpreadOrder) (string, error)

	// Cancel requests cancellation by venue ref. The returned status is the
	// venue's view after the request; cancellation of an already-terminal
	// order fails with exception.ErrCancelRejected.
	Cancel(ctx context.Context, brokerRef string) (schema.OrderStatus, error)
}

// AtomicVenue is implemented by adapters that guarantee all-or-none spread
// execution. Adapters without the guarantee exercise the reconciliation
// path downstream.
type AtomicVenue interface {
	AtomicSpreads() bool
}

// IsAtomic reports the adapter's spread guarantee, defaulting to atomic
// for adapters that do not declare one.
func IsAtomic(a Adapter) bool {
	if v, ok := a.(AtomicVenue); ok {
		return v.AtomicSpreads()
	}
	return true
}
