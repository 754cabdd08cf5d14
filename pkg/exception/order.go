package exception

import "errors"

// Order and spread state faults.
var (
	ErrUnknownOrder      = errors.New("order: not found")
	ErrDuplicateOrder    = errors.New("order: already exists")
	ErrInvalidTransition = errors.New("order: invalid state transition")
	ErrUnknownSpread     = errors.New("spread: not found")
	ErrDuplicateSpread   = errors.New("spread: already exists")
	ErrSpreadLegIndex    = errors.New("spread: leg index out of range")
	ErrSpreadTooFewLegs  = errors.New("spread: needs at least 2 legs")
	ErrSpreadTooManyLegs = errors.New("spread: more than 4 legs")
	ErrSpreadRule        = errors.New("spread: legs violate consistency rule")

	// ErrIrreversiblePartialState rejects cancelling a spread once any leg
	// has filled: money already changed hands.
	ErrIrreversiblePartialState = errors.New("spread: irreversible partial state")
)

// Reconciliation faults. Fatal: freeze state, alert, manual intervention.
var (
	ErrOverfill           = errors.New("fill: cumulative quantity exceeds ordered quantity")
	ErrInconsistentSpread = errors.New("spread: per-leg fills violate all-or-none contract")
	ErrInvalidFillPrice   = errors.New("fill: price must be positive")
	ErrInvalidFillQty     = errors.New("fill: quantity must be positive")
)
