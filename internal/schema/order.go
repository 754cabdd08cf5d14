package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the lifecycle of an order or spread.
type OrderStatus string

const (
	StatusPendingValidation OrderStatus = "PENDING_VALIDATION"
	StatusValidated         OrderStatus = "VALIDATED"
	StatusSubmitted         OrderStatus = "SUBMITTED"
	StatusPartiallyFilled   OrderStatus = "PARTIALLY_FILLED"
	StatusFilled            OrderStatus = "FILLED"
	StatusCancelled         OrderStatus = "CANCELLED"
	StatusRejected          OrderStatus = "REJECTED"
	StatusExpired           OrderStatus = "EXPIRED"

	// StatusInconsistent marks reconciliation faults: an overfilled order or
	// a spread whose legs diverged without an all-or-none guarantee. Frozen
	// until manual intervention.
	StatusInconsistent OrderStatus = "INCONSISTENT"
)

// IsTerminal reports whether no further transitions are permitted.
// INCONSISTENT is frozen rather than terminal in the business sense, but it
// blocks transitions all the same.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired, StatusInconsistent:
		return true
	default:
		return false
	}
}

// Order is one leg plus its execution bookkeeping. Created by the router,
// advanced by the fill processor, never deleted.
type Order struct {
	OrderID        string          `json:"order_id"`
	StrategyID     string          `json:"strategy_id"`
	Leg            Leg             `json:"leg"`
	LimitPrice     decimal.Decimal `json:"limit_price,omitempty"`
	Status         OrderStatus     `json:"status"`
	BrokerRef      string          `json:"broker_ref,omitempty"`
	FilledQuantity int64           `json:"filled_quantity"`
	FilledNotional decimal.Decimal `json:"filled_notional"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// RemainingQuantity returns the unfilled contract count.
func (o *Order) RemainingQuantity() int64 {
	return o.Leg.Quantity - o.FilledQuantity
}

// SpreadOrder owns two or more leg orders that must execute as one atomic
// unit at the venue. Status is derived from the legs, never stored apart
// from them, except for the pre-fill lifecycle stages.
type SpreadOrder struct {
	SpreadID      string          `json:"spread_id"`
	StrategyID    string          `json:"strategy_id"`
	Legs          []Leg           `json:"legs"`
	NetLimitPrice decimal.Decimal `json:"net_limit_price,omitempty"`
	Status        OrderStatus     `json:"status"`
	BrokerRef     string          `json:"broker_ref,omitempty"`
	Orders        []*Order        `json:"orders"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DeriveStatus computes the fill-phase status from the leg orders:
// FILLED iff every leg is filled, PARTIALLY_FILLED iff at least one leg has
// nonzero fill, INCONSISTENT if any leg froze.
func (s *SpreadOrder) DeriveStatus() OrderStatus {
	filled := 0
	anyFill := false
	for _, o := range s.Orders {
		if o.Status == StatusInconsistent {
			return StatusInconsistent
		}
		if o.Status == StatusFilled {
			filled++
		}
		if o.FilledQuantity > 0 {
			anyFill = true
		}
	}
	switch {
	case len(s.Orders) > 0 && filled == len(s.Orders):
		return StatusFilled
	case anyFill:
		return StatusPartiallyFilled
	default:
		return s.Status
	}
}

// HasFilledLeg reports whether any leg has nonzero filled quantity.
func (s *SpreadOrder) HasFilledLeg() bool {
	for _, o := range s.Orders {
		if o.FilledQuantity > 0 {
			return true
		}
	}
	return false
}
