package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is append-only execution evidence from a broker. Exactly one of
// OrderID/SpreadID is set; LegIndex addresses a spread leg.
type Fill struct {
	FillID       string          `json:"fill_id"`
	OrderID      string          `json:"order_id,omitempty"`
	SpreadID     string          `json:"spread_id,omitempty"`
	LegIndex     int             `json:"leg_index,omitempty"`
	Quantity     int64           `json:"quantity"`
	Price        decimal.Decimal `json:"price"`
	BrokerFillID string          `json:"broker_fill_id"`
	Timestamp    time.Time       `json:"timestamp"`
}

// AssignmentEvent records that a short option position was exercised
// against. Pure output; never applied to any position store here.
type AssignmentEvent struct {
	EventID        string          `json:"event_id"`
	ContractSymbol string          `json:"contract_symbol"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ExerciseEvent records that a long option was exercised by its holder.
// Pure output; never applied to any position store here.
type ExerciseEvent struct {
	EventID        string          `json:"event_id"`
	ContractSymbol string          `json:"contract_symbol"`
	Quantity       int64           `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	Timestamp      time.Time       `json:"timestamp"`
}
