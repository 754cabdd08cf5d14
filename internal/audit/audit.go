// Package audit serializes every risk decision and state transition as an
// append-only record. Sinks only ever append; update and delete do not
// exist on this surface.
package audit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// RecordKind labels what a record captures.
type RecordKind string

const (
	KindRiskDecision     RecordKind = "RISK_DECISION"
	KindOrderTransition  RecordKind = "ORDER_TRANSITION"
	KindSpreadTransition RecordKind = "SPREAD_TRANSITION"
	KindReconAlert       RecordKind = "RECONCILIATION_ALERT"
	KindAssignment       RecordKind = "ASSIGNMENT"
	KindExercise         RecordKind = "EXERCISE"
	KindDuplicateSignal  RecordKind = "DUPLICATE_SIGNAL"
)

// Record is one immutable audit entry. Payload carries the JSON-encoded
// subject.
type Record struct {
	Seq        uint64     `json:"seq"`
	RecordID   string     `json:"record_id"`
	Kind       RecordKind `json:"kind"`
	StrategyID string     `json:"strategy_id,omitempty"`
	Symbol     string     `json:"symbol,omitempty"`
	Payload    []byte     `json:"payload"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Sink receives records. Implementations must be safe for concurrent use.
type Sink interface {
	Append(ctx context.Context, record Record) error
}

// Emitter stamps sequence numbers and fans records into a sink.
type Emitter struct {
	sink Sink
	seq  atomic.Uint64
}

// NewEmitter creates an emitter over the given sink.
func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink}
}

func (e *Emitter) append(ctx context.Context, kind RecordKind, strategyID, symbol string, subject any) error {
	payload, err := sonic.Marshal(subject)
	if err != nil {
		return errors.Wrap(err, "encode audit payload")
	}
	record := Record{
		Seq:        e.seq.Add(1),
		RecordID:   uuid.NewString(),
		Kind:       kind,
		StrategyID: strategyID,
		Symbol:     symbol,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
	return errors.Wrap(e.sink.Append(ctx, record), "append audit record")
}

// RiskDecision appends the gate's verdict.
func (e *Emitter) RiskDecision(ctx context.Context, d schema.RiskDecision) error {
	return e.append(ctx, KindRiskDecision, d.StrategyID, d.Symbol, d)
}

// DuplicateSignal appends an idempotency-hit marker.
func (e *Emitter) DuplicateSignal(ctx context.Context, key, strategyID, symbol string) error {
	return e.append(ctx, KindDuplicateSignal, strategyID, symbol, map[string]string{"signal_key": key})
}

type transitionPayload struct {
	ID     string             `json:"id"`
	From   schema.OrderStatus `json:"from"`
	To     schema.OrderStatus `json:"to"`
	Detail string             `json:"detail,omitempty"`
}

// OrderTransition appends one order lifecycle step.
func (e *Emitter) OrderTransition(ctx context.Context, o *schema.Order, from schema.OrderStatus, detail string) error {
	return e.append(ctx, KindOrderTransition, o.StrategyID, o.Leg.Symbol, transitionPayload{
		ID: o.OrderID, From: from, To: o.Status, Detail: detail,
	})
}

// SpreadTransition appends one spread lifecycle step.
func (e *Emitter) SpreadTransition(ctx context.Context, s *schema.SpreadOrder, from schema.OrderStatus, detail string) error {
	symbol := ""
	if len(s.Legs) > 0 {
		symbol = s.Legs[0].Symbol
	}
	return e.append(ctx, KindSpreadTransition, s.StrategyID, symbol, transitionPayload{
		ID: s.SpreadID, From: from, To: s.Status, Detail: detail,
	})
}

// ReconciliationAlert appends a fail-loud reconciliation fault.
func (e *Emitter) ReconciliationAlert(ctx context.Context, id, strategyID, symbol, detail string) error {
	return e.append(ctx, KindReconAlert, strategyID, symbol, map[string]string{
		"id": id, "detail": detail,
	})
}

// Assignment appends an assignment event record.
func (e *Emitter) Assignment(ctx context.Context, strategyID string, ev schema.AssignmentEvent) error {
	return e.append(ctx, KindAssignment, strategyID, ev.ContractSymbol, ev)
}

// Exercise appends an exercise event record.
func (e *Emitter) Exercise(ctx context.Context, strategyID string, ev schema.ExerciseEvent) error {
	return e.append(ctx, KindExercise, strategyID, ev.ContractSymbol, ev)
}
