// Package ledger deduplicates signal processing by request key. The ledger
// is the single source of truth for "has this signal already produced an
// order": the router may run as multiple instances and must not rely on
// its own memory.
package ledger

import (
	"context"
	"sync"
	"time"

	"main/internal/schema"
)

// Outcome is what a completed reservation produced, replayed to duplicate
// callers instead of re-running the pipeline.
type Outcome struct {
	Decision schema.RiskOutcome    `json:"decision"`
	OrderID  string                `json:"order_id,omitempty"`
	SpreadID string                `json:"spread_id,omitempty"`
	Reasons  []schema.RejectReason `json:"reasons,omitempty"`
}

// Ledger reserves request keys. At most one concurrent Reserve for the
// same key may succeed within the dedupe window.
type Ledger interface {
	// Reserve claims a key. False means the key was already claimed.
	Reserve(ctx context.Context, key string) (bool, error)

	// Commit records the outcome for a reserved key.
	Commit(ctx context.Context, key string, outcome Outcome) error

	// Release frees a reservation whose processing failed before any order
	// reached a venue, so a retry can claim the key again.
	Release(ctx context.Context, key string) error

	// Outcome returns the committed outcome for a key, if any.
	Outcome(ctx context.Context, key string) (Outcome, bool, error)
}

type memoryEntry struct {
	outcome   Outcome
	committed bool
	claimedAt time.Time
}

// Memory is the in-process ledger for paper runs and tests.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*memoryEntry
}

// NewMemory creates an in-memory ledger with the given dedupe window
// (0 = keep forever).
func NewMemory(window time.Duration) *Memory {
	return &Memory{
		window:  window,
		entries: make(map[string]*memoryEntry),
	}
}

// Reserve claims the key unless a live reservation exists.
func (m *Memory) Reserve(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if e, ok := m.entries[key]; ok {
		if m.window == 0 || now.Sub(e.claimedAt) < m.window {
			return false, nil
		}
	}
	m.entries[key] = &memoryEntry{claimedAt: now}
	return true, nil
}

// Commit stores the outcome for the key.
func (m *Memory) Commit(_ context.Context, key string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.outcome = outcome
		e.committed = true
	}
	return nil
}

// Release frees the reservation.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Outcome returns the committed outcome for the key.
func (m *Memory) Outcome(_ context.Context, key string) (Outcome, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.committed {
		return e.outcome, true, nil
	}
	return Outcome{}, false, nil
}
