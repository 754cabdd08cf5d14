// Package portfolio provides the risk gate's view of account state. The
// static provider backs paper runs and tests; the redis provider shares
// state across engine instances.
package portfolio

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Static holds account state in memory. Safe for concurrent use.
type Static struct {
	mu         sync.RWMutex
	positions  map[string]decimal.Decimal
	value      decimal.Decimal
	dailyPnL   map[string]decimal.Decimal
	submitted  map[string][]time.Time
	killSwitch bool
}

// NewStatic creates an empty in-memory provider.
func NewStatic() *Static {
	return &Static{
		positions: make(map[string]decimal.Decimal),
		dailyPnL:  make(map[string]decimal.Decimal),
		submitted: make(map[string][]time.Time),
	}
}

// SetPosition sets the signed USD exposure for a symbol.
func (s *Static) SetPosition(symbol string, exposure decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[symbol] = exposure
}

// SetPortfolioValue sets the total account value.
func (s *Static) SetPortfolioValue(v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
}

// SetDailyPnL sets today's PnL for a strategy, negative for losses.
func (s *Static) SetDailyPnL(strategyID string, pnl decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dailyPnL[strategyID] = pnl
}

// RecordSubmission counts an order submission against the throttle.
func (s *Static) RecordSubmission(_ context.Context, strategyID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted[strategyID] = append(s.submitted[strategyID], at)
	return nil
}

// SetKillSwitch flips the global halt flag.
func (s *Static) SetKillSwitch(engaged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitch = engaged
}

// CurrentExposure returns the signed position for a symbol.
func (s *Static) CurrentExposure(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions[symbol], nil
}

// TotalExposure sums absolute positions.
func (s *Static) TotalExposure(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, p := range s.positions {
		total = total.Add(p.Abs())
	}
	return total, nil
}

// PortfolioValue returns the configured account value.
func (s *Static) PortfolioValue(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

// DailyLoss returns today's PnL for one strategy.
func (s *Static) DailyLoss(_ context.Context, strategyID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dailyPnL[strategyID], nil
}

// TotalDailyLoss sums today's PnL across strategies.
func (s *Static) TotalDailyLoss(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := decimal.Zero
	for _, pnl := range s.dailyPnL {
		total = total.Add(pnl)
	}
	return total, nil
}

// ThrottleCount counts submissions inside the window ending now.
func (s *Static) ThrottleCount(_ context.Context, strategyID string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, at := range s.submitted[strategyID] {
		if at.After(cutoff) {
			n++
		}
	}
	return n, nil
}

// KillSwitchEngaged reports the halt flag.
func (s *Static) KillSwitchEngaged(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.killSwitch, nil
}
