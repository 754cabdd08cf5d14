package risk

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContextProvider supplies the externally-owned state the gate reads.
// Nothing here is cached: every evaluation fetches fresh values so the
// gate stays stateless per request under horizontal scaling.
type ContextProvider interface {
	// CurrentExposure returns the signed position for a symbol in USD.
	CurrentExposure(ctx context.Context, symbol string) (decimal.Decimal, error)

	// TotalExposure returns the sum of absolute positions in USD.
	TotalExposure(ctx context.Context) (decimal.Decimal, error)

	// PortfolioValue returns total portfolio value in USD; zero when unknown.
	PortfolioValue(ctx context.Context) (decimal.Decimal, error)

	// DailyLoss returns today's realized+unrealized PnL for one strategy,
	// negative for losses.
	DailyLoss(ctx context.Context, strategyID string) (decimal.Decimal, error)

	// TotalDailyLoss returns today's PnL across all strategies.
	TotalDailyLoss(ctx context.Context) (decimal.Decimal, error)

	// ThrottleCount returns how many orders the strategy submitted within
	// the window ending now.
	ThrottleCount(ctx context.Context, strategyID string, window time.Duration) (int, error)

	// KillSwitchEngaged reports the global halt flag.
	KillSwitchEngaged(ctx context.Context) (bool, error)
}
