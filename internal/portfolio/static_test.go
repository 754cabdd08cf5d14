package portfolio

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticExposures(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	got, err := s.CurrentExposure(ctx, "AAPL")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	s.SetPosition("AAPL", decimal.NewFromInt(50_000))
	s.SetPosition("TSLA", decimal.NewFromInt(-30_000))

	got, err = s.CurrentExposure(ctx, "TSLA")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(-30_000)), "positions keep their sign")

	total, err := s.TotalExposure(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(80_000)), "total sums absolute values, got %s", total)
}

func TestStaticDailyLoss(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	s.SetDailyPnL("momentum-1", decimal.NewFromInt(-12_000))
	s.SetDailyPnL("meanrev-2", decimal.NewFromInt(4_000))

	pnl, err := s.DailyLoss(ctx, "momentum-1")
	require.NoError(t, err)
	assert.True(t, pnl.Equal(decimal.NewFromInt(-12_000)))

	total, err := s.TotalDailyLoss(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(-8_000)), "total nets gains against losses")
}

func TestStaticThrottleWindow(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordSubmission(ctx, "momentum-1", now.Add(-2*time.Minute)))
	require.NoError(t, s.RecordSubmission(ctx, "momentum-1", now.Add(-30*time.Second)))
	require.NoError(t, s.RecordSubmission(ctx, "momentum-1", now))
	require.NoError(t, s.RecordSubmission(ctx, "meanrev-2", now))

	n, err := s.ThrottleCount(ctx, "momentum-1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only submissions inside the window count")

	n, err = s.ThrottleCount(ctx, "momentum-1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.ThrottleCount(ctx, "meanrev-2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "strategies throttle independently")
}

func TestStaticKillSwitch(t *testing.T) {
	s := NewStatic()
	ctx := context.Background()

	engaged, err := s.KillSwitchEngaged(ctx)
	require.NoError(t, err)
	assert.False(t, engaged)

	s.SetKillSwitch(true)
	engaged, err = s.KillSwitchEngaged(ctx)
	require.NoError(t, err)
	assert.True(t, engaged)
}
