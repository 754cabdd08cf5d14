package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestReserveOnceWithinWindow(t *testing.T) {
	led := NewMemory(time.Hour)

	ok, err := led.Reserve(context.Background(), "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = led.Reserve(context.Background(), "k1")
	require.NoError(t, err)
	assert.False(t, ok, "second reserve for the same key must lose")

	ok, err = led.Reserve(context.Background(), "k2")
	require.NoError(t, err)
	assert.True(t, ok, "different keys are independent")
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	led := NewMemory(time.Hour)

	const goroutines = 32
	var wg sync.WaitGroup
	winners := make(chan struct{}, goroutines)

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := led.Reserve(context.Background(), "contested")
			if err == nil && ok {
				winners <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(winners)

	assert.Len(t, collect(winners), 1, "exactly one goroutine may win the key")
}

func collect(ch chan struct{}) []struct{} {
	var out []struct{}
	for v := range ch {
		out = append(out, v)
	}
	return out
}

func TestCommitAndOutcome(t *testing.T) {
	led := NewMemory(time.Hour)
	ctx := context.Background()

	_, ok, err := led.Outcome(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "no outcome before commit")

	reserved, err := led.Reserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, reserved)

	_, ok, err = led.Outcome(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok, "reserved but uncommitted has no outcome")

	want := Outcome{
		Decision: schema.RiskAccept,
		OrderID:  "o1",
	}
	require.NoError(t, led.Commit(ctx, "k1", want))

	got, ok, err := led.Outcome(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestReleaseFreesKey(t *testing.T) {
	led := NewMemory(time.Hour)
	ctx := context.Background()

	reserved, err := led.Reserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, reserved)

	require.NoError(t, led.Release(ctx, "k1"))

	reserved, err = led.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, reserved, "released key can be claimed again")
}

func TestWindowExpiryAllowsReclaim(t *testing.T) {
	led := NewMemory(10 * time.Millisecond)
	ctx := context.Background()

	reserved, err := led.Reserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, reserved)

	time.Sleep(20 * time.Millisecond)

	reserved, err = led.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, reserved, "expired reservations are reclaimable")
}
