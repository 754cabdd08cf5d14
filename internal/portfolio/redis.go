package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

const (
	positionPrefix = "trade:position:"
	pnlPrefix      = "trade:pnl:"
	throttlePrefix = "trade:throttle:"

	portfolioValueKey = "trade:portfolio_value"
	killSwitchKey     = "trade:kill_switch"
)

// Redis reads shared account state written by the position keeper. Only
// RecordSubmission writes; everything else is a read path for the gate.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed provider.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// CurrentExposure returns the signed USD position stored for the symbol.
func (r *Redis) CurrentExposure(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return r.decimalAt(ctx, positionPrefix+symbol)
}

// TotalExposure sums absolute positions over the position keyspace.
func (r *Redis) TotalExposure(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	iter := r.client.Scan(ctx, 0, positionPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		v, err := r.decimalAt(ctx, iter.Val())
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v.Abs())
	}
	if err := iter.Err(); err != nil {
		return decimal.Zero, errors.Wrap(err, "scan positions")
	}
	return total, nil
}

// PortfolioValue returns the stored account value, zero when unset.
func (r *Redis) PortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	return r.decimalAt(ctx, portfolioValueKey)
}

// DailyLoss returns the stored PnL for one strategy.
func (r *Redis) DailyLoss(ctx context.Context, strategyID string) (decimal.Decimal, error) {
	return r.decimalAt(ctx, pnlPrefix+strategyID)
}

// TotalDailyLoss sums the PnL keyspace.
func (r *Redis) TotalDailyLoss(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	iter := r.client.Scan(ctx, 0, pnlPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		v, err := r.decimalAt(ctx, iter.Val())
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	if err := iter.Err(); err != nil {
		return decimal.Zero, errors.Wrap(err, "scan pnl")
	}
	return total, nil
}

// RecordSubmission appends a submission timestamp to the strategy's
// throttle set, trimming entries older than the retention horizon.
func (r *Redis) RecordSubmission(ctx context.Context, strategyID string, at time.Time) error {
	key := throttlePrefix + strategyID
	member := fmt.Sprintf("%d:%s", at.UnixNano(), uuid.NewString()[:8])
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0",
		fmt.Sprintf("%d", at.Add(-2*time.Hour).UnixNano()))
	pipe.Expire(ctx, key, 3*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "record submission")
	}
	return nil
}

// ThrottleCount counts submissions inside the window ending now.
func (r *Redis) ThrottleCount(ctx context.Context, strategyID string, window time.Duration) (int, error) {
	cutoff := time.Now().Add(-window).UnixNano()
	n, err := r.client.ZCount(ctx, throttlePrefix+strategyID,
		fmt.Sprintf("%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, errors.Wrap(err, "throttle count")
	}
	return int(n), nil
}

// KillSwitchEngaged reports whether the halt flag is set to "1".
func (r *Redis) KillSwitchEngaged(ctx context.Context) (bool, error) {
	v, err := r.client.Get(ctx, killSwitchKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, errors.Wrap(err, "read kill switch")
	}
	return v == "1", nil
}

// EngageKillSwitch sets the global halt flag.
func (r *Redis) EngageKillSwitch(ctx context.Context) error {
	return r.client.Set(ctx, killSwitchKey, "1", 0).Err()
}

// ReleaseKillSwitch clears the global halt flag.
func (r *Redis) ReleaseKillSwitch(ctx context.Context) error {
	return r.client.Del(ctx, killSwitchKey).Err()
}

func (r *Redis) decimalAt(ctx context.Context, key string) (decimal.Decimal, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return decimal.Zero, nil
		}
		return decimal.Zero, errors.Wrap(err, "read "+key)
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse "+key)
	}
	return d, nil
}
