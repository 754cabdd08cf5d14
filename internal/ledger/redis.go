package ledger

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

const (
	reservePrefix = "trade:reserve:"
	outcomePrefix = "trade:outcome:"

	reservedMarker = "RESERVED"
)

// Redis is the shared ledger for multi-instance deployments. Reservation is
// a single SETNX so exactly one caller wins the key across processes.
type Redis struct {
	client *redis.Client
	window time.Duration
}

// NewRedis creates a Redis-backed ledger with the given dedupe window.
func NewRedis(client *redis.Client, window time.Duration) *Redis {
	return &Redis{client: client, window: window}
}

// Reserve claims the key via SETNX with the window as TTL.
func (r *Redis) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, reservePrefix+key, reservedMarker, r.window).Result()
	if err != nil {
		return false, exception.Wrap(exception.ErrLedgerUnavailable, err.Error())
	}
	return ok, nil
}

// Commit stores the serialized outcome alongside the reservation.
func (r *Redis) Commit(ctx context.Context, key string, outcome Outcome) error {
	raw, err := sonic.Marshal(outcome)
	if err != nil {
		return errors.Wrap(err, "marshal ledger outcome")
	}

	if err := r.client.Set(ctx, outcomePrefix+key, raw, r.window).Err(); err != nil {
		return exception.Wrap(exception.ErrLedgerUnavailable, err.Error())
	}

	return nil
}

// Release drops both the reservation and any committed outcome.
func (r *Redis) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, reservePrefix+key, outcomePrefix+key).Err(); err != nil {
		return exception.Wrap(exception.ErrLedgerUnavailable, err.Error())
	}
	return nil
}

// Outcome fetches the committed outcome for the key, if present.
func (r *Redis) Outcome(ctx context.Context, key string) (Outcome, bool, error) {
	raw, err := r.client.Get(ctx, outcomePrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Outcome{}, false, nil
		}
		return Outcome{}, false, exception.Wrap(exception.ErrLedgerUnavailable, err.Error())
	}

	var out Outcome
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return Outcome{}, false, errors.Wrap(err, "unmarshal ledger outcome")
	}

	return out, true, nil
}
