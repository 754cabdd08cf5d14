package conn

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisAddr = "localhost:6379"

// RedisOption defines connection options for Redis.
type RedisOption struct {
	Addr     string
	Password string
	DB       int
}

// NewRedis creates a Redis client and verifies connectivity.
func NewRedis(ctx context.Context, option RedisOption) (*redis.Client, error) {
	addr := option.Addr
	if addr == "" {
		addr = defaultRedisAddr
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: option.Password,
		DB:       option.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
