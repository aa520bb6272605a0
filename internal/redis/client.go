package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ClientOptions struct {
	Addr     string
	Username string
	Password string
	PoolSize int
	// LockWait is how long commits poll for a lock. Socket timeouts stay
	// below it so a slow Redis surfaces as an error, not a hung commit.
	LockWait time.Duration
}

func clientOptions(o ClientOptions) *redis.Options {
	timeout := 2 * time.Second
	if o.LockWait > 0 && o.LockWait/2 < timeout {
		timeout = o.LockWait / 2
	}
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		PoolSize:     o.PoolSize,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
}

func NewRedisClient(ctx context.Context, o ClientOptions) (*redis.Client, error) {
	rdb := redis.NewClient(clientOptions(o))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", o.Addr, err)
	}

	return rdb, nil
}
