package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("employee lock not acquired")
)

// Locker serializes booking commits per employee.
type Locker interface {
	WithEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisEmployeeLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisEmployeeLocker creates a locker that uses a per employee Redis key.
// A caller that finds the key taken polls for up to wait before giving up.
func NewRedisEmployeeLocker(client *redis.Client, ttl, wait time.Duration) Locker {
	return &redisEmployeeLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

func lockKey(employeeID uuid.UUID) string {
	return fmt.Sprintf("lock:employee:%s", employeeID.String())
}

func (l *redisEmployeeLocker) WithEmployeeLock(ctx context.Context, employeeID uuid.UUID, fn func(ctx context.Context) error) error {
	key := lockKey(employeeID)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// The request context may already be done; release on a fresh one.
		relCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(relCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisEmployeeLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	backoff := 5 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire employee lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire employee lock: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 100*time.Millisecond {
			backoff *= 2
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisEmployeeLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release employee lock: %w", err)
	}
	return nil
}
