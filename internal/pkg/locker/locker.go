// Package locker serializes the duplicate check-then-insert on a checksum.
// Without a lock two concurrent uploads of identical content can both pass
// the duplicate check; the unique constraint on the checksum column is then
// the safety net. With Redis configured the race window is closed instead.
package locker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mhilgert/docdepot/internal/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Locker guards a critical section keyed by an arbitrary string.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// Noop performs no locking. The checksum unique constraint remains the
// only protection against concurrent duplicate inserts.
type Noop struct{}

func (Noop) WithLock(ctx context.Context, key string, fn func() error) error {
	return fn()
}

// RedisLocker implements Locker with a per-key advisory lock in Redis.
type RedisLocker struct {
	client     *redis.Client
	logger     *logger.Logger
	expiration time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(client *redis.Client, log *logger.Logger) *RedisLocker {
	return &RedisLocker{
		client:     client,
		logger:     log,
		expiration: 10 * time.Second,
		maxRetries: 20,
		retryDelay: 50 * time.Millisecond,
	}
}

// lock acquires the lock and returns the fencing token.
func (l *RedisLocker) lock(ctx context.Context, key string) (string, error) {
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, key, token, l.expiration).Result()
	if err != nil {
		l.logger.Error("redis lock failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("failed to acquire lock: %s", key)
	}

	return token, nil
}

// unlock releases the lock only if it still holds our token.
func (l *RedisLocker) unlock(ctx context.Context, key, token string) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`

	result, err := l.client.Eval(ctx, script, []string{key}, token).Result()
	if err != nil {
		return err
	}
	if result.(int64) == 0 {
		return fmt.Errorf("failed to release lock: token mismatch or lock expired")
	}

	return nil
}

// tryLock retries acquisition until the retry budget is spent.
func (l *RedisLocker) tryLock(ctx context.Context, key string) (string, error) {
	var token string
	var err error

	for i := 0; i <= l.maxRetries; i++ {
		token, err = l.lock(ctx, key)
		if err == nil {
			return token, nil
		}

		if i < l.maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(l.retryDelay):
			}
		}
	}

	return "", fmt.Errorf("failed to acquire lock after %d retries: %w", l.maxRetries, err)
}

// WithLock runs fn while holding the lock for key.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	token, err := l.tryLock(ctx, key)
	if err != nil {
		return err
	}

	defer func() {
		if err := l.unlock(ctx, key, token); err != nil {
			l.logger.Warn("failed to release lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()

	return fn()
}
