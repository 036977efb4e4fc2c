// Package cache keeps short-lived copies of courier data in Redis. A Cache
// without a client is valid and caches nothing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrLockHeld = errors.New("lock is held by another instance")

type Cache struct {
	rdb    *redis.Client
	locker *redislock.Client
	logger *zap.Logger
}

func New(rdb *redis.Client, logger *zap.Logger) *Cache {
	c := &Cache{rdb: rdb, logger: logger}
	if rdb != nil {
		c.locker = redislock.New(rdb)
	}
	return c
}

// Connect dials Redis, retrying with a capped exponential pause until
// attempts run out or ctx ends.
func Connect(ctx context.Context, opts *redis.Options, attempts int, logger *zap.Logger) (*redis.Client, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		rdb := redis.NewClient(opts)
		if lastErr = rdb.Ping(ctx).Err(); lastErr == nil {
			logger.Info("connected to redis", zap.Int("attempt", attempt), zap.String("addr", opts.Addr))
			return rdb, nil
		}
		_ = rdb.Close()

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.Warn("failed to connect redis",
			zap.Int("attempt", attempt),
			zap.String("addr", opts.Addr),
			zap.Duration("retry_in", sleep),
			zap.Error(lastErr))
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, lastErr)
}

func (c *Cache) Enabled() bool {
	return c != nil && c.rdb != nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// GetObject decodes the JSON value at key into dest and reports whether the
// key existed.
func (c *Cache) GetObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) SetObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, exp).Err()
}

func (c *Cache) Remove(ctx context.Context, keys ...string) error {
	if !c.Enabled() || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// WithLock runs fn while holding the named lock. It returns ErrLockHeld
// without running fn when another holder has it. Without Redis fn always
// runs. The lock is extended every ttl/2 while fn runs; if it is lost, the
// context passed to fn is cancelled.
func (c *Cache) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if !c.Enabled() {
		return fn(ctx)
	}
	lock, err := c.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("failed to obtain lock %s: %w", key, err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			c.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if ttl/2 > 0 {
		done := make(chan struct{})
		defer close(done)
		go c.keepAlive(runCtx, cancel, done, lock, key, ttl)
	}

	return fn(runCtx)
}

func (c *Cache) keepAlive(ctx context.Context, cancel context.CancelFunc, done <-chan struct{}, lock *redislock.Lock, key string, ttl time.Duration) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := lock.Refresh(ctx, ttl, nil)
			if err == nil {
				continue
			}
			if errors.Is(err, redislock.ErrNotObtained) {
				c.logger.Error("lock lost, stopping holder", zap.String("key", key))
				cancel()
				return
			}
			c.logger.Warn("failed to extend lock", zap.String("key", key), zap.Error(err))
		}
	}
}
