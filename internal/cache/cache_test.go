package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/courier"
)

func setup(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, zap.NewNop()), mr
}

func TestCache_Balance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := setup(t)

	_, found, err := c.GetBalance(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	in := CachedBalance{
		Balance:   courier.Balance{Amount: decimal.RequireFromString("125.50"), Currency: "MYR"},
		FetchedAt: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetBalance(ctx, in, 5*time.Minute))

	got, found, err := c.GetBalance(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, in.Balance.Amount.Equal(got.Balance.Amount))
	assert.Equal(t, "MYR", got.Balance.Currency)

	mr.FastForward(6 * time.Minute)
	_, found, err = c.GetBalance(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SetBalance(ctx, in, time.Minute))
	require.NoError(t, c.InvalidateBalance(ctx))
	assert.False(t, mr.Exists(balanceKey))
}

func TestCache_Snapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := setup(t)

	s := Snapshot{
		ShipmentID:     "b7d1",
		TrackingNumber: "JT123",
		Status:         "IN_TRANSIT",
		RawStatus:      "In Transit",
		TrackedAt:      time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, c.SetSnapshot(ctx, s, time.Hour))
	assert.True(t, mr.Exists("tracking:snapshot:b7d1"))

	got, found, err := c.GetSnapshot(ctx, "b7d1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "JT123", got.TrackingNumber)
	assert.Nil(t, got.LatestEvent)
}

func TestCache_WithLock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := setup(t)

	var inner error
	err := c.WithLock(ctx, "lock:tracking", time.Minute, func(ctx context.Context) error {
		assert.True(t, mr.Exists("lock:tracking"))
		inner = c.WithLock(ctx, "lock:tracking", time.Minute, func(context.Context) error {
			t.Fatal("second holder must not run")
			return nil
		})
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrLockHeld)
	assert.False(t, mr.Exists("lock:tracking"))

	boom := errors.New("boom")
	err = c.WithLock(ctx, "lock:tracking", time.Minute, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestCache_WithLockKeepsLockAlive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := setup(t)

	err := c.WithLock(ctx, "lock:tracking", 200*time.Millisecond, func(ctx context.Context) error {
		mr.FastForward(150 * time.Millisecond)
		time.Sleep(250 * time.Millisecond)
		mr.FastForward(150 * time.Millisecond)
		assert.True(t, mr.Exists("lock:tracking"))
		assert.NoError(t, ctx.Err())
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:tracking"))
}

func TestCache_WithLockLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, mr := setup(t)

	err := c.WithLock(ctx, "lock:tracking", 100*time.Millisecond, func(ctx context.Context) error {
		mr.Del("lock:tracking")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			t.Fatal("holder kept running after the lock was lost")
			return nil
		}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCache_Disabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := New(nil, zap.NewNop())

	assert.False(t, c.Enabled())
	require.NoError(t, c.SetBalance(ctx, CachedBalance{}, time.Minute))
	_, found, err := c.GetBalance(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, c.InvalidateBalance(ctx))

	ran := false
	require.NoError(t, c.WithLock(ctx, "lock:x", time.Minute, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	var nilCache *Cache
	assert.False(t, nilCache.Enabled())
}
