package tracking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/cache"
)

const scheduleLockKey = "lock:tracking:scheduled-refresh"

type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Scheduler periodically refreshes shipments that are due for an update.
// Instances share a lock so only one of them runs each tick.
type Scheduler struct {
	refresher BatchRefresher
	locker    Locker
	interval  time.Duration
	lockTTL   time.Duration
	logger    *zap.Logger
}

func NewScheduler(refresher BatchRefresher, locker Locker, interval, lockTTL time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{refresher: refresher, locker: locker, interval: interval, lockTTL: lockTTL, logger: logger}
}

func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("tracking scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("tracking scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one due-for-update refresh unless another instance holds the
// lock.
func (s *Scheduler) Tick(ctx context.Context) {
	err := s.locker.WithLock(ctx, scheduleLockKey, s.lockTTL, func(ctx context.Context) error {
		_, err := s.refresher.Refresh(ctx, Selection{}, audit.SystemActor)
		return err
	})
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		s.logger.Debug("scheduled refresh skipped, another instance is running it")
	case err != nil:
		s.logger.Error("scheduled refresh failed", zap.Error(err))
	}
}
