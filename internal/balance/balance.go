// Package balance serves the courier account balance through a short-lived
// cache.
package balance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/cache"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
)

//go:generate mockgen -source ./balance.go -destination=./mocks/balance.go -package=mock_balance

type Cache interface {
	GetBalance(ctx context.Context) (*cache.CachedBalance, bool, error)
	SetBalance(ctx context.Context, b cache.CachedBalance, ttl time.Duration) error
}

type View struct {
	Success   bool            `json:"success"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Cached    bool            `json:"cached"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

type Service struct {
	courier courier.Client
	cache   Cache
	ttl     time.Duration
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewService(courierClient courier.Client, c Cache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{courier: courierClient, cache: c, ttl: ttl, logger: logger, timeNow: time.Now}
}

// Get returns the cached balance when present, otherwise asks the courier
// and caches the answer. Cache failures only cost a courier call.
func (s *Service) Get(ctx context.Context) (*View, error) {
	cached, found, err := s.cache.GetBalance(ctx)
	if err != nil {
		s.logger.Warn("failed to read cached balance", zap.Error(err))
	}
	if found {
		return &View{
			Success:   true,
			Balance:   cached.Balance.Amount,
			Currency:  cached.Balance.Currency,
			Cached:    true,
			FetchedAt: cached.FetchedAt,
		}, nil
	}

	res := s.courier.GetBalance(ctx)
	if !res.Success {
		return nil, apperr.External("failed to fetch courier balance", res.Error)
	}

	fresh := cache.CachedBalance{Balance: res.Data, FetchedAt: s.timeNow().UTC()}
	if err := s.cache.SetBalance(ctx, fresh, s.ttl); err != nil {
		s.logger.Warn("failed to cache balance", zap.Error(err))
	}
	return &View{
		Success:   true,
		Balance:   fresh.Balance.Amount,
		Currency:  fresh.Balance.Currency,
		FetchedAt: fresh.FetchedAt,
	}, nil
}
