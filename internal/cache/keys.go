package cache

import (
	"context"
	"time"

	"github.com/ecomjrm/fulfillment-sync/internal/courier"
)

const (
	balanceKey        = "courier:balance"
	snapshotKeyPrefix = "tracking:snapshot:"
)

type CachedBalance struct {
	Balance   courier.Balance `json:"balance"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

func (c *Cache) GetBalance(ctx context.Context) (*CachedBalance, bool, error) {
	var b CachedBalance
	found, err := c.GetObject(ctx, balanceKey, &b)
	if err != nil || !found {
		return nil, false, err
	}
	return &b, true, nil
}

func (c *Cache) SetBalance(ctx context.Context, b CachedBalance, ttl time.Duration) error {
	return c.SetObject(ctx, balanceKey, b, ttl)
}

func (c *Cache) InvalidateBalance(ctx context.Context) error {
	return c.Remove(ctx, balanceKey)
}

// Snapshot is the latest courier view of one shipment.
type Snapshot struct {
	ShipmentID     string                 `json:"shipmentId"`
	TrackingNumber string                 `json:"trackingNumber"`
	Status         string                 `json:"status"`
	RawStatus      string                 `json:"rawStatus"`
	LatestEvent    *courier.TrackingEvent `json:"latestEvent,omitempty"`
	TrackedAt      time.Time              `json:"trackedAt"`
}

func (c *Cache) GetSnapshot(ctx context.Context, shipmentID string) (*Snapshot, bool, error) {
	var s Snapshot
	found, err := c.GetObject(ctx, snapshotKeyPrefix+shipmentID, &s)
	if err != nil || !found {
		return nil, false, err
	}
	return &s, true, nil
}

func (c *Cache) SetSnapshot(ctx context.Context, s Snapshot, ttl time.Duration) error {
	return c.SetObject(ctx, snapshotKeyPrefix+s.ShipmentID, s, ttl)
}
