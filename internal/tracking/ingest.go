package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/cache"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

type ingestResult struct {
	ShipmentID     string
	Status         orderstate.ShipmentStatus
	OrderStatus    orderstate.OrderStatus
	EventsInserted int
}

// ingest stores one courier view of a shipment: status and delivery dates,
// events not seen before, and the order progress the status implies. It runs
// in a single transaction.
func (r *Refresher) ingest(ctx context.Context, shipmentID string, info courier.TrackingInfo, actorID string) (*ingestResult, error) {
	now := r.timeNow().UTC()
	status := info.Status
	if status == "" {
		status = orderstate.NormalizeCourierStatus(info.RawStatus)
	}

	res := &ingestResult{ShipmentID: shipmentID}
	var trackingNumber string
	err := db.WithTx(ctx, r.db, func(tx db.Tx) error {
		res.EventsInserted = 0

		sh, err := r.shipments.GetByIDTx(ctx, tx, shipmentID)
		if err != nil {
			return fmt.Errorf("failed to lock shipment: %w", err)
		}
		trackingNumber = sh.TrackingNumber

		previous := orderstate.ShipmentStatus(sh.Status)
		if status == orderstate.ShipmentUnknown {
			status = previous
		}
		sh.Status = string(status)
		if info.EstimatedDelivery != nil {
			sh.EstimatedDelivery = info.EstimatedDelivery
		}
		if status == orderstate.ShipmentDelivered && sh.ActualDelivery == nil {
			delivered := deliveredAt(info, now)
			sh.ActualDelivery = &delivered
		}
		sh.LastTrackedAt = &now
		sh.UpdatedAt = now
		if err := r.shipments.UpdateTrackingTx(ctx, tx, sh); err != nil {
			return fmt.Errorf("failed to update shipment: %w", err)
		}

		inserted, err := r.insertNewEvents(ctx, tx, sh.ID, info.Events, now)
		if err != nil {
			return err
		}
		res.EventsInserted = inserted

		orderStatus, err := r.advanceOrder(ctx, tx, sh.OrderID, status, actorID, now)
		if err != nil {
			return err
		}
		res.OrderStatus = orderStatus

		if status == orderstate.ShipmentDelivered && previous != orderstate.ShipmentDelivered {
			if err := r.audit.RecordTx(ctx, tx, audit.Entry{
				Action:     audit.ActionShipmentDelivered,
				Resource:   audit.ResourceShipment,
				ResourceID: sh.ID,
				ActorID:    actorID,
				Details: map[string]any{
					"orderId":        sh.OrderID,
					"trackingNumber": sh.TrackingNumber,
					"deliveredAt":    sh.ActualDelivery,
				},
			}); err != nil {
				return fmt.Errorf("failed to record delivery: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("shipment %s not found", shipmentID))
		}
		return nil, apperr.Persistence("failed to store tracking update", err)
	}
	res.Status = status

	metrics.TrackingEventsInsertedTotal.Add(float64(res.EventsInserted))
	r.cacheSnapshot(ctx, shipmentID, trackingNumber, status, info, now)
	return res, nil
}

// insertNewEvents appends the events whose (time, code) key the shipment
// does not have yet. The in-memory set covers keys already stored and
// repeats inside the same response; the unique index covers concurrent
// writers.
func (r *Refresher) insertNewEvents(ctx context.Context, tx db.Tx, shipmentID string, events []courier.TrackingEvent, now time.Time) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	keys, err := r.events.ListKeysTx(ctx, tx, shipmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to load tracking event keys: %w", err)
	}
	seen := make(map[repository.EventKey]struct{}, len(keys)+len(events))
	for _, k := range keys {
		k.EventTime = k.EventTime.UTC().Truncate(time.Microsecond)
		seen[k] = struct{}{}
	}

	inserted := 0
	for _, e := range events {
		ev := &repository.TrackingEvent{
			ShipmentID:  shipmentID,
			EventTime:   e.Time.UTC().Truncate(time.Microsecond),
			EventCode:   e.Code,
			Description: e.Description,
			Location:    e.Location,
			CreatedAt:   now,
		}
		key := ev.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		ok, err := r.events.InsertTx(ctx, tx, ev)
		if err != nil {
			return 0, fmt.Errorf("failed to insert tracking event: %w", err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// advanceOrder moves the order to the status the courier status implies
// when that is a legal forward move, and returns the order's status.
func (r *Refresher) advanceOrder(ctx context.Context, tx db.Tx, orderID string, status orderstate.ShipmentStatus, actorID string, now time.Time) (orderstate.OrderStatus, error) {
	target, ok := orderstate.OrderStatusForShipment(status)
	if !ok {
		return "", nil
	}
	order, err := r.orders.GetByIDTx(ctx, tx, orderID)
	if err != nil {
		return "", fmt.Errorf("failed to lock order: %w", err)
	}
	current := orderstate.OrderStatus(order.Status)
	if !orderstate.CanTransition(current, target) {
		return current, nil
	}

	order.Status = string(target)
	order.UpdatedAt = now
	if err := r.orders.UpdateTx(ctx, tx, order); err != nil {
		return "", fmt.Errorf("failed to update order: %w", err)
	}
	if actorID == "" {
		actorID = audit.SystemActor
	}
	if err := r.history.CreateTx(ctx, tx, &repository.HistoryEntry{
		OrderID:        order.ID,
		PreviousStatus: string(current),
		Status:         order.Status,
		Note:           "courier reported " + string(status),
		ChangedBy:      actorID,
		ChangedAt:      now,
	}); err != nil {
		return "", fmt.Errorf("failed to record order history: %w", err)
	}
	return target, nil
}

func (r *Refresher) cacheSnapshot(ctx context.Context, shipmentID, trackingNumber string, status orderstate.ShipmentStatus, info courier.TrackingInfo, now time.Time) {
	if r.snapshots == nil {
		return
	}
	snap := cache.Snapshot{
		ShipmentID:     shipmentID,
		TrackingNumber: trackingNumber,
		Status:         string(status),
		RawStatus:      info.RawStatus,
		TrackedAt:      now,
	}
	if latest := latestEvent(info.Events); latest != nil {
		snap.LatestEvent = latest
	}
	if err := r.snapshots.SetSnapshot(ctx, snap, r.cfg.SnapshotTTL); err != nil {
		r.logger.Warn("failed to cache tracking snapshot", zap.String("shipment_id", shipmentID), zap.Error(err))
	}
}

func deliveredAt(info courier.TrackingInfo, now time.Time) time.Time {
	if info.DeliveredAt != nil {
		return info.DeliveredAt.UTC()
	}
	if latest := latestEvent(info.Events); latest != nil {
		return latest.Time.UTC()
	}
	return now
}

func latestEvent(events []courier.TrackingEvent) *courier.TrackingEvent {
	var latest *courier.TrackingEvent
	for i := range events {
		if latest == nil || events[i].Time.After(latest.Time) {
			latest = &events[i]
		}
	}
	return latest
}
