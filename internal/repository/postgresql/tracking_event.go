package postgresql

import (
	"context"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

type TrackingEventRepo struct {
	db db.DB
}

func NewTrackingEventRepo(db db.DB) storage.TrackingEventRepository {
	return &TrackingEventRepo{db: db}
}

func (r *TrackingEventRepo) InsertTx(ctx context.Context, tx db.Tx, e *repository.TrackingEvent) (bool, error) {
	tag, err := tx.Exec(ctx, `
        INSERT INTO shipment_tracking_events (
            shipment_id, event_time, event_code, description, location, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (shipment_id, event_time, event_code) DO NOTHING
    `, e.ShipmentID, e.EventTime, e.EventCode, e.Description, e.Location, e.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TrackingEventRepo) ListKeysTx(ctx context.Context, tx db.Tx, shipmentID string) ([]repository.EventKey, error) {
	var keys []repository.EventKey
	err := tx.Select(ctx, &keys, `
        SELECT event_time, event_code FROM shipment_tracking_events WHERE shipment_id = $1
    `, shipmentID)
	return keys, err
}

func (r *TrackingEventRepo) ListByShipmentID(ctx context.Context, shipmentID string) ([]*repository.TrackingEvent, error) {
	var events []*repository.TrackingEvent
	err := r.db.Select(ctx, &events, `
        SELECT id, shipment_id, event_time, event_code, description, location, created_at
        FROM shipment_tracking_events
        WHERE shipment_id = $1
        ORDER BY event_time DESC, id DESC
    `, shipmentID)
	return events, err
}
