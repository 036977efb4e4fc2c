package postgresql

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

const shipmentColumns = `id, order_id, courier_name, service_id, service_name, tracking_number,
        status, price, estimated_delivery, actual_delivery, last_tracked_at, created_at, updated_at`

type ShipmentRepo struct {
	db db.DB
}

func NewShipmentRepo(db db.DB) storage.ShipmentRepository {
	return &ShipmentRepo{db: db}
}

func (r *ShipmentRepo) CreateTx(ctx context.Context, tx db.Tx, s *repository.Shipment) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO shipments (
            id, order_id, courier_name, service_id, service_name, tracking_number,
            status, price, estimated_delivery, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, s.ID, s.OrderID, s.CourierName, s.ServiceID, s.ServiceName, s.TrackingNumber,
		s.Status, s.Price, s.EstimatedDelivery, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *ShipmentRepo) GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Shipment, error) {
	var s repository.Shipment
	err := tx.Get(ctx, &s, "SELECT "+shipmentColumns+" FROM shipments WHERE id = $1 FOR UPDATE", id)
	return one(&s, err)
}

func (r *ShipmentRepo) GetByOrderID(ctx context.Context, orderID string) (*repository.Shipment, error) {
	var s repository.Shipment
	err := r.db.Get(ctx, &s, "SELECT "+shipmentColumns+` FROM shipments
        WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID)
	return one(&s, err)
}

func (r *ShipmentRepo) GetByOrderIDTx(ctx context.Context, tx db.Tx, orderID string) (*repository.Shipment, error) {
	var s repository.Shipment
	err := tx.Get(ctx, &s, "SELECT "+shipmentColumns+` FROM shipments
        WHERE order_id = $1 ORDER BY created_at DESC LIMIT 1`, orderID)
	return one(&s, err)
}

func (r *ShipmentRepo) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*repository.Shipment, error) {
	var s repository.Shipment
	err := r.db.Get(ctx, &s, "SELECT "+shipmentColumns+" FROM shipments WHERE tracking_number = $1", trackingNumber)
	return one(&s, err)
}

func (r *ShipmentRepo) ListByIDs(ctx context.Context, ids []string) ([]*repository.Shipment, error) {
	var shipments []*repository.Shipment
	err := r.db.Select(ctx, &shipments, "SELECT "+shipmentColumns+` FROM shipments
        WHERE id = ANY($1) ORDER BY created_at ASC`, ids)
	return shipments, err
}

func (r *ShipmentRepo) ListByOrderIDs(ctx context.Context, orderIDs []string) ([]*repository.Shipment, error) {
	var shipments []*repository.Shipment
	err := r.db.Select(ctx, &shipments, "SELECT "+shipmentColumns+` FROM shipments
        WHERE order_id = ANY($1) ORDER BY created_at ASC`, orderIDs)
	return shipments, err
}

// ListDueForUpdate returns non-terminal shipments never tracked or last
// tracked before trackedBefore, oldest first.
func (r *ShipmentRepo) ListDueForUpdate(ctx context.Context, trackedBefore time.Time, terminal []string, limit int) ([]*repository.Shipment, error) {
	var shipments []*repository.Shipment
	err := r.db.Select(ctx, &shipments, "SELECT "+shipmentColumns+` FROM shipments
        WHERE status <> ALL($1)
          AND (last_tracked_at IS NULL OR last_tracked_at < $2)
        ORDER BY last_tracked_at ASC NULLS FIRST, created_at ASC
        LIMIT $3`, terminal, trackedBefore, limit)
	return shipments, err
}

func (r *ShipmentRepo) UpdateTrackingTx(ctx context.Context, tx db.Tx, s *repository.Shipment) error {
	tag, err := tx.Exec(ctx, `
        UPDATE shipments
        SET
            status = $1,
            estimated_delivery = $2,
            actual_delivery = $3,
            last_tracked_at = $4,
            updated_at = $5
        WHERE id = $6
    `, s.Status, s.EstimatedDelivery, s.ActualDelivery, s.LastTrackedAt, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}

func one[T any](v *T, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return v, nil
}
