package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

const orderColumns = `id, order_number, status, payment_status, payment_reference,
        selected_courier_service_id, courier_service_name, recipient_name, recipient_phone,
        recipient_email, shipping_address, shipping_postcode, shipping_city, shipping_state,
        parcel_weight_kg, total_amount, tracking_number, awb_url, tracking_url,
        awb_generated_at, created_at, updated_at`

type OrderRepo struct {
	db db.DB
}

func NewOrderRepo(db db.DB) storage.OrderRepository {
	return &OrderRepo{db: db}
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*repository.Order, error) {
	var order repository.Order
	err := r.db.Get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error) {
	var order repository.Order
	err := tx.Get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) GetByOrderNumberTx(ctx context.Context, tx db.Tx, orderNumber string) (*repository.Order, error) {
	var order repository.Order
	err := tx.Get(ctx, &order, "SELECT "+orderColumns+" FROM orders WHERE order_number = $1 FOR UPDATE", orderNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) UpdateTx(ctx context.Context, tx db.Tx, order *repository.Order) error {
	tag, err := tx.Exec(ctx, `
        UPDATE orders
        SET
            status = $1,
            payment_status = $2,
            payment_reference = $3,
            selected_courier_service_id = $4,
            courier_service_name = $5,
            tracking_number = $6,
            awb_url = $7,
            tracking_url = $8,
            awb_generated_at = $9,
            updated_at = $10
        WHERE id = $11
    `, order.Status, order.PaymentStatus, order.PaymentReference, order.SelectedCourierServiceID,
		order.CourierServiceName, order.TrackingNumber, order.AWBURL, order.TrackingURL,
		order.AWBGeneratedAt, order.UpdatedAt, order.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrObjectNotFound
	}
	return nil
}
