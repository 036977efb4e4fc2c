package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

//go:generate mockgen -source ./repositories.go -destination=./mocks/repositories.go -package=mock_storage

type OrderRepository interface {
	GetByID(ctx context.Context, id string) (*repository.Order, error)
	GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Order, error)
	GetByOrderNumberTx(ctx context.Context, tx db.Tx, orderNumber string) (*repository.Order, error)
	UpdateTx(ctx context.Context, tx db.Tx, order *repository.Order) error
}

type HistoryRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, entry *repository.HistoryEntry) error
	GetByOrderID(ctx context.Context, orderID string) ([]*repository.HistoryEntry, error)
}

type ShipmentRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, shipment *repository.Shipment) error
	GetByIDTx(ctx context.Context, tx db.Tx, id string) (*repository.Shipment, error)
	GetByOrderID(ctx context.Context, orderID string) (*repository.Shipment, error)
	GetByOrderIDTx(ctx context.Context, tx db.Tx, orderID string) (*repository.Shipment, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*repository.Shipment, error)
	ListByIDs(ctx context.Context, ids []string) ([]*repository.Shipment, error)
	ListByOrderIDs(ctx context.Context, orderIDs []string) ([]*repository.Shipment, error)
	ListDueForUpdate(ctx context.Context, trackedBefore time.Time, terminal []string, limit int) ([]*repository.Shipment, error)
	UpdateTrackingTx(ctx context.Context, tx db.Tx, shipment *repository.Shipment) error
}

type TrackingEventRepository interface {
	// InsertTx reports false when an event with the same key already exists.
	InsertTx(ctx context.Context, tx db.Tx, event *repository.TrackingEvent) (bool, error)
	ListKeysTx(ctx context.Context, tx db.Tx, shipmentID string) ([]repository.EventKey, error)
	ListByShipmentID(ctx context.Context, shipmentID string) ([]*repository.TrackingEvent, error)
}

type CredentialRepository interface {
	Get(ctx context.Context) (*repository.CourierCredential, error)
	UpsertTx(ctx context.Context, tx db.Tx, cred *repository.CourierCredential) error
	DeleteTx(ctx context.Context, tx db.Tx) (bool, error)
}

type AuditRepository interface {
	CreateTx(ctx context.Context, tx db.Tx, entry *repository.AuditLog) error
	CreateBatch(ctx context.Context, entries []*repository.AuditLog) error
	List(ctx context.Context, filter repository.AuditFilter) ([]*repository.AuditLog, int, error)
}

type TrackingJobRepository interface {
	Create(ctx context.Context, jobs []*repository.TrackingJob) error
	ClaimDueTx(ctx context.Context, tx db.Tx, now time.Time, limit int) ([]*repository.TrackingJob, error)
	UpdateStatus(ctx context.Context, ids []uuid.UUID, status repository.JobStatus, lastError *string, completedAt *time.Time) error
}

type UserRepository interface {
	ValidateUser(ctx context.Context, username, password string) (*repository.User, error)
	EnsureUser(ctx context.Context, username, password, role string) error
}
