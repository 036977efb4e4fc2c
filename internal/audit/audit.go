// Package audit records admin and system actions in the append-only audit
// trail and queues them for the notifier.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

const (
	ActionCredentialsSaved     = "CREDENTIALS_SAVED"
	ActionCredentialsCleared   = "CREDENTIALS_CLEARED"
	ActionOrderFulfilled       = "ORDER_FULFILLED"
	ActionOrderPaid            = "ORDER_PAID"
	ActionTrackingBatchRefresh = "TRACKING_BATCH_REFRESH"
	ActionTrackingJobsQueued   = "TRACKING_JOBS_QUEUED"
	ActionShipmentDelivered    = "SHIPMENT_DELIVERED"
	ActionHTTPRequest          = "HTTP_REQUEST"
)

const (
	ResourceCredentials = "courier_credentials"
	ResourceOrder       = "order"
	ResourceShipment    = "shipment"
	ResourceTracking    = "tracking"
	ResourceHTTP        = "http"
)

// SystemActor is recorded for actions nobody triggered by hand.
const SystemActor = "system"

// UnknownClient fills the client fields when no request is behind an entry.
const UnknownClient = "unknown"

// Client identifies the caller of the request an entry was recorded for.
type Client struct {
	IPAddress string
	UserAgent string
}

type clientKey struct{}

// WithClient attaches the request's client to ctx for the entries recorded
// while serving it.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFrom returns the client stored by WithClient, with empty fields set
// to UnknownClient.
func ClientFrom(ctx context.Context) Client {
	c, _ := ctx.Value(clientKey{}).(Client)
	if c.IPAddress == "" {
		c.IPAddress = UnknownClient
	}
	if c.UserAgent == "" {
		c.UserAgent = UnknownClient
	}
	return c
}

// Entry is one audited action. Empty client fields are taken from ctx.
type Entry struct {
	Action     string
	Resource   string
	ResourceID string
	ActorID    string
	Details    any
	IPAddress  string
	UserAgent  string
}

type Recorder struct {
	db      db.DB
	logs    storage.AuditRepository
	outbox  storage.OutboxTaskRepository
	topic   string
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewRecorder(database db.DB, logs storage.AuditRepository, outbox storage.OutboxTaskRepository, topic string, logger *zap.Logger) *Recorder {
	return &Recorder{
		db:      database,
		logs:    logs,
		outbox:  outbox,
		topic:   topic,
		logger:  logger,
		timeNow: time.Now,
	}
}

// Record writes the entry and its outbox event in a transaction of its own.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	return db.WithTx(ctx, r.db, func(tx db.Tx) error {
		return r.RecordTx(ctx, tx, e)
	})
}

// RecordTx writes the entry and its outbox event inside the caller's
// transaction, so both commit or roll back with the audited change.
func (r *Recorder) RecordTx(ctx context.Context, tx db.Tx, e Entry) error {
	details, err := marshalDetails(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details for %s: %w", e.Action, err)
	}
	if e.ActorID == "" {
		e.ActorID = SystemActor
	}
	client := ClientFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = client.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = client.UserAgent
	}

	log := &repository.AuditLog{
		ID:         uuid.New(),
		Action:     e.Action,
		Resource:   e.Resource,
		ResourceID: e.ResourceID,
		ActorID:    e.ActorID,
		Details:    details,
		IPAddress:  e.IPAddress,
		UserAgent:  e.UserAgent,
		CreatedAt:  r.timeNow().UTC(),
	}
	if err := r.logs.CreateTx(ctx, tx, log); err != nil {
		return err
	}

	payload, err := json.Marshal(repository.EventPayload{
		EventID:    log.ID,
		Action:     log.Action,
		Resource:   log.Resource,
		ResourceID: log.ResourceID,
		ActorID:    log.ActorID,
		Details:    details,
		OccurredAt: log.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	if err := r.outbox.CreateTx(ctx, tx, &repository.OutboxTask{Topic: r.topic, Payload: payload}); err != nil {
		return err
	}

	r.logger.Debug("audit entry recorded",
		zap.String("action", e.Action),
		zap.String("resource", e.Resource),
		zap.String("resource_id", e.ResourceID),
		zap.String("actor", e.ActorID))
	return nil
}

type Page struct {
	Entries []*repository.AuditLog `json:"entries"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// List returns one page of the audit trail, newest first. Pages start at 1.
func (r *Recorder) List(ctx context.Context, page, limit int, action string) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries, total, err := r.logs.List(ctx, repository.AuditFilter{
		Action: action,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*repository.AuditLog{}
	}
	return &Page{Entries: entries, Total: total, Page: page, Limit: limit}, nil
}

func marshalDetails(details any) (json.RawMessage, error) {
	switch d := details.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		return d, nil
	default:
		return json.Marshal(d)
	}
}
