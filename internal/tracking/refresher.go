// Package tracking keeps shipments in step with the courier: batch refresh
// runs, courier webhooks, the tracking job queue and the periodic scheduler.
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
	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

//go:generate mockgen -source ./refresher.go -destination=./mocks/refresher.go -package=mock_tracking

// auditErrorLimit bounds the errors kept in the batch audit entry.
const auditErrorLimit = 10

type AuditWriter interface {
	Record(ctx context.Context, e audit.Entry) error
	RecordTx(ctx context.Context, tx db.Tx, e audit.Entry) error
}

type SnapshotCache interface {
	SetSnapshot(ctx context.Context, s cache.Snapshot, ttl time.Duration) error
}

// Selection picks the shipments of one run. Explicit shipment ids win over
// order ids; with neither, the run takes shipments due for an update.
type Selection struct {
	ShipmentIDs []string
	OrderIDs    []string
}

func (s Selection) kind() string {
	switch {
	case len(s.ShipmentIDs) > 0:
		return "shipments"
	case len(s.OrderIDs) > 0:
		return "orders"
	default:
		return "due"
	}
}

type ItemError struct {
	ShipmentID     string `json:"shipmentId"`
	TrackingNumber string `json:"trackingNumber"`
	Error          string `json:"error"`
}

// Summary reports one run. Successful+Failed+Skipped always equals Total.
type Summary struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Skipped    int         `json:"skipped"`
	Errors     []ItemError `json:"errors"`
}

func (s *Summary) fail(shipmentID, trackingNumber string, err error) {
	s.Failed++
	s.Errors = append(s.Errors, ItemError{ShipmentID: shipmentID, TrackingNumber: trackingNumber, Error: err.Error()})
}

type Refresher struct {
	db        db.DB
	shipments storage.ShipmentRepository
	events    storage.TrackingEventRepository
	orders    storage.OrderRepository
	history   storage.HistoryRepository
	courier   courier.Client
	audit     AuditWriter
	snapshots SnapshotCache
	cfg       config.TrackingConfig
	logger    *zap.Logger
	newPacer  func() Pacer
	timeNow   func() time.Time
}

func NewRefresher(
	database db.DB,
	shipments storage.ShipmentRepository,
	events storage.TrackingEventRepository,
	orders storage.OrderRepository,
	history storage.HistoryRepository,
	courierClient courier.Client,
	auditWriter AuditWriter,
	snapshots SnapshotCache,
	cfg config.TrackingConfig,
	logger *zap.Logger,
) *Refresher {
	return &Refresher{
		db:        database,
		shipments: shipments,
		events:    events,
		orders:    orders,
		history:   history,
		courier:   courierClient,
		audit:     auditWriter,
		snapshots: snapshots,
		cfg:       cfg,
		logger:    logger,
		newPacer: func() Pacer {
			return NewPacer(cfg.CallInterval, cfg.RateLimitBackoff)
		},
		timeNow: time.Now,
	}
}

// Refresh asks the courier for the current state of each selected shipment,
// one call at a time, and stores what changed. A failing shipment is
// recorded in the summary and the run moves on; it is retried by a later
// run. The returned error is set only when the selection cannot be loaded or
// the run cannot be audited.
func (r *Refresher) Refresh(ctx context.Context, sel Selection, actorID string) (*Summary, error) {
	shipments, missing, err := r.resolve(ctx, sel)
	if err != nil {
		return nil, apperr.Persistence("failed to load shipments for refresh", err)
	}

	summary := &Summary{Total: len(shipments) + len(missing), Errors: []ItemError{}}
	for _, id := range missing {
		summary.fail(id, "", errors.New("shipment not found"))
	}

	pacer := r.newPacer()
	for i, sh := range shipments {
		log := r.logger.With(zap.String("shipment_id", sh.ID), zap.String("tracking_number", sh.TrackingNumber))

		if sh.TrackingNumber == "" || orderstate.IsTerminal(orderstate.ShipmentStatus(sh.Status)) {
			summary.Skipped++
			metrics.TrackingRefreshTotal.WithLabelValues("skipped").Inc()
			continue
		}

		if err := pacer.Wait(ctx); err != nil {
			for _, rest := range shipments[i:] {
				summary.fail(rest.ID, rest.TrackingNumber, fmt.Errorf("refresh interrupted: %w", err))
			}
			log.Warn("tracking refresh interrupted", zap.Int("unprocessed", len(shipments)-i), zap.Error(err))
			break
		}

		res := r.courier.TrackShipment(ctx, sh.TrackingNumber)
		if !res.Success {
			summary.fail(sh.ID, sh.TrackingNumber, res.Error)
			metrics.TrackingRefreshTotal.WithLabelValues("failed").Inc()
			if courier.IsRateLimited(res.Error) {
				pacer.Backoff()
				log.Warn("courier rate limited, slowing down", zap.Duration("interval", r.cfg.RateLimitBackoff))
			}
			log.Warn("tracking lookup failed", zap.Error(res.Error))
			continue
		}

		if _, err := r.ingest(ctx, sh.ID, res.Data, actorID); err != nil {
			summary.fail(sh.ID, sh.TrackingNumber, err)
			metrics.TrackingRefreshTotal.WithLabelValues("failed").Inc()
			log.Error("failed to store tracking update", zap.Error(err))
			continue
		}
		summary.Successful++
		metrics.TrackingRefreshTotal.WithLabelValues("successful").Inc()
	}

	r.logger.Info("tracking refresh finished",
		zap.String("selection", sel.kind()),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))

	kept := summary.Errors
	if len(kept) > auditErrorLimit {
		kept = kept[:auditErrorLimit]
	}
	err = r.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionTrackingBatchRefresh,
		Resource: audit.ResourceTracking,
		ActorID:  actorID,
		Details: map[string]any{
			"selection":  sel.kind(),
			"total":      summary.Total,
			"successful": summary.Successful,
			"failed":     summary.Failed,
			"skipped":    summary.Skipped,
			"errors":     kept,
		},
	})
	if err != nil {
		metrics.OperationErrorsTotal.WithLabelValues("tracking_audit").Inc()
		return summary, apperr.Persistence("failed to audit tracking refresh", err)
	}
	return summary, nil
}

func (r *Refresher) BatchCeiling() int {
	return r.cfg.BatchCeiling
}

// resolve loads the selected shipments, at most BatchCeiling of them. For an
// explicit id list, ids that match no shipment are returned as missing.
func (r *Refresher) resolve(ctx context.Context, sel Selection) ([]*repository.Shipment, []string, error) {
	ceiling := r.cfg.BatchCeiling

	switch {
	case len(sel.ShipmentIDs) > 0:
		ids := capped(unique(sel.ShipmentIDs), ceiling)
		found, err := r.shipments.ListByIDs(ctx, ids)
		if err != nil {
			return nil, nil, err
		}
		byID := make(map[string]*repository.Shipment, len(found))
		for _, sh := range found {
			byID[sh.ID] = sh
		}
		shipments := make([]*repository.Shipment, 0, len(ids))
		var missing []string
		for _, id := range ids {
			if sh, ok := byID[id]; ok {
				shipments = append(shipments, sh)
			} else {
				missing = append(missing, id)
			}
		}
		return shipments, missing, nil

	case len(sel.OrderIDs) > 0:
		shipments, err := r.shipments.ListByOrderIDs(ctx, unique(sel.OrderIDs))
		if err != nil {
			return nil, nil, err
		}
		return capped(shipments, ceiling), nil, nil

	default:
		before := r.timeNow().Add(-r.cfg.Cooldown)
		shipments, err := r.shipments.ListDueForUpdate(ctx, before, orderstate.TerminalShipmentStatuses(), ceiling)
		return shipments, nil, err
	}
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func capped[T any](items []T, ceiling int) []T {
	if ceiling > 0 && len(items) > ceiling {
		return items[:ceiling]
	}
	return items
}
