package tracking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/cache"
	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/credentials"
	mock_courier "github.com/ecomjrm/fulfillment-sync/internal/courier/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	mock_db "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	mock_storage "github.com/ecomjrm/fulfillment-sync/internal/storage/mocks"
	mock_tracking "github.com/ecomjrm/fulfillment-sync/internal/tracking/mocks"
)

var fixedNow = time.Date(2025, 6, 3, 4, 0, 0, 0, time.UTC)

// recordingPacer never sleeps and keeps the order of waits and backoffs.
type recordingPacer struct {
	ops []string
}

func (p *recordingPacer) Wait(context.Context) error {
	p.ops = append(p.ops, "wait")
	return nil
}

func (p *recordingPacer) Backoff() {
	p.ops = append(p.ops, "backoff")
}

type refresherDeps struct {
	db        *mock_db.MockDB
	tx        *mock_db.MockTx
	shipments *mock_storage.MockShipmentRepository
	events    *mock_storage.MockTrackingEventRepository
	orders    *mock_storage.MockOrderRepository
	history   *mock_storage.MockHistoryRepository
	courier   *mock_courier.MockClient
	audit     *mock_tracking.MockAuditWriter
	snapshots *mock_tracking.MockSnapshotCache
	pacer     *recordingPacer
}

func newTestRefresher(t *testing.T) (*Refresher, refresherDeps) {
	t.Helper()
	ctrl := gomock.NewController(t)
	d := refresherDeps{
		db:        mock_db.NewMockDB(ctrl),
		tx:        mock_db.NewMockTx(ctrl),
		shipments: mock_storage.NewMockShipmentRepository(ctrl),
		events:    mock_storage.NewMockTrackingEventRepository(ctrl),
		orders:    mock_storage.NewMockOrderRepository(ctrl),
		history:   mock_storage.NewMockHistoryRepository(ctrl),
		courier:   mock_courier.NewMockClient(ctrl),
		audit:     mock_tracking.NewMockAuditWriter(ctrl),
		snapshots: mock_tracking.NewMockSnapshotCache(ctrl),
		pacer:     &recordingPacer{},
	}
	cfg := config.TrackingConfig{
		BatchCeiling:     50,
		Cooldown:         time.Hour,
		CallInterval:     500 * time.Millisecond,
		RateLimitBackoff: 10 * time.Second,
		SnapshotTTL:      6 * time.Hour,
	}
	r := NewRefresher(d.db, d.shipments, d.events, d.orders, d.history, d.courier, d.audit, d.snapshots, cfg, zap.NewNop())
	r.newPacer = func() Pacer { return d.pacer }
	r.timeNow = func() time.Time { return fixedNow }
	return r, d
}

func shipment(id, status string) *repository.Shipment {
	return &repository.Shipment{
		ID:             id,
		OrderID:        "ord-" + id,
		TrackingNumber: "JT-" + id,
		Status:         status,
	}
}

func event(hour int, code string) courier.TrackingEvent {
	return courier.TrackingEvent{
		Time:        time.Date(2025, 6, 2, hour, 0, 0, 0, time.UTC),
		Code:        code,
		Description: "scan " + code,
		Location:    "Shah Alam Hub",
	}
}

// expectIngest sets up one committed ingestion of sh whose order is at
// orderStatus. existing are keys already stored; inserts is how many
// InsertTx calls are expected.
func expectIngest(d refresherDeps, sh *repository.Shipment, orderStatus orderstate.OrderStatus, existing []repository.EventKey, inserts int) {
	d.db.EXPECT().BeginTx(gomock.Any()).Return(d.tx, nil)
	stored := *sh
	d.shipments.EXPECT().GetByIDTx(gomock.Any(), d.tx, sh.ID).Return(&stored, nil)
	d.shipments.EXPECT().UpdateTrackingTx(gomock.Any(), d.tx, gomock.Any()).Return(nil)
	d.events.EXPECT().ListKeysTx(gomock.Any(), d.tx, sh.ID).Return(existing, nil).MaxTimes(1)
	if inserts > 0 {
		d.events.EXPECT().InsertTx(gomock.Any(), d.tx, gomock.Any()).Return(true, nil).Times(inserts)
	}
	d.orders.EXPECT().GetByIDTx(gomock.Any(), d.tx, sh.OrderID).
		Return(&repository.Order{ID: sh.OrderID, Status: string(orderStatus)}, nil).MaxTimes(1)
	d.tx.EXPECT().Commit(gomock.Any()).Return(nil)
	d.snapshots.EXPECT().SetSnapshot(gomock.Any(), gomock.Any(), 6*time.Hour).Return(nil)
}

func TestRefresher_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("mixed batch keeps going and counts every shipment", func(t *testing.T) {
		r, d := newTestRefresher(t)

		inTransit := shipment("a", string(orderstate.ShipmentPickedUp))
		delivered := shipment("b", string(orderstate.ShipmentDelivered))
		noAWB := shipment("c", string(orderstate.ShipmentPendingPickup))
		noAWB.TrackingNumber = ""
		broken := shipment("d", string(orderstate.ShipmentInTransit))

		d.shipments.EXPECT().ListByIDs(ctx, []string{"a", "b", "c", "d", "missing"}).
			Return([]*repository.Shipment{inTransit, delivered, noAWB, broken}, nil)

		d.courier.EXPECT().TrackShipment(ctx, "JT-a").Return(courier.OK(courier.TrackingInfo{
			RawStatus: "In Transit",
			Status:    orderstate.ShipmentInTransit,
			Events:    []courier.TrackingEvent{event(9, "PU"), event(12, "IT")},
		}))
		expectIngest(d, inTransit, orderstate.OrderReadyToShip, nil, 2)
		d.orders.EXPECT().UpdateTx(gomock.Any(), d.tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ db.Tx, o *repository.Order) error {
				assert.Equal(t, string(orderstate.OrderInTransit), o.Status)
				return nil
			})
		d.history.EXPECT().CreateTx(gomock.Any(), d.tx, gomock.Any()).Return(nil)

		d.courier.EXPECT().TrackShipment(ctx, "JT-d").
			Return(courier.Fail[courier.TrackingInfo](&courier.APIError{StatusCode: 502, Message: "bad gateway"}))

		d.audit.EXPECT().Record(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Entry) error {
				assert.Equal(t, audit.ActionTrackingBatchRefresh, e.Action)
				details := e.Details.(map[string]any)
				assert.Equal(t, 5, details["total"])
				assert.Equal(t, "shipments", details["selection"])
				return nil
			})

		summary, err := r.Refresh(ctx, Selection{ShipmentIDs: []string{"a", "b", "c", "d", "missing", "a"}}, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Total)
		assert.Equal(t, 1, summary.Successful)
		assert.Equal(t, 2, summary.Failed)
		assert.Equal(t, 2, summary.Skipped)
		assert.Equal(t, summary.Total, summary.Successful+summary.Failed+summary.Skipped)
		require.Len(t, summary.Errors, 2)
		assert.Equal(t, "missing", summary.Errors[0].ShipmentID)
		assert.Equal(t, "JT-d", summary.Errors[1].TrackingNumber)
		assert.Equal(t, []string{"wait", "wait"}, d.pacer.ops)
	})

	t.Run("rate limiting slows down only the calls after it", func(t *testing.T) {
		r, d := newTestRefresher(t)

		first := shipment("a", string(orderstate.ShipmentInTransit))
		second := shipment("b", string(orderstate.ShipmentInTransit))
		third := shipment("c", string(orderstate.ShipmentInTransit))
		d.shipments.EXPECT().ListByIDs(ctx, []string{"a", "b", "c"}).
			Return([]*repository.Shipment{first, second, third}, nil)

		d.courier.EXPECT().TrackShipment(ctx, "JT-a").
			Return(courier.OK(courier.TrackingInfo{Status: orderstate.ShipmentInTransit}))
		expectIngest(d, first, orderstate.OrderInTransit, nil, 0)

		d.courier.EXPECT().TrackShipment(ctx, "JT-b").
			Return(courier.Fail[courier.TrackingInfo](&courier.APIError{StatusCode: 429, Message: "slow down"}))

		d.courier.EXPECT().TrackShipment(ctx, "JT-c").
			Return(courier.Fail[courier.TrackingInfo](errors.New("timeout")))

		d.audit.EXPECT().Record(ctx, gomock.Any()).Return(nil)

		summary, err := r.Refresh(ctx, Selection{ShipmentIDs: []string{"a", "b", "c"}}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Successful)
		assert.Equal(t, 2, summary.Failed)
		assert.Equal(t, []string{"wait", "wait", "backoff", "wait"}, d.pacer.ops)
	})

	t.Run("ceiling bounds the run and the audit keeps ten errors", func(t *testing.T) {
		r, d := newTestRefresher(t)

		ids := make([]string, 60)
		for i := range ids {
			ids[i] = fmt.Sprintf("s-%02d", i)
		}
		d.shipments.EXPECT().ListByIDs(ctx, ids[:50]).Return(nil, nil)
		d.audit.EXPECT().Record(ctx, gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Entry) error {
				details := e.Details.(map[string]any)
				assert.Len(t, details["errors"], 10)
				assert.Equal(t, 50, details["failed"])
				return nil
			})

		summary, err := r.Refresh(ctx, Selection{ShipmentIDs: ids}, "")
		require.NoError(t, err)
		assert.Equal(t, 50, summary.Total)
		assert.Equal(t, 50, summary.Failed)
		assert.Len(t, summary.Errors, 50)
	})

	t.Run("due selection uses the cooldown", func(t *testing.T) {
		r, d := newTestRefresher(t)

		d.shipments.EXPECT().ListDueForUpdate(ctx, fixedNow.Add(-time.Hour), orderstate.TerminalShipmentStatuses(), 50).
			Return(nil, nil)
		d.audit.EXPECT().Record(ctx, gomock.Any()).Return(nil)

		summary, err := r.Refresh(ctx, Selection{}, "")
		require.NoError(t, err)
		assert.Zero(t, summary.Total)
		assert.NotNil(t, summary.Errors)
	})

	t.Run("order ids resolve to their shipments", func(t *testing.T) {
		r, d := newTestRefresher(t)

		d.shipments.EXPECT().ListByOrderIDs(ctx, []string{"ord-1"}).
			Return([]*repository.Shipment{shipment("x", string(orderstate.ShipmentReturned))}, nil)
		d.audit.EXPECT().Record(ctx, gomock.Any()).Return(nil)

		summary, err := r.Refresh(ctx, Selection{OrderIDs: []string{"ord-1"}}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
	})

	t.Run("selection load failure", func(t *testing.T) {
		r, d := newTestRefresher(t)
		d.shipments.EXPECT().ListByIDs(ctx, []string{"a"}).Return(nil, errors.New("db down"))

		_, err := r.Refresh(ctx, Selection{ShipmentIDs: []string{"a"}}, "")
		assert.True(t, apperr.Is(err, apperr.KindPersistence))
	})

	t.Run("storage failure counts as a failed shipment", func(t *testing.T) {
		r, d := newTestRefresher(t)

		sh := shipment("a", string(orderstate.ShipmentInTransit))
		d.shipments.EXPECT().ListByIDs(ctx, []string{"a"}).Return([]*repository.Shipment{sh}, nil)
		d.courier.EXPECT().TrackShipment(ctx, "JT-a").
			Return(courier.OK(courier.TrackingInfo{Status: orderstate.ShipmentInTransit}))
		d.db.EXPECT().BeginTx(ctx).Return(d.tx, nil)
		d.shipments.EXPECT().GetByIDTx(ctx, d.tx, "a").Return(sh, nil)
		d.shipments.EXPECT().UpdateTrackingTx(ctx, d.tx, gomock.Any()).Return(errors.New("deadlock"))
		d.tx.EXPECT().Rollback(ctx).Return(nil)
		d.audit.EXPECT().Record(ctx, gomock.Any()).Return(nil)

		summary, err := r.Refresh(ctx, Selection{ShipmentIDs: []string{"a"}}, "")
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Zero(t, summary.Successful)
	})
}

// switchableResolver stands in for the credential store: once cleared it
// reports no credentials.
type switchableResolver struct {
	cleared bool
}

func (r *switchableResolver) Resolve(context.Context) (courier.Credentials, error) {
	if r.cleared {
		return courier.Credentials{}, credentials.ErrNoCredentials
	}
	return courier.Credentials{APIKey: "live-key", Endpoint: "https://api.courier.example"}, nil
}

func TestRefresher_CredentialsClearedMidRun(t *testing.T) {
	ctx := context.Background()
	r, d := newTestRefresher(t)

	resolver := &switchableResolver{}
	provider := courier.NewProvider(resolver, func(courier.Credentials) courier.Client { return d.courier }, zap.NewNop())
	r.courier = provider

	first := shipment("a", string(orderstate.ShipmentInTransit))
	second := shipment("b", string(orderstate.ShipmentInTransit))
	d.shipments.EXPECT().ListByIDs(ctx, []string{"a", "b"}).
		Return([]*repository.Shipment{first, second}, nil)

	d.courier.EXPECT().TrackShipment(ctx, "JT-a").
		DoAndReturn(func(context.Context, string) courier.Result[courier.TrackingInfo] {
			resolver.cleared = true
			provider.Refresh()
			return courier.OK(courier.TrackingInfo{Status: orderstate.ShipmentInTransit})
		})
	expectIngest(d, first, orderstate.OrderInTransit, nil, 0)
	d.audit.EXPECT().Record(ctx, gomock.Any()).Return(nil)

	summary, err := r.Refresh(ctx, Selection{ShipmentIDs: []string{"a", "b"}}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, summary.Total, summary.Successful+summary.Failed+summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "b", summary.Errors[0].ShipmentID)
	assert.Contains(t, summary.Errors[0].Error, courier.ErrNotConfigured.Error())
}

func TestRefresher_IngestDeduplicates(t *testing.T) {
	ctx := context.Background()
	r, d := newTestRefresher(t)

	sh := shipment("a", string(orderstate.ShipmentInTransit))
	stored := repository.EventKey{EventTime: time.Date(2025, 6, 2, 9, 0, 0, 0, time.FixedZone("MYT", 8*3600)), EventCode: "PU"}
	info := courier.TrackingInfo{
		Status: orderstate.ShipmentInTransit,
		Events: []courier.TrackingEvent{
			event(1, "PU"),
			event(12, "IT"),
			event(12, "IT"),
		},
	}

	expectIngest(d, sh, orderstate.OrderInTransit, []repository.EventKey{stored}, 1)

	res, err := r.ingest(ctx, sh.ID, info, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsInserted)
}

func TestRefresher_IngestDelivery(t *testing.T) {
	ctx := context.Background()
	r, d := newTestRefresher(t)

	sh := shipment("a", string(orderstate.ShipmentOutForDelivery))
	info := courier.TrackingInfo{
		RawStatus: "Delivered",
		Status:    orderstate.ShipmentDelivered,
		Events:    []courier.TrackingEvent{event(15, "DL")},
	}

	d.db.EXPECT().BeginTx(ctx).Return(d.tx, nil)
	d.shipments.EXPECT().GetByIDTx(ctx, d.tx, "a").Return(sh, nil)
	d.shipments.EXPECT().UpdateTrackingTx(ctx, d.tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ db.Tx, s *repository.Shipment) error {
			assert.Equal(t, string(orderstate.ShipmentDelivered), s.Status)
			require.NotNil(t, s.ActualDelivery)
			assert.Equal(t, event(15, "DL").Time, *s.ActualDelivery)
			assert.Equal(t, fixedNow, *s.LastTrackedAt)
			return nil
		})
	d.events.EXPECT().ListKeysTx(ctx, d.tx, "a").Return(nil, nil)
	d.events.EXPECT().InsertTx(ctx, d.tx, gomock.Any()).Return(true, nil)
	d.orders.EXPECT().GetByIDTx(ctx, d.tx, "ord-a").
		Return(&repository.Order{ID: "ord-a", Status: string(orderstate.OrderOutForDelivery)}, nil)
	d.orders.EXPECT().UpdateTx(ctx, d.tx, gomock.Any()).Return(nil)
	d.history.EXPECT().CreateTx(ctx, d.tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ db.Tx, h *repository.HistoryEntry) error {
			assert.Equal(t, string(orderstate.OrderDelivered), h.Status)
			assert.Equal(t, audit.SystemActor, h.ChangedBy)
			return nil
		})
	d.audit.EXPECT().RecordTx(ctx, d.tx, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ db.Tx, e audit.Entry) error {
			assert.Equal(t, audit.ActionShipmentDelivered, e.Action)
			assert.Equal(t, "a", e.ResourceID)
			return nil
		})
	d.tx.EXPECT().Commit(ctx).Return(nil)
	d.snapshots.EXPECT().SetSnapshot(ctx, gomock.Any(), 6*time.Hour).
		DoAndReturn(func(_ context.Context, s cache.Snapshot, _ time.Duration) error {
			assert.Equal(t, "DELIVERED", s.Status)
			require.NotNil(t, s.LatestEvent)
			assert.Equal(t, "DL", s.LatestEvent.Code)
			return nil
		})

	res, err := r.ingest(ctx, "a", info, "")
	require.NoError(t, err)
	assert.Equal(t, orderstate.OrderDelivered, res.OrderStatus)
}

func TestRefresher_ApplyWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown tracking number", func(t *testing.T) {
		r, d := newTestRefresher(t)
		d.shipments.EXPECT().GetByTrackingNumber(ctx, "JT-404").Return(nil, repository.ErrObjectNotFound)

		_, err := r.ApplyWebhook(ctx, CourierWebhook{TrackingNumber: "JT-404", Status: "IT"})
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})

	t.Run("push is ingested like a refresh", func(t *testing.T) {
		r, d := newTestRefresher(t)
		sh := shipment("a", string(orderstate.ShipmentPendingPickup))
		d.shipments.EXPECT().GetByTrackingNumber(ctx, "JT-a").Return(sh, nil)
		expectIngest(d, sh, orderstate.OrderReadyToShip, nil, 1)
		d.orders.EXPECT().UpdateTx(gomock.Any(), d.tx, gomock.Any()).Return(nil)
		d.history.EXPECT().CreateTx(gomock.Any(), d.tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ db.Tx, h *repository.HistoryEntry) error {
				assert.Equal(t, WebhookActor, h.ChangedBy)
				return nil
			})

		res, err := r.ApplyWebhook(ctx, CourierWebhook{
			TrackingNumber: "JT-a",
			Status:         "picked up",
			Events:         []courier.TrackingEvent{event(8, "PU")},
		})
		require.NoError(t, err)
		assert.Equal(t, orderstate.ShipmentPickedUp, res.Status)
		assert.Equal(t, orderstate.OrderInTransit, res.OrderStatus)
		assert.Equal(t, 1, res.EventsInserted)
	})
}
