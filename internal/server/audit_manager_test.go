package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	mock_server "github.com/ecomjrm/fulfillment-sync/internal/server/mocks"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]*repository.AuditLog
}

func (b *batchRecorder) record(_ context.Context, entries []*repository.AuditLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, entries)
	return nil
}

func (b *batchRecorder) all() []*repository.AuditLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*repository.AuditLog
	for _, batch := range b.batches {
		out = append(out, batch...)
	}
	return out
}

func TestAuditManager(t *testing.T) {
	t.Run("flushes full batches and the remainder on shutdown", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mock_server.NewMockAuditSink(ctrl)
		rec := &batchRecorder{}
		sink.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).DoAndReturn(rec.record).MinTimes(1)

		m := NewAuditManager(sink, 2, 2, time.Hour, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m.Start(ctx)

		for i := 0; i < 3; i++ {
			m.LogEntry(ctx, AuditLogEntry{
				Timestamp:  time.Date(2025, 6, 1, 8, 0, i, 0, time.UTC),
				Method:     "POST",
				Route:      "/admin/orders/{id}/fulfill",
				UserID:     "admin",
				StatusCode: 200,
				IPAddress:  "203.106.1.7",
				UserAgent:  "Mozilla/5.0",
			})
		}
		m.Shutdown(context.Background())

		logs := rec.all()
		require.Len(t, logs, 3)
		for _, l := range logs {
			assert.Equal(t, audit.ActionHTTPRequest, l.Action)
			assert.Equal(t, audit.ResourceHTTP, l.Resource)
			assert.Equal(t, "POST /admin/orders/{id}/fulfill", l.ResourceID)
			assert.Equal(t, "admin", l.ActorID)
			assert.Equal(t, "203.106.1.7", l.IPAddress)
			assert.Equal(t, "Mozilla/5.0", l.UserAgent)

			var entry AuditLogEntry
			require.NoError(t, json.Unmarshal(l.Details, &entry))
			assert.Equal(t, 200, entry.StatusCode)
		}
		assert.Equal(t, 0, m.Pending())
	})

	t.Run("flushes a partial batch after the timeout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mock_server.NewMockAuditSink(ctrl)
		flushed := make(chan int, 1)
		sink.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, entries []*repository.AuditLog) error {
				flushed <- len(entries)
				return nil
			})

		m := NewAuditManager(sink, 1, 10, 20*time.Millisecond, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m.Start(ctx)

		m.LogEntry(ctx, AuditLogEntry{Method: "DELETE", Route: "/admin/shipping/credentials"})

		select {
		case n := <-flushed:
			assert.Equal(t, 1, n)
		case <-time.After(2 * time.Second):
			t.Fatal("batch was not flushed")
		}
		m.Shutdown(context.Background())
	})

	t.Run("sink failure does not stop the manager", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mock_server.NewMockAuditSink(ctrl)
		sink.EXPECT().CreateBatch(gomock.Any(), gomock.Any()).Return(errors.New("db down")).MinTimes(1)

		m := NewAuditManager(sink, 1, 1, time.Hour, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		m.Start(ctx)

		m.LogEntry(ctx, AuditLogEntry{Method: "POST", Route: "/admin/tracking/refresh"})
		m.LogEntry(ctx, AuditLogEntry{Method: "POST", Route: "/admin/tracking/refresh"})
		m.Shutdown(context.Background())
	})

	t.Run("entries after shutdown are logged, not queued", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		sink := mock_server.NewMockAuditSink(ctrl)

		m := NewAuditManager(sink, 1, 5, time.Hour, zap.NewNop())
		m.Start(context.Background())
		m.Shutdown(context.Background())

		m.LogEntry(context.Background(), AuditLogEntry{Method: "POST"})
		assert.Len(t, m.inputChan, 0)
		assert.Equal(t, 0, m.Pending())
	})
}
