package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	mock_notify "github.com/ecomjrm/fulfillment-sync/internal/notify/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

func payload(t *testing.T, action string, details map[string]any) repository.EventPayload {
	t.Helper()
	raw, err := json.Marshal(details)
	require.NoError(t, err)
	return repository.EventPayload{
		EventID:    uuid.New(),
		Action:     action,
		ActorID:    "admin-1",
		Details:    raw,
		OccurredAt: time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		action   string
		details  map[string]any
		wantSent bool
		contains []string
	}{
		{
			name:   "fulfilled order",
			action: audit.ActionOrderFulfilled,
			details: map[string]any{
				"orderNumber": "JRM-1001", "courier": "J&T Express", "serviceId": "J&T-STD",
				"trackingNumber": "JT0001", "pickupDate": "2025-06-01", "overriddenByAdmin": true,
			},
			wantSent: true,
			contains: []string{"JRM-1001", "J&amp;T Express", "<code>JT0001</code>", "overridden"},
		},
		{
			name:   "refresh with failures",
			action: audit.ActionTrackingBatchRefresh,
			details: map[string]any{
				"total": 3, "successful": 1, "failed": 2, "skipped": 0,
				"errors": []map[string]any{{"trackingNumber": "JT9", "error": "429 <too many>"}},
			},
			wantSent: true,
			contains: []string{"2 failed", "JT9", "429 &lt;too many&gt;"},
		},
		{
			name:    "clean refresh is quiet",
			action:  audit.ActionTrackingBatchRefresh,
			details: map[string]any{"total": 3, "successful": 3, "failed": 0},
		},
		{
			name:     "delivery",
			action:   audit.ActionShipmentDelivered,
			details:  map[string]any{"trackingNumber": "JT0001"},
			wantSent: true,
			contains: []string{"Delivered", "JT0001", "2025-06-01 08:30 UTC"},
		},
		{
			name:     "credentials cleared",
			action:   audit.ActionCredentialsCleared,
			details:  map[string]any{},
			wantSent: true,
			contains: []string{"cleared", "admin-1"},
		},
		{
			name:    "request trail is ignored",
			action:  audit.ActionHTTPRequest,
			details: map[string]any{"path": "/admin/audit-logs"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, ok := Format(payload(t, tt.action, tt.details))
			assert.Equal(t, tt.wantSent, ok)
			for _, want := range tt.contains {
				assert.Contains(t, text, want)
			}
		})
	}
}

func TestNotifier_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("sends alert", func(t *testing.T) {
		sender := mock_notify.NewMockSender(gomock.NewController(t))
		n := NewNotifier(sender, zap.NewNop())
		raw, err := json.Marshal(payload(t, audit.ActionShipmentDelivered, map[string]any{"trackingNumber": "JT1"}))
		require.NoError(t, err)

		sender.EXPECT().Send(ctx, gomock.Any()).Return(nil)
		assert.NoError(t, n.Handle(ctx, raw))
	})

	t.Run("send failure", func(t *testing.T) {
		sender := mock_notify.NewMockSender(gomock.NewController(t))
		n := NewNotifier(sender, zap.NewNop())
		raw, err := json.Marshal(payload(t, audit.ActionShipmentDelivered, nil))
		require.NoError(t, err)

		sender.EXPECT().Send(ctx, gomock.Any()).Return(errors.New("telegram down"))
		assert.Error(t, n.Handle(ctx, raw))
	})

	t.Run("malformed event", func(t *testing.T) {
		n := NewNotifier(mock_notify.NewMockSender(gomock.NewController(t)), zap.NewNop())
		assert.Error(t, n.Handle(ctx, []byte("{")))
	})
}

type stubReader struct {
	messages []kafkago.Message
	cancel   context.CancelFunc
}

func (r *stubReader) ReadMessage(ctx context.Context) (kafkago.Message, error) {
	if len(r.messages) == 0 {
		r.cancel()
		return kafkago.Message{}, ctx.Err()
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *stubReader) Close() error { return nil }

func TestConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := mock_notify.NewMockSender(gomock.NewController(t))
	good, err := json.Marshal(payload(t, audit.ActionShipmentDelivered, map[string]any{"trackingNumber": "JT1"}))
	require.NoError(t, err)
	reader := &stubReader{
		messages: []kafkago.Message{{Value: []byte("not json")}, {Value: good}},
		cancel:   cancel,
	}

	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(nil)
	assert.NoError(t, Consume(ctx, reader, NewNotifier(sender, zap.NewNop()), zap.NewNop()))
}
