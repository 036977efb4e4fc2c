package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	mock_db "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	mock_kafka "github.com/ecomjrm/fulfillment-sync/internal/kafka/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	mock_storage "github.com/ecomjrm/fulfillment-sync/internal/storage/mocks"
)

func TestPublisher_ProcessBatch(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (*Publisher, *mock_db.MockDB, *mock_db.MockTx, *mock_storage.MockOutboxTaskRepository, *mock_kafka.MockProducer) {
		ctrl := gomock.NewController(t)
		database := mock_db.NewMockDB(ctrl)
		tx := mock_db.NewMockTx(ctrl)
		repo := mock_storage.NewMockOutboxTaskRepository(ctrl)
		producer := mock_kafka.NewMockProducer(ctrl)
		p := NewPublisher(database, repo, producer, PublisherConfig{PollInterval: time.Second, BatchSize: 10, MaxAttempts: 3}, zap.NewNop())
		p.timeNow = func() time.Time { return now }
		return p, database, tx, repo, producer
	}

	t.Run("sends claimed tasks and records the outcome", func(t *testing.T) {
		p, database, tx, repo, producer := setup(t)
		sent := &repository.OutboxTask{ID: uuid.New(), Topic: "fulfillment_events", Payload: []byte(`{"action":"ORDER_FULFILLED"}`)}
		failing := &repository.OutboxTask{ID: uuid.New(), Topic: "fulfillment_events", Payload: []byte(`{}`), Attempts: 1}

		gomock.InOrder(
			database.EXPECT().BeginTx(ctx).Return(tx, nil),
			repo.EXPECT().ClaimTasksTx(ctx, tx, 10, 3).Return([]*repository.OutboxTask{sent, failing}, nil),
			repo.EXPECT().UpdateTaskStatusTx(ctx, tx, sent.ID, repository.TaskStatusProcessing, 0, nil, nil).Return(nil),
			repo.EXPECT().UpdateTaskStatusTx(ctx, tx, failing.ID, repository.TaskStatusProcessing, 1, nil, nil).Return(nil),
			tx.EXPECT().Commit(ctx).Return(nil),
			producer.EXPECT().SendMessage(ctx, "fulfillment_events", []byte(sent.ID.String()), sent.Payload).Return(nil),
			repo.EXPECT().UpdateTaskStatus(ctx, sent.ID, repository.TaskStatusDone, 0, nil, &now).Return(nil),
			producer.EXPECT().SendMessage(ctx, "fulfillment_events", []byte(failing.ID.String()), failing.Payload).
				Return(errors.New("broker unavailable")),
			repo.EXPECT().UpdateTaskStatus(ctx, failing.ID, repository.TaskStatusFailed, 2, gomock.Any(), nil).
				DoAndReturn(func(_ context.Context, _ uuid.UUID, _ repository.TaskStatus, _ int, lastError *string, _ *time.Time) error {
					assert.Equal(t, "broker unavailable", *lastError)
					return nil
				}),
		)

		n, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("empty outbox", func(t *testing.T) {
		p, database, tx, repo, _ := setup(t)
		database.EXPECT().BeginTx(ctx).Return(tx, nil)
		repo.EXPECT().ClaimTasksTx(ctx, tx, 10, 3).Return(nil, nil)
		tx.EXPECT().Commit(ctx).Return(nil)

		n, err := p.ProcessBatch(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("claim failure rolls back", func(t *testing.T) {
		p, database, tx, repo, _ := setup(t)
		database.EXPECT().BeginTx(ctx).Return(tx, nil)
		repo.EXPECT().ClaimTasksTx(ctx, tx, 10, 3).Return(nil, errors.New("lock timeout"))
		tx.EXPECT().Rollback(ctx).Return(nil)

		_, err := p.ProcessBatch(ctx)
		assert.EqualError(t, err, "lock timeout")
	})
}

func TestConsoleProducer(t *testing.T) {
	t.Parallel()
	p := NewConsoleProducer(zap.NewNop())
	require.NoError(t, p.SendMessage(context.Background(), "t", []byte("k"), []byte("v")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.SendMessage(ctx, "t", []byte("k"), []byte("v")), context.Canceled)
	assert.NoError(t, p.Close())
}
