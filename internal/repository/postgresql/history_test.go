package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	mock_database "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

func TestHistoryRepo_CreateTx(t *testing.T) {
	ctx := context.Background()
	changed := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := NewHistoryRepo(mockDB)

		entry := &repository.HistoryEntry{
			OrderID:        "ord-1",
			PreviousStatus: "PAID",
			Status:         "READY_TO_SHIP",
			Note:           "shipment JT0001 created",
			ChangedBy:      "admin-1",
			ChangedAt:      changed,
		}

		mockTx.EXPECT().
			Exec(gomock.Any(), gomock.Any(),
				gomock.Eq(entry.OrderID),
				gomock.Eq(entry.PreviousStatus),
				gomock.Eq(entry.Status),
				gomock.Eq(entry.Note),
				gomock.Eq(entry.ChangedBy),
				gomock.Eq(entry.ChangedAt)).
			Return(nil, nil)

		err := repo.CreateTx(ctx, mockTx, entry)
		assert.NoError(t, err)
	})

	t.Run("DB Error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		mockTx := mock_database.NewMockTx(ctrl)
		repo := NewHistoryRepo(mockDB)
		dbErr := errors.New("database error")

		mockTx.EXPECT().
			Exec(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dbErr)

		err := repo.CreateTx(ctx, mockTx, &repository.HistoryEntry{OrderID: "ord-1"})
		assert.Equal(t, dbErr, err)
	})
}

func TestHistoryRepo_GetByOrderID(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := NewHistoryRepo(mockDB)

	want := []*repository.HistoryEntry{
		{ID: 1, OrderID: "ord-1", PreviousStatus: "PENDING", Status: "PAID"},
		{ID: 2, OrderID: "ord-1", PreviousStatus: "PAID", Status: "READY_TO_SHIP"},
	}

	mockDB.EXPECT().
		Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("ord-1")).
		SetArg(1, want).
		Return(nil)

	entries, err := repo.GetByOrderID(ctx, "ord-1")
	assert.NoError(t, err)
	assert.Equal(t, want, entries)
}
