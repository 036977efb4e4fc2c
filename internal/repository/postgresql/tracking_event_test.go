package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/repository/postgresql"
)

func TestTrackingEventRepo_InsertTx(t *testing.T) {
	ctx := context.Background()
	event := &repository.TrackingEvent{
		ShipmentID:  "shp-1",
		EventTime:   time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		EventCode:   "PU",
		Description: "Parcel picked up",
		Location:    "Shah Alam Hub",
		CreatedAt:   time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}

	tests := []struct {
		name     string
		tag      pgconn.CommandTag
		inserted bool
	}{
		{name: "new event", tag: pgconn.CommandTag("INSERT 0 1"), inserted: true},
		{name: "duplicate key is ignored", tag: pgconn.CommandTag("INSERT 0 0"), inserted: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockDB := mock_database.NewMockDB(ctrl)
			mockTx := mock_database.NewMockTx(ctrl)
			repo := postgresql.NewTrackingEventRepo(mockDB)

			mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(),
				gomock.Eq(event.ShipmentID), gomock.Eq(event.EventTime), gomock.Eq(event.EventCode),
				gomock.Eq(event.Description), gomock.Eq(event.Location), gomock.Eq(event.CreatedAt)).
				Return(tt.tag, nil)

			inserted, err := repo.InsertTx(ctx, mockTx, event)
			require.NoError(t, err)
			assert.Equal(t, tt.inserted, inserted)
		})
	}
}

func TestTrackingEventRepo_ListKeysTx(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewTrackingEventRepo(mockDB)

	want := []repository.EventKey{
		{EventTime: time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), EventCode: "PU"},
	}
	mockTx.EXPECT().Select(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("shp-1")).
		SetArg(1, want).
		Return(nil)

	keys, err := repo.ListKeysTx(ctx, mockTx, "shp-1")
	require.NoError(t, err)
	assert.Equal(t, want, keys)
}

func TestTrackingEvent_Key(t *testing.T) {
	local := time.FixedZone("MYT", 8*3600)
	a := repository.TrackingEvent{EventTime: time.Date(2025, 6, 2, 22, 30, 0, 1500, local), EventCode: "PU"}
	b := repository.TrackingEvent{EventTime: time.Date(2025, 6, 2, 14, 30, 0, 1000, time.UTC), EventCode: "PU"}

	assert.Equal(t, a.Key(), b.Key())
}
