package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	mock_db "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(database *mock_db.MockDB, tx *mock_db.MockTx)
		fn      func(tx db.Tx) error
		wantErr error
	}{
		{
			name: "commits when fn succeeds",
			setup: func(database *mock_db.MockDB, tx *mock_db.MockTx) {
				database.EXPECT().BeginTx(ctx).Return(tx, nil)
				tx.EXPECT().Commit(ctx).Return(nil)
			},
			fn: func(tx db.Tx) error { return nil },
		},
		{
			name: "rolls back when fn fails",
			setup: func(database *mock_db.MockDB, tx *mock_db.MockTx) {
				database.EXPECT().BeginTx(ctx).Return(tx, nil)
				tx.EXPECT().Rollback(ctx).Return(nil)
			},
			fn:      func(tx db.Tx) error { return errBoom },
			wantErr: errBoom,
		},
		{
			name: "begin failure skips fn",
			setup: func(database *mock_db.MockDB, tx *mock_db.MockTx) {
				database.EXPECT().BeginTx(ctx).Return(nil, errBoom)
			},
			fn: func(tx db.Tx) error {
				t.Fatal("fn must not run")
				return nil
			},
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			database := mock_db.NewMockDB(ctrl)
			tx := mock_db.NewMockTx(ctrl)
			tt.setup(database, tx)

			err := db.WithTx(ctx, database, tt.fn)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
