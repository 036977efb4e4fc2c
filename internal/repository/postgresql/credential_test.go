package postgresql_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	mock_database "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/repository/postgresql"
)

func TestCredentialRepo_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("stored", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewCredentialRepo(mockDB)
		want := repository.CourierCredential{ID: 1, APIKeyEncrypted: []byte{1, 2, 3}, Endpoint: "https://api.courier.my/v1"}

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq(1)).
			SetArg(1, want).
			Return(nil)

		cred, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.Endpoint, cred.Endpoint)
	})

	t.Run("none stored", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewCredentialRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(pgx.ErrNoRows)

		cred, err := repo.Get(ctx)
		assert.ErrorIs(t, err, repository.ErrObjectNotFound)
		assert.Nil(t, cred)
	})
}

func TestCredentialRepo_UpsertTx(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	mockTx := mock_database.NewMockTx(ctrl)
	repo := postgresql.NewCredentialRepo(mockDB)

	cred := &repository.CourierCredential{
		ID:              42,
		APIKeyEncrypted: []byte("sealed"),
		Endpoint:        "https://api.courier.my/v1",
		UpdatedBy:       "admin-1",
		UpdatedAt:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(1), gomock.Eq(cred.APIKeyEncrypted),
		gomock.Eq(cred.Endpoint), gomock.Eq(cred.UpdatedBy), gomock.Eq(cred.UpdatedAt)).
		Return(pgconn.CommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.UpsertTx(ctx, mockTx, cred))
	assert.Equal(t, 1, cred.ID)
}

func TestCredentialRepo_DeleteTx(t *testing.T) {
	ctx := context.Background()

	for name, tc := range map[string]struct {
		tag     pgconn.CommandTag
		deleted bool
	}{
		"row removed":    {tag: pgconn.CommandTag("DELETE 1"), deleted: true},
		"nothing stored": {tag: pgconn.CommandTag("DELETE 0"), deleted: false},
	} {
		t.Run(name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockDB := mock_database.NewMockDB(ctrl)
			mockTx := mock_database.NewMockTx(ctrl)
			repo := postgresql.NewCredentialRepo(mockDB)

			mockTx.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq(1)).Return(tc.tag, nil)

			deleted, err := repo.DeleteTx(ctx, mockTx)
			require.NoError(t, err)
			assert.Equal(t, tc.deleted, deleted)
		})
	}
}
