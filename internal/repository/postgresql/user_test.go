package postgresql_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	mock_database "github.com/ecomjrm/fulfillment-sync/internal/db/mocks"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/repository/postgresql"
)

func TestUserRepo_ValidateUser(t *testing.T) {
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	stored := repository.User{ID: "u-1", Username: "ops", PasswordHash: string(hash), Role: "STAFF"}

	tests := []struct {
		name     string
		password string
		getErr   error
		wantErr  error
	}{
		{name: "valid password", password: "s3cret"},
		{name: "wrong password", password: "guess", wantErr: repository.ErrInvalidCredentials},
		{name: "unknown user", password: "s3cret", getErr: pgx.ErrNoRows, wantErr: repository.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockDB := mock_database.NewMockDB(ctrl)
			repo := postgresql.NewUserRepo(mockDB)

			call := mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Eq("ops"))
			if tt.getErr != nil {
				call.Return(tt.getErr)
			} else {
				call.SetArg(1, stored).Return(nil)
			}

			user, err := repo.ValidateUser(ctx, "ops", tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "STAFF", user.Role)
		})
	}

	t.Run("database failure is not reported as bad credentials", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockDB := mock_database.NewMockDB(ctrl)
		repo := postgresql.NewUserRepo(mockDB)

		mockDB.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("conn reset"))

		_, err := repo.ValidateUser(ctx, "ops", "s3cret")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, repository.ErrInvalidCredentials)
	})
}

func TestUserRepo_EnsureUser(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDB := mock_database.NewMockDB(ctrl)
	repo := postgresql.NewUserRepo(mockDB)

	mockDB.EXPECT().Exec(gomock.Any(), gomock.Any(), gomock.Eq("admin"), gomock.Any(), gomock.Eq("SUPERADMIN")).
		DoAndReturn(func(_ context.Context, _ string, args ...interface{}) (pgconn.CommandTag, error) {
			hash := args[1].(string)
			assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("changeme")))
			return pgconn.CommandTag("INSERT 0 1"), nil
		})

	assert.NoError(t, repo.EnsureUser(ctx, "admin", "changeme", "SUPERADMIN"))
}
