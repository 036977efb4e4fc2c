package credentials

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	mock_storage "github.com/ecomjrm/fulfillment-sync/internal/storage/mocks"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	cipher, err := NewCipher(testKey)
	require.NoError(t, err)
	sealed, err := cipher.Seal("db-key")
	require.NoError(t, err)

	env := courier.Credentials{APIKey: "env-key", Endpoint: "https://demo.courier.my"}

	tests := []struct {
		name       string
		stored     *repository.CourierCredential
		getErr     error
		env        courier.Credentials
		want       courier.Credentials
		wantSource Source
		wantErr    error
	}{
		{
			name:       "stored record wins over environment",
			stored:     &repository.CourierCredential{APIKeyEncrypted: sealed, Endpoint: "https://api.courier.my"},
			env:        env,
			want:       courier.Credentials{APIKey: "db-key", Endpoint: "https://api.courier.my"},
			wantSource: SourceDatabase,
		},
		{
			name:       "environment fallback",
			getErr:     repository.ErrObjectNotFound,
			env:        env,
			want:       env,
			wantSource: SourceEnvironment,
		},
		{
			name:       "nothing configured",
			getErr:     repository.ErrObjectNotFound,
			wantSource: SourceNone,
			wantErr:    courier.ErrNotConfigured,
		},
		{
			name:       "database failure is not hidden by the fallback",
			getErr:     errors.New("connection refused"),
			env:        env,
			wantSource: SourceNone,
			wantErr:    errors.New("failed to load stored credentials: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := mock_storage.NewMockCredentialRepository(ctrl)
			repo.EXPECT().Get(ctx).Return(tt.stored, tt.getErr)

			r := NewResolver(repo, cipher, tt.env, zap.NewNop())
			got, source, err := r.lookup(ctx)

			assert.Equal(t, tt.wantSource, source)
			if tt.wantErr != nil {
				if errors.Is(tt.wantErr, courier.ErrNotConfigured) {
					assert.ErrorIs(t, err, courier.ErrNotConfigured)
				} else {
					assert.EqualError(t, err, tt.wantErr.Error())
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProductionMode(t *testing.T) {
	tests := map[string]bool{
		"https://api.courier.my/v1":        true,
		"https://demo.courier.my/v1":       false,
		"https://api-sandbox.courier.my":   false,
		"https://SANDBOX.courier.my":       false,
		"not a url":                        false,
		"https://courier.my/demo-not-host": true,
	}
	for endpoint, want := range tests {
		t.Run(endpoint, func(t *testing.T) {
			assert.Equal(t, want, ProductionMode(endpoint))
		})
	}
}
