package validation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
)

type credentialInput struct {
	APIKey   string `json:"apiKey" validate:"required"`
	Endpoint string `json:"endpoint" validate:"required,httpurl"`
}

func TestValidator_Struct(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		in         credentialInput
		wantFields map[string]string
	}{
		{name: "valid", in: credentialInput{APIKey: "k", Endpoint: "https://api.courier.my/v1"}},
		{name: "missing both", in: credentialInput{}, wantFields: map[string]string{"apiKey": "required", "endpoint": "required"}},
		{name: "not a url", in: credentialInput{APIKey: "k", Endpoint: "courier"}, wantFields: map[string]string{"endpoint": "httpurl"}},
		{name: "ftp scheme", in: credentialInput{APIKey: "k", Endpoint: "ftp://files.courier.my"}, wantFields: map[string]string{"endpoint": "httpurl"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.in)
			if tt.wantFields == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation))

			var appErr *apperr.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantFields, appErr.Fields)
		})
	}
}

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, IsHTTPURL("http://demo.courier.my"))
	assert.True(t, IsHTTPURL(" https://api.courier.my/v1 "))
	assert.False(t, IsHTTPURL("https://"))
	assert.False(t, IsHTTPURL("api.courier.my"))
	assert.False(t, IsHTTPURL("://bad"))
}

func TestPhone(t *testing.T) {
	got, err := Phone("012-345 6789", "MY")
	require.NoError(t, err)
	assert.Equal(t, "+60123456789", got)

	got, err = Phone("+60 12-345 6789", "MY")
	require.NoError(t, err)
	assert.Equal(t, "+60123456789", got)

	_, err = Phone("12", "MY")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = Phone("not a phone", "MY")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestPickupDate(t *testing.T) {
	loc := time.FixedZone("MYT", 8*3600)
	now := time.Date(2025, 5, 31, 20, 0, 0, 0, time.UTC) // 2025-06-01 04:00 in Kuala Lumpur

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "empty means today", raw: "", want: "2025-06-01"},
		{name: "today", raw: "2025-06-01", want: "2025-06-01"},
		{name: "future", raw: "2025-06-03", want: "2025-06-03"},
		{name: "past becomes today", raw: "2025-05-31", want: "2025-06-01"},
		{name: "bad format", raw: "01/06/2025", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PickupDate(tt.raw, now, loc)
			if tt.wantErr {
				assert.True(t, apperr.Is(err, apperr.KindValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
