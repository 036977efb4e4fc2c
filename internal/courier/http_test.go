package courier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Credentials{APIKey: "key-123", Endpoint: srv.URL + "/"}, time.Second, zap.NewNop())
}

func TestHTTPClient_GetBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/balance", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance":"152.40"}`))
	})

	res := client.GetBalance(context.Background())
	require.True(t, res.Success, "error: %v", res.Error)
	assert.True(t, decimal.RequireFromString("152.40").Equal(res.Data.Amount))
	assert.Equal(t, "MYR", res.Data.Currency)
}

func TestHTTPClient_TrackShipment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/tracking/JT0001", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"status": "Out for delivery",
			"estimated_delivery": "2025-06-03T10:00:00Z",
			"events": [
				{"time": "2025-06-02T08:00:00Z", "code": "PU", "description": "Picked up", "location": "Shah Alam"},
				{"time": "2025-06-03T07:30:00Z", "code": "OD", "description": "Out for delivery", "location": "Cheras"}
			]
		}`))
	})

	res := client.TrackShipment(context.Background(), "JT0001")
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "JT0001", res.Data.TrackingNumber)
	assert.Equal(t, orderstate.ShipmentOutForDelivery, res.Data.Status)
	require.NotNil(t, res.Data.EstimatedDelivery)
	assert.Len(t, res.Data.Events, 2)
	assert.Equal(t, "OD", res.Data.Events[1].Code)
}

func TestHTTPClient_TrackShipment_EmptyNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	res := client.TrackShipment(context.Background(), "  ")
	assert.False(t, res.Success)
	assert.Error(t, res.Error)
}

func TestHTTPClient_CreateShipment(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req ShipmentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "J&T-STD", req.ServiceID)
		assert.Equal(t, "2025-06-01", req.PickupDate)
		assert.Equal(t, "MY", req.Receiver.Country)

		_, _ = w.Write([]byte(`{
			"tracking_number": "JT0001",
			"awb_url": "https://courier.example/awb/JT0001.pdf",
			"tracking_url": "https://courier.example/track/JT0001",
			"courier_name": "J&T Express",
			"service_name": "Standard",
			"price": 8.5
		}`))
	})

	res := client.CreateShipment(context.Background(), ShipmentRequest{
		ServiceID:  "J&T-STD",
		PickupDate: "2025-06-01",
		Receiver:   Party{Name: "Siti", Country: "MY"},
		WeightKg:   decimal.RequireFromString("1.2"),
	})
	require.True(t, res.Success, "error: %v", res.Error)
	assert.Equal(t, "JT0001", res.Data.TrackingNumber)
	assert.True(t, decimal.RequireFromString("8.5").Equal(res.Data.Price))
}

func TestHTTPClient_Errors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		rateLimited bool
	}{
		{name: "json message", status: http.StatusBadRequest, body: `{"message":"invalid service"}`, wantMessage: "invalid service"},
		{name: "json error field", status: http.StatusUnauthorized, body: `{"error":"bad api key"}`, wantMessage: "bad api key"},
		{name: "plain text", status: http.StatusBadGateway, body: "upstream down", wantMessage: "upstream down"},
		{name: "empty body", status: http.StatusServiceUnavailable, body: "", wantMessage: "Service Unavailable"},
		{name: "throttled", status: http.StatusTooManyRequests, body: `{"message":"slow down"}`, wantMessage: "slow down", rateLimited: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			res := client.TrackShipment(context.Background(), "JT0001")
			require.False(t, res.Success)

			apiErr, ok := res.Error.(*APIError)
			require.True(t, ok, "got %T", res.Error)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.rateLimited, IsRateLimited(res.Error))
		})
	}
}

func TestHTTPClient_MalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracking_number":`))
	})

	res := client.CreateShipment(context.Background(), ShipmentRequest{ServiceID: "J&T-STD"})
	assert.False(t, res.Success)
	assert.ErrorContains(t, res.Error, "malformed")
}

func TestHTTPClient_Unreachable(t *testing.T) {
	client := NewHTTPClient(Credentials{APIKey: "k", Endpoint: "http://127.0.0.1:1"}, 200*time.Millisecond, zap.NewNop())

	res := client.GetBalance(context.Background())
	assert.False(t, res.Success)
	assert.Error(t, res.Error)
	assert.False(t, IsRateLimited(res.Error))
}
