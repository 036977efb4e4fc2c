// Package courier talks to the shipping provider's HTTP API.
package courier

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
)

//go:generate mockgen -source ./client.go -destination=./mocks/client.go -package=mock_courier

var ErrNotConfigured = errors.New("courier api credentials are not configured")

// Result is the outcome of one courier call. Data is meaningful only when
// Success is true; Error is set otherwise.
type Result[T any] struct {
	Success bool
	Data    T
	Error   error
}

func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

type Client interface {
	GetBalance(ctx context.Context) Result[Balance]
	TrackShipment(ctx context.Context, trackingNumber string) Result[TrackingInfo]
	CreateShipment(ctx context.Context, req ShipmentRequest) Result[ShipmentResult]
}

type Credentials struct {
	APIKey   string
	Endpoint string
}

type Balance struct {
	Amount   decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type TrackingEvent struct {
	Time        time.Time `json:"time"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
}

type TrackingInfo struct {
	TrackingNumber    string                    `json:"tracking_number"`
	RawStatus         string                    `json:"status"`
	Status            orderstate.ShipmentStatus `json:"-"`
	EstimatedDelivery *time.Time                `json:"estimated_delivery,omitempty"`
	DeliveredAt       *time.Time                `json:"delivered_at,omitempty"`
	Events            []TrackingEvent           `json:"events"`
}

type Party struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address"`
	Postcode string `json:"postcode"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
}

type ShipmentRequest struct {
	ServiceID  string          `json:"service_id"`
	PickupDate string          `json:"pickup_date"`
	Reference  string          `json:"reference"`
	Sender     Party           `json:"sender"`
	Receiver   Party           `json:"receiver"`
	WeightKg   decimal.Decimal `json:"weight_kg"`
	Value      decimal.Decimal `json:"declared_value"`
	Content    string          `json:"content,omitempty"`
}

type ShipmentResult struct {
	TrackingNumber    string          `json:"tracking_number"`
	AWBURL            string          `json:"awb_url"`
	TrackingURL       string          `json:"tracking_url"`
	CourierName       string          `json:"courier_name"`
	ServiceName       string          `json:"service_name"`
	Price             decimal.Decimal `json:"price"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
}
