package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

// WebhookActor is recorded for changes pushed by the courier.
const WebhookActor = "courier-webhook"

// CourierWebhook is a status push from the courier.
type CourierWebhook struct {
	TrackingNumber    string                  `json:"trackingNumber" validate:"required"`
	Status            string                  `json:"status" validate:"required"`
	EstimatedDelivery *time.Time              `json:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time              `json:"deliveredAt,omitempty"`
	Events            []courier.TrackingEvent `json:"events" validate:"dive"`
}

type WebhookResult struct {
	ShipmentID     string                    `json:"shipmentId"`
	Status         orderstate.ShipmentStatus `json:"status"`
	OrderStatus    orderstate.OrderStatus    `json:"orderStatus,omitempty"`
	EventsInserted int                       `json:"eventsInserted"`
}

// ApplyWebhook stores a courier push through the same path as a refresh, so
// a push followed by a refresh of the same events adds nothing.
func (r *Refresher) ApplyWebhook(ctx context.Context, hook CourierWebhook) (*WebhookResult, error) {
	sh, err := r.shipments.GetByTrackingNumber(ctx, hook.TrackingNumber)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("no shipment with tracking number %s", hook.TrackingNumber))
		}
		return nil, apperr.Persistence("failed to load shipment", err)
	}

	info := courier.TrackingInfo{
		TrackingNumber:    hook.TrackingNumber,
		RawStatus:         hook.Status,
		Status:            orderstate.NormalizeCourierStatus(hook.Status),
		EstimatedDelivery: hook.EstimatedDelivery,
		DeliveredAt:       hook.DeliveredAt,
		Events:            hook.Events,
	}
	res, err := r.ingest(ctx, sh.ID, info, WebhookActor)
	if err != nil {
		return nil, err
	}

	r.logger.Info("courier webhook applied",
		zap.String("shipment_id", sh.ID),
		zap.String("status", string(res.Status)),
		zap.Int("events_inserted", res.EventsInserted))
	return &WebhookResult{
		ShipmentID:     res.ShipmentID,
		Status:         res.Status,
		OrderStatus:    res.OrderStatus,
		EventsInserted: res.EventsInserted,
	}, nil
}
