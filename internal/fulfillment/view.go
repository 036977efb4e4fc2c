package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
)

// TrackingView is everything the admin order page shows about delivery.
type TrackingView struct {
	Order    *repository.Order           `json:"order"`
	Shipment *repository.Shipment        `json:"shipment"`
	Events   []*repository.TrackingEvent `json:"events"`
	History  []*repository.HistoryEntry  `json:"history"`
}

func (s *Service) OrderTracking(ctx context.Context, orderID string) (*TrackingView, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("order %s not found", orderID))
		}
		return nil, apperr.Persistence("failed to load order", err)
	}

	view := &TrackingView{
		Order:   order,
		Events:  []*repository.TrackingEvent{},
		History: []*repository.HistoryEntry{},
	}

	history, err := s.history.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperr.Persistence("failed to load order history", err)
	}
	if history != nil {
		view.History = history
	}

	shipment, err := s.shipments.GetByOrderID(ctx, orderID)
	if errors.Is(err, repository.ErrObjectNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, apperr.Persistence("failed to load shipment", err)
	}
	view.Shipment = shipment

	events, err := s.events.ListByShipmentID(ctx, shipment.ID)
	if err != nil {
		return nil, apperr.Persistence("failed to load tracking events", err)
	}
	if events != nil {
		view.Events = events
	}
	return view, nil
}
