// Package fulfillment turns paid orders into courier shipments and applies
// payment confirmations.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecomjrm/fulfillment-sync/internal/apperr"
	"github.com/ecomjrm/fulfillment-sync/internal/audit"
	"github.com/ecomjrm/fulfillment-sync/internal/config"
	"github.com/ecomjrm/fulfillment-sync/internal/courier"
	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/metrics"
	"github.com/ecomjrm/fulfillment-sync/internal/orderstate"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
	"github.com/ecomjrm/fulfillment-sync/internal/validation"
)

//go:generate mockgen -source ./service.go -destination=./mocks/service.go -package=mock_fulfillment

var (
	ErrAlreadyFulfilled    = errors.New("order already has a shipment")
	ErrPaymentIncomplete   = errors.New("order payment is not complete")
	ErrNoCourierSelected   = errors.New("no courier service selected for order")
	ErrOrderNotFulfillable = errors.New("order status does not allow fulfillment")
	ErrOrderClosed         = errors.New("order is cancelled or refunded")
)

// PhoneRegion is the default region for recipient phone numbers.
const PhoneRegion = "MY"

type AuditWriter interface {
	RecordTx(ctx context.Context, tx db.Tx, e audit.Entry) error
}

type FulfillRequest struct {
	OrderID           string
	CourierServiceID  string
	PickupDate        string
	OverriddenByAdmin bool
	ActorID           string
}

type FulfillResult struct {
	ShipmentID     string                 `json:"shipmentId"`
	TrackingNumber string                 `json:"trackingNumber"`
	Status         orderstate.OrderStatus `json:"status"`
	AWBURL         string                 `json:"awbUrl,omitempty"`
	TrackingURL    string                 `json:"trackingUrl,omitempty"`
}

type Service struct {
	db        db.DB
	orders    storage.OrderRepository
	shipments storage.ShipmentRepository
	history   storage.HistoryRepository
	events    storage.TrackingEventRepository
	courier   courier.Client
	audit     AuditWriter
	shipper   config.ShipperConfig
	loc       *time.Location
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewService(
	database db.DB,
	orders storage.OrderRepository,
	shipments storage.ShipmentRepository,
	history storage.HistoryRepository,
	events storage.TrackingEventRepository,
	courierClient courier.Client,
	auditWriter AuditWriter,
	shipper config.ShipperConfig,
	loc *time.Location,
	logger *zap.Logger,
) *Service {
	return &Service{
		db:        database,
		orders:    orders,
		shipments: shipments,
		history:   history,
		events:    events,
		courier:   courierClient,
		audit:     auditWriter,
		shipper:   shipper,
		loc:       loc,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// Fulfill books a courier shipment for a paid order and moves it to
// READY_TO_SHIP. Precondition failures and courier failures leave the order
// untouched; the shipment, the order update, its history entry and the audit
// record are committed together.
func (s *Service) Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error) {
	log := s.logger.With(zap.String("order_id", req.OrderID), zap.String("actor", req.ActorID))

	order, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("order %s not found", req.OrderID))
		}
		return nil, apperr.Persistence("failed to load order", err)
	}

	existing, err := s.shipments.GetByOrderID(ctx, order.ID)
	if err != nil && !errors.Is(err, repository.ErrObjectNotFound) {
		return nil, apperr.Persistence("failed to load shipment", err)
	}
	serviceID, err := checkFulfillable(order, existing, req.CourierServiceID)
	if err != nil {
		s.reject(log, err)
		return nil, err
	}

	pickupDate, err := validation.PickupDate(req.PickupDate, s.timeNow(), s.loc)
	if err != nil {
		return nil, err
	}
	phone, err := validation.Phone(order.RecipientPhone, PhoneRegion)
	if err != nil {
		return nil, err
	}

	res := s.courier.CreateShipment(ctx, s.shipmentRequest(order, serviceID, pickupDate, phone))
	if !res.Success {
		metrics.OperationErrorsTotal.WithLabelValues("create_shipment").Inc()
		log.Error("courier rejected shipment", zap.String("service_id", serviceID), zap.Error(res.Error))
		return nil, apperr.External("courier shipment creation failed", res.Error)
	}
	booked := res.Data
	if booked.TrackingNumber == "" {
		return nil, apperr.External("courier shipment creation failed", errors.New("courier returned no tracking number"))
	}

	now := s.timeNow().UTC()
	shipment := &repository.Shipment{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		CourierName:       booked.CourierName,
		ServiceID:         serviceID,
		ServiceName:       booked.ServiceName,
		TrackingNumber:    booked.TrackingNumber,
		Status:            string(orderstate.ShipmentPendingPickup),
		Price:             booked.Price,
		EstimatedDelivery: booked.EstimatedDelivery,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = db.WithTx(ctx, s.db, func(tx db.Tx) error {
		locked, err := s.orders.GetByIDTx(ctx, tx, order.ID)
		if err != nil {
			return apperr.Persistence("failed to lock order", err)
		}
		current, err := s.shipments.GetByOrderIDTx(ctx, tx, order.ID)
		if err != nil && !errors.Is(err, repository.ErrObjectNotFound) {
			return apperr.Persistence("failed to load shipment", err)
		}
		if _, err := checkFulfillable(locked, current, serviceID); err != nil {
			return err
		}

		if err := s.shipments.CreateTx(ctx, tx, shipment); err != nil {
			return apperr.Persistence("failed to save shipment", err)
		}

		previous := locked.Status
		locked.Status = string(orderstate.OrderReadyToShip)
		locked.SelectedCourierServiceID = &serviceID
		if booked.ServiceName != "" {
			locked.CourierServiceName = &booked.ServiceName
		}
		locked.TrackingNumber = &booked.TrackingNumber
		locked.AWBURL = optional(booked.AWBURL)
		locked.TrackingURL = optional(booked.TrackingURL)
		locked.AWBGeneratedAt = &now
		locked.UpdatedAt = now
		if err := s.orders.UpdateTx(ctx, tx, locked); err != nil {
			return apperr.Persistence("failed to update order", err)
		}

		note := "shipment booked with " + serviceID
		if req.OverriddenByAdmin {
			note += " (courier overridden by admin)"
		}
		if err := s.history.CreateTx(ctx, tx, &repository.HistoryEntry{
			OrderID:        locked.ID,
			PreviousStatus: previous,
			Status:         locked.Status,
			Note:           note,
			ChangedBy:      actorOrSystem(req.ActorID),
			ChangedAt:      now,
		}); err != nil {
			return apperr.Persistence("failed to record order history", err)
		}

		if err := s.audit.RecordTx(ctx, tx, audit.Entry{
			Action:     audit.ActionOrderFulfilled,
			Resource:   audit.ResourceOrder,
			ResourceID: locked.ID,
			ActorID:    req.ActorID,
			Details: map[string]any{
				"orderNumber":       locked.OrderNumber,
				"shipmentId":        shipment.ID,
				"serviceId":         serviceID,
				"courier":           booked.CourierName,
				"trackingNumber":    booked.TrackingNumber,
				"pickupDate":        pickupDate,
				"overriddenByAdmin": req.OverriddenByAdmin,
			},
		}); err != nil {
			return apperr.Persistence("failed to record audit entry", err)
		}
		return nil
	})
	if err != nil {
		// The courier already holds a booking for this tracking number.
		log.Error("fulfillment not persisted after courier booking",
			zap.String("tracking_number", booked.TrackingNumber), zap.Error(err))
		if apperr.Is(err, apperr.KindPrecondition) {
			s.reject(log, err)
			return nil, err
		}
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Persistence("failed to commit fulfillment", err)
		}
		return nil, err
	}

	metrics.OrdersFulfilledTotal.Inc()
	log.Info("order fulfilled",
		zap.String("tracking_number", booked.TrackingNumber),
		zap.String("service_id", serviceID))

	return &FulfillResult{
		ShipmentID:     shipment.ID,
		TrackingNumber: booked.TrackingNumber,
		Status:         orderstate.OrderReadyToShip,
		AWBURL:         booked.AWBURL,
		TrackingURL:    booked.TrackingURL,
	}, nil
}

// checkFulfillable returns the courier service to book, or the precondition
// the order fails. The explicit service id wins over the stored selection.
func checkFulfillable(order *repository.Order, shipment *repository.Shipment, serviceID string) (string, error) {
	if shipment != nil || (order.TrackingNumber != nil && *order.TrackingNumber != "") {
		return "", apperr.Precondition(ErrAlreadyFulfilled)
	}
	if orderstate.PaymentStatus(order.PaymentStatus) != orderstate.PaymentPaid {
		return "", apperr.Precondition(ErrPaymentIncomplete)
	}
	if serviceID == "" && order.SelectedCourierServiceID != nil {
		serviceID = *order.SelectedCourierServiceID
	}
	if serviceID == "" {
		return "", apperr.Precondition(ErrNoCourierSelected)
	}
	if !orderstate.CanTransition(orderstate.OrderStatus(order.Status), orderstate.OrderReadyToShip) {
		return "", apperr.Precondition(ErrOrderNotFulfillable)
	}
	return serviceID, nil
}

func (s *Service) shipmentRequest(order *repository.Order, serviceID, pickupDate, phone string) courier.ShipmentRequest {
	return courier.ShipmentRequest{
		ServiceID:  serviceID,
		PickupDate: pickupDate,
		Reference:  order.OrderNumber,
		Sender: courier.Party{
			Name:     s.shipper.Name,
			Phone:    s.shipper.Phone,
			Address:  s.shipper.Address,
			Postcode: s.shipper.Postcode,
			City:     s.shipper.City,
			State:    s.shipper.State,
			Country:  s.shipper.Country,
		},
		Receiver: courier.Party{
			Name:     order.RecipientName,
			Phone:    phone,
			Email:    order.RecipientEmail,
			Address:  order.ShippingAddress,
			Postcode: order.ShippingPostcode,
			City:     order.ShippingCity,
			State:    order.ShippingState,
			Country:  PhoneRegion,
		},
		WeightKg: order.ParcelWeightKg,
		Value:    order.TotalAmount,
		Content:  "Order " + order.OrderNumber,
	}
}

func (s *Service) reject(log *zap.Logger, err error) {
	reason := "unknown"
	switch {
	case errors.Is(err, ErrAlreadyFulfilled):
		reason = "already_fulfilled"
	case errors.Is(err, ErrPaymentIncomplete):
		reason = "payment_incomplete"
	case errors.Is(err, ErrNoCourierSelected):
		reason = "no_courier_selected"
	case errors.Is(err, ErrOrderNotFulfillable):
		reason = "not_fulfillable"
	}
	metrics.FulfillmentRejectedTotal.WithLabelValues(reason).Inc()
	log.Warn("fulfillment rejected", zap.String("reason", reason))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return audit.SystemActor
	}
	return actor
}
