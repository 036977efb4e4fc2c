// Package orderstate holds the order, payment and shipment status
// vocabularies and the legal order status transitions.
package orderstate

import "strings"

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderPaid           OrderStatus = "PAID"
	OrderReadyToShip    OrderStatus = "READY_TO_SHIP"
	OrderInTransit      OrderStatus = "IN_TRANSIT"
	OrderOutForDelivery OrderStatus = "OUT_FOR_DELIVERY"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
	OrderRefunded       OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentFailed   PaymentStatus = "FAILED"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

type ShipmentStatus string

const (
	ShipmentPendingPickup  ShipmentStatus = "PENDING_PICKUP"
	ShipmentPickedUp       ShipmentStatus = "PICKED_UP"
	ShipmentInTransit      ShipmentStatus = "IN_TRANSIT"
	ShipmentOutForDelivery ShipmentStatus = "OUT_FOR_DELIVERY"
	ShipmentDelivered      ShipmentStatus = "DELIVERED"
	ShipmentFailedDelivery ShipmentStatus = "FAILED_DELIVERY"
	ShipmentReturned       ShipmentStatus = "RETURNED"
	ShipmentException      ShipmentStatus = "EXCEPTION"
	ShipmentUnknown        ShipmentStatus = "UNKNOWN"
)

// timeline positions; statuses missing here are off the forward path.
var timeline = map[OrderStatus]int{
	OrderPending:        0,
	OrderPaid:           1,
	OrderReadyToShip:    2,
	OrderInTransit:      3,
	OrderOutForDelivery: 4,
	OrderDelivered:      5,
}

func (s OrderStatus) Valid() bool {
	_, onTimeline := timeline[s]
	return onTimeline || s == OrderCancelled || s == OrderRefunded
}

// Final reports whether no further transition is allowed.
func (s OrderStatus) Final() bool {
	return s == OrderCancelled || s == OrderRefunded
}

// CanTransition reports whether an order may move from one status to
// another. Moves go forward along the fulfillment timeline. CANCELLED and
// REFUNDED are reachable from any status that is not final, except that a
// delivered order can only be refunded.
func CanTransition(from, to OrderStatus) bool {
	if from == to || !from.Valid() || !to.Valid() || from.Final() {
		return false
	}
	if from == OrderDelivered {
		return to == OrderRefunded
	}
	if to.Final() {
		return true
	}
	return timeline[to] > timeline[from]
}

// IsTerminal reports whether the courier will not report further progress.
func IsTerminal(s ShipmentStatus) bool {
	return s == ShipmentDelivered || s == ShipmentReturned
}

// TerminalShipmentStatuses lists the statuses IsTerminal accepts.
func TerminalShipmentStatuses() []string {
	return []string{string(ShipmentDelivered), string(ShipmentReturned)}
}

// OrderStatusForShipment maps a courier status to the order status it
// implies. The second result is false for statuses that imply no order
// progress (exceptions, failed attempts, returns).
func OrderStatusForShipment(s ShipmentStatus) (OrderStatus, bool) {
	switch s {
	case ShipmentPendingPickup:
		return OrderReadyToShip, true
	case ShipmentPickedUp, ShipmentInTransit:
		return OrderInTransit, true
	case ShipmentOutForDelivery:
		return OrderOutForDelivery, true
	case ShipmentDelivered:
		return OrderDelivered, true
	default:
		return "", false
	}
}

var courierStatuses = map[string]ShipmentStatus{
	"PENDING":          ShipmentPendingPickup,
	"PENDING_PICKUP":   ShipmentPendingPickup,
	"AWAITING_PICKUP":  ShipmentPendingPickup,
	"READY_FOR_PICKUP": ShipmentPendingPickup,
	"CREATED":          ShipmentPendingPickup,
	"PP":               ShipmentPendingPickup,
	"PICKED_UP":        ShipmentPickedUp,
	"PICKUP":           ShipmentPickedUp,
	"COLLECTED":        ShipmentPickedUp,
	"PU":               ShipmentPickedUp,
	"IN_TRANSIT":       ShipmentInTransit,
	"TRANSIT":          ShipmentInTransit,
	"ARRIVED_AT_HUB":   ShipmentInTransit,
	"DEPARTED_HUB":     ShipmentInTransit,
	"IT":               ShipmentInTransit,
	"OUT_FOR_DELIVERY": ShipmentOutForDelivery,
	"ON_DELIVERY":      ShipmentOutForDelivery,
	"OFD":              ShipmentOutForDelivery,
	"OD":               ShipmentOutForDelivery,
	"DELIVERED":        ShipmentDelivered,
	"POD":              ShipmentDelivered,
	"DL":               ShipmentDelivered,
	"FAILED_DELIVERY":  ShipmentFailedDelivery,
	"DELIVERY_FAILED":  ShipmentFailedDelivery,
	"UNDELIVERED":      ShipmentFailedDelivery,
	"FD":               ShipmentFailedDelivery,
	"RETURNED":         ShipmentReturned,
	"RETURN_TO_SENDER": ShipmentReturned,
	"RTS":              ShipmentReturned,
	"RT":               ShipmentReturned,
	"EXCEPTION":        ShipmentException,
	"ON_HOLD":          ShipmentException,
	"LOST":             ShipmentException,
	"DAMAGED":          ShipmentException,
	"EX":               ShipmentException,
}

// NormalizeCourierStatus maps a courier status name or code to a
// ShipmentStatus. Case, surrounding space and separators are ignored.
func NormalizeCourierStatus(raw string) ShipmentStatus {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if s, ok := courierStatuses[key]; ok {
		return s
	}
	return ShipmentUnknown
}
