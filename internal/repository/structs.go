package repository

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrObjectNotFound     = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

type Order struct {
	ID                       string          `json:"id" db:"id"`
	OrderNumber              string          `json:"orderNumber" db:"order_number"`
	Status                   string          `json:"status" db:"status"`
	PaymentStatus            string          `json:"paymentStatus" db:"payment_status"`
	PaymentReference         *string         `json:"paymentReference" db:"payment_reference"`
	SelectedCourierServiceID *string         `json:"selectedCourierServiceId" db:"selected_courier_service_id"`
	CourierServiceName       *string         `json:"courierServiceName" db:"courier_service_name"`
	RecipientName            string          `json:"recipientName" db:"recipient_name"`
	RecipientPhone           string          `json:"recipientPhone" db:"recipient_phone"`
	RecipientEmail           string          `json:"recipientEmail" db:"recipient_email"`
	ShippingAddress          string          `json:"shippingAddress" db:"shipping_address"`
	ShippingPostcode         string          `json:"shippingPostcode" db:"shipping_postcode"`
	ShippingCity             string          `json:"shippingCity" db:"shipping_city"`
	ShippingState            string          `json:"shippingState" db:"shipping_state"`
	ParcelWeightKg           decimal.Decimal `json:"parcelWeightKg" db:"parcel_weight_kg"`
	TotalAmount              decimal.Decimal `json:"totalAmount" db:"total_amount"`
	TrackingNumber           *string         `json:"trackingNumber" db:"tracking_number"`
	AWBURL                   *string         `json:"awbUrl" db:"awb_url"`
	TrackingURL              *string         `json:"trackingUrl" db:"tracking_url"`
	AWBGeneratedAt           *time.Time      `json:"awbGeneratedAt" db:"awb_generated_at"`
	CreatedAt                time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt                time.Time       `json:"updatedAt" db:"updated_at"`
}

type HistoryEntry struct {
	ID             int64     `json:"id" db:"id"`
	OrderID        string    `json:"orderId" db:"order_id"`
	PreviousStatus string    `json:"previousStatus" db:"previous_status"`
	Status         string    `json:"status" db:"status"`
	Note           string    `json:"note" db:"note"`
	ChangedBy      string    `json:"changedBy" db:"changed_by"`
	ChangedAt      time.Time `json:"changedAt" db:"changed_at"`
}

type Shipment struct {
	ID                string          `json:"id" db:"id"`
	OrderID           string          `json:"orderId" db:"order_id"`
	CourierName       string          `json:"courierName" db:"courier_name"`
	ServiceID         string          `json:"serviceId" db:"service_id"`
	ServiceName       string          `json:"serviceName" db:"service_name"`
	TrackingNumber    string          `json:"trackingNumber" db:"tracking_number"`
	Status            string          `json:"status" db:"status"`
	Price             decimal.Decimal `json:"price" db:"price"`
	EstimatedDelivery *time.Time      `json:"estimatedDelivery" db:"estimated_delivery"`
	ActualDelivery    *time.Time      `json:"actualDelivery" db:"actual_delivery"`
	LastTrackedAt     *time.Time      `json:"lastTrackedAt" db:"last_tracked_at"`
	CreatedAt         time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt         time.Time       `json:"updatedAt" db:"updated_at"`
}

type TrackingEvent struct {
	ID          int64     `json:"id" db:"id"`
	ShipmentID  string    `json:"shipmentId" db:"shipment_id"`
	EventTime   time.Time `json:"eventTime" db:"event_time"`
	EventCode   string    `json:"eventCode" db:"event_code"`
	Description string    `json:"description" db:"description"`
	Location    string    `json:"location" db:"location"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// EventKey identifies a tracking event within one shipment.
type EventKey struct {
	EventTime time.Time `json:"eventTime" db:"event_time"`
	EventCode string    `json:"eventCode" db:"event_code"`
}

// Key normalizes the event time so keys read back from Postgres compare equal
// to keys built from courier responses.
func (e *TrackingEvent) Key() EventKey {
	return EventKey{EventTime: e.EventTime.UTC().Truncate(time.Microsecond), EventCode: e.EventCode}
}

type CourierCredential struct {
	ID              int       `json:"id" db:"id"`
	APIKeyEncrypted []byte    `json:"-" db:"api_key_encrypted"`
	Endpoint        string    `json:"endpoint" db:"endpoint"`
	UpdatedBy       string    `json:"updatedBy" db:"updated_by"`
	UpdatedAt       time.Time `json:"updatedAt" db:"updated_at"`
}

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	Action     string          `json:"action" db:"action"`
	Resource   string          `json:"resource" db:"resource"`
	ResourceID string          `json:"resourceId" db:"resource_id"`
	ActorID    string          `json:"actorId" db:"actor_id"`
	Details    json.RawMessage `json:"details" db:"details"`
	IPAddress  string          `json:"ipAddress" db:"ip_address"`
	UserAgent  string          `json:"userAgent" db:"user_agent"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

type AuditFilter struct {
	Action     string
	Resource   string
	ResourceID string
	Limit      int
	Offset     int
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusDone       JobStatus = "DONE"
	JobStatusFailed     JobStatus = "FAILED"
)

type TrackingJob struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	TrackingCacheID string     `json:"trackingCacheId" db:"tracking_cache_id"`
	JobType         string     `json:"jobType" db:"job_type"`
	Priority        int        `json:"priority" db:"priority"`
	Status          JobStatus  `json:"status" db:"status"`
	ScheduledFor    time.Time  `json:"scheduledFor" db:"scheduled_for"`
	LastError       *string    `json:"lastError" db:"last_error"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time  `json:"updatedAt" db:"updated_at"`
	CompletedAt     *time.Time `json:"completedAt" db:"completed_at"`
}

type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
