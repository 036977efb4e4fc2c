package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersFulfilledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_orders_fulfilled_total",
		Help: "Total number of orders that received a courier shipment.",
	})

	FulfillmentRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_rejected_total",
		Help: "Total number of fulfillment attempts rejected by a precondition.",
	},
		[]string{"reason"},
	)

	TrackingRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_tracking_refresh_total",
		Help: "Shipments processed by tracking refresh runs, by outcome.",
	},
		[]string{"outcome"},
	)

	TrackingEventsInsertedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_tracking_events_inserted_total",
		Help: "Total number of new tracking events stored.",
	})

	CourierRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fulfillment_courier_request_duration_seconds",
		Help:    "Latency of courier API calls.",
		Buckets: prometheus.DefBuckets,
	},
		[]string{"operation"},
	)

	CourierErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_courier_errors_total",
		Help: "Courier API calls that failed, by operation and whether the provider rate limited us.",
	},
		[]string{"operation", "rate_limited"},
	)

	CredentialChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_credential_changes_total",
		Help: "Courier credential saves and clears.",
	},
		[]string{"action"},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_outbox_published_total",
		Help: "Outbox tasks handed to the producer, by result.",
	},
		[]string{"result"},
	)

	OperationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_operation_errors_total",
		Help: "Total number of errors encountered during specific operations.",
	},
		[]string{"operation"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_http_requests_total",
		Help: "Admin and webhook HTTP requests, by route and status code.",
	},
		[]string{"route", "code"},
	)
)
