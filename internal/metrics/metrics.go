package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_requests_total",
			Help: "Total HTTP requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// WebhookDeliveriesTotal counts deliveries by outcome and rejection reason
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_webhook_deliveries_total",
			Help: "Bank webhook deliveries by outcome and reason",
		},
		[]string{"outcome", "reason"},
	)

	WebhookDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_webhook_duplicates_total",
			Help: "Accepted webhook deliveries for already-paid rentals",
		},
	)

	// PaymentTransitionsTotal counts effective ledger status changes
	PaymentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_payment_transitions_total",
			Help: "Payment status transitions applied by the ledger",
		},
		[]string{"from", "to"},
	)

	PaymentConflictRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fleet_payment_conflict_retries_total",
			Help: "Status updates retried after a concurrent write",
		},
	)

	HandlerPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleet_http_panics_total",
			Help: "Handler panics recovered by the middleware",
		},
		[]string{"path"},
	)

	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fleet_realtime_clients",
			Help: "Connected websocket subscribers",
		},
	)
)
