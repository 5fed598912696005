package http

import (
	"fleet-backend/internal/handlers"
	"fleet-backend/internal/middleware"
	"fleet-backend/internal/realtime"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(
	paymentHandler *handlers.PaymentHandler,
	webhookHandler *handlers.WebhookHandler,
	deliveryHandler *handlers.DeliveryHandler,
	alertHandler *handlers.AlertHandler,
	healthHandler *handlers.HealthHandler,
	hub *realtime.Hub,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.MetricsMiddleware)
	r.Use(middleware.RequestLogging)

	// Public - bank notifier authenticates with the HMAC signature, not a JWT.
	// Registered before the protected /api subrouter so it matches first.
	r.HandleFunc("/api/payments/webhook", webhookHandler.HandleWebhook).Methods("POST")
	r.HandleFunc("/api/payments/webhook", webhookHandler.Liveness).Methods("GET")

	// Health endpoints (no auth required - for Kubernetes probes)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", healthHandler.DetailedHealth).Methods("GET")

	// Metrics endpoint (Prometheus format)
	r.Handle("/metrics", promhttp.Handler())

	// Realtime dashboard feed; token may come as ?token= on the upgrade
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(authMiddleware.Authenticate)
	ws.HandleFunc("", hub.ServeWS).Methods("GET")

	// Protected API routes - Payments
	paymentsAPI := r.PathPrefix("/api/payments").Subrouter()
	paymentsAPI.Use(authMiddleware.Authenticate)
	paymentsAPI.HandleFunc("", paymentHandler.ListPayments).Methods("GET")
	paymentsAPI.HandleFunc("", paymentHandler.CreatePayment).Methods("POST")
	paymentsAPI.HandleFunc("/statistics", paymentHandler.GetStatistics).Methods("GET")
	paymentsAPI.HandleFunc("/{rental_id}/status", paymentHandler.UpdateStatus).Methods("PUT")
	paymentsAPI.HandleFunc("/{id}/receipt", paymentHandler.DownloadReceipt).Methods("GET")
	paymentsAPI.HandleFunc("/{id}", paymentHandler.GetPayment).Methods("GET")

	// Protected API routes - Webhook delivery log
	deliveriesAPI := r.PathPrefix("/api/webhook-deliveries").Subrouter()
	deliveriesAPI.Use(authMiddleware.Authenticate)
	deliveriesAPI.HandleFunc("", deliveryHandler.ListDeliveries).Methods("GET")

	// Protected API routes - Alerts
	alertsAPI := r.PathPrefix("/api/alerts").Subrouter()
	alertsAPI.Use(authMiddleware.Authenticate)
	alertsAPI.HandleFunc("", alertHandler.ListAlerts).Methods("GET")
	alertsAPI.HandleFunc("/{id}/resolve", alertHandler.ResolveAlert).Methods("POST")

	return r
}
