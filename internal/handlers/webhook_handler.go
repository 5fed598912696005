package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"

	"fleet-backend/internal/models"
	"fleet-backend/internal/services"
	"fleet-backend/internal/webhook"
	"fleet-backend/pkg/utils"
)

// maxWebhookBody caps what we read from the bank notifier
const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	Processor       *services.WebhookProcessor
	SignatureHeader string
}

func NewWebhookHandler(processor *services.WebhookProcessor, signatureHeader string) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = webhook.DefaultHeader
	}
	return &WebhookHandler{Processor: processor, SignatureHeader: signatureHeader}
}

// HandleWebhook receives bank payment notifications
// POST /api/payments/webhook
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Read raw body; the signature covers the exact bytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.Printf("[Webhook] Rejected oversized body from %s", r.RemoteAddr)
			utils.RespondReason(w, http.StatusRequestEntityTooLarge, "payload too large", string(models.ReasonBadReference))
			return
		}
		log.Printf("[Webhook] Failed to read body: %v", err)
		utils.RespondError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	signature := r.Header.Get(h.SignatureHeader)
	result := h.Processor.Process(r.Context(), body, signature)

	status := http.StatusOK
	if !result.Accepted() {
		status = StatusForReason(result.Reason)
	}
	utils.JSON(w, status, result)
}

// Liveness lets the bank check the endpoint without touching the ledger
// GET /api/payments/webhook
func (h *WebhookHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	utils.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
