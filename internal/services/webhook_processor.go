package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fleet-backend/internal/metrics"
	"fleet-backend/internal/models"
	"fleet-backend/internal/reference"
	"fleet-backend/internal/timeutil"
	"fleet-backend/internal/webhook"

	"github.com/google/uuid"
)

// WebhookNotifier is told about every processed delivery, accepted or not
type WebhookNotifier interface {
	NotifyWebhookResult(result *models.WebhookResult)
}

// DeliveryRecorder persists the audit trail of a delivery
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, delivery *models.WebhookDelivery, raw []byte) error
}

// WebhookProcessor turns a signed bank notification into a ledger transition.
// A delivery moves received -> verified -> reference-parsed -> ledger-applied
// and ends accepted or rejected. Nothing is retried here; the bank redelivers.
type WebhookProcessor struct {
	ledger    *PaymentLedger
	secret    string
	notifiers []WebhookNotifier
	recorder  DeliveryRecorder
	now       func() time.Time
}

func NewWebhookProcessor(ledger *PaymentLedger, secret string) *WebhookProcessor {
	if secret == "" {
		log.Println("[Webhook] WARNING: webhook secret is empty, every delivery will be rejected")
	}
	return &WebhookProcessor{
		ledger: ledger,
		secret: secret,
		now:    timeutil.Now,
	}
}

// AddNotifier registers a subscriber for processed deliveries
func (w *WebhookProcessor) AddNotifier(n WebhookNotifier) {
	w.notifiers = append(w.notifiers, n)
}

// SetDeliveryRecorder sets the audit recorder
func (w *WebhookProcessor) SetDeliveryRecorder(r DeliveryRecorder) {
	w.recorder = r
}

// Process handles one delivery. raw must be the exact request body; the
// signature is checked before anything is parsed.
func (w *WebhookProcessor) Process(ctx context.Context, raw []byte, signature string) *models.WebhookResult {
	result := &models.WebhookResult{
		DeliveryID: uuid.New().String(),
		ReceivedAt: w.now(),
	}
	var payload models.BankWebhookPayload

	w.process(ctx, raw, signature, &payload, result)

	w.finish(ctx, raw, &payload, result)
	return result
}

func (w *WebhookProcessor) process(ctx context.Context, raw []byte, signature string, payload *models.BankWebhookPayload, result *models.WebhookResult) {
	if !webhook.Verify(raw, signature, w.secret) {
		reject(result, models.ReasonAuthFailure, "invalid webhook signature")
		return
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(payload); err != nil {
		reject(result, models.ReasonBadReference, fmt.Sprintf("malformed payload: %v", err))
		return
	}

	result.Reference = strings.TrimSpace(payload.Reference)
	decoded := reference.Decode(result.Reference)
	if !decoded.Valid {
		reject(result, models.ReasonBadReference, fmt.Sprintf("unrecognised payment reference %q", payload.Reference))
		return
	}
	result.RentalID = decoded.RentalID

	meta := models.StatusMeta{
		PaymentMethod:  payload.PaymentMethod,
		TransactionID:  payload.TransactionID,
		ObservedAmount: payload.Amount,
	}
	if strings.TrimSpace(payload.PaidDate) != "" {
		paid, err := timeutil.ParseDate(payload.PaidDate)
		if err != nil {
			reject(result, models.ReasonValidation, fmt.Sprintf("invalid paidDate %q", payload.PaidDate))
			return
		}
		meta.PaidDate = &paid
	}

	// the bank may hang up once it has sent the body; the transition still has to land
	applied, err := w.ledger.ApplyStatus(context.WithoutCancel(ctx), decoded.RentalID, models.PaymentStatusPaid, meta)
	if err != nil {
		var le *LedgerError
		if errors.As(err, &le) {
			reject(result, le.Reason, le.Message)
			return
		}
		log.Printf("[Webhook] Ledger error for rental %s: %v", decoded.RentalID, err)
		reject(result, models.ReasonInternal, "payment could not be applied, retry later")
		return
	}

	result.Outcome = models.WebhookAccepted
	result.Payment = applied.Payment
	result.Duplicate = applied.Duplicate
}

func reject(result *models.WebhookResult, reason models.RejectReason, message string) {
	result.Outcome = models.WebhookRejected
	result.Reason = reason
	result.Message = message
}

func (w *WebhookProcessor) finish(ctx context.Context, raw []byte, payload *models.BankWebhookPayload, result *models.WebhookResult) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(result.Outcome), string(result.Reason)).Inc()

	if result.Accepted() {
		if result.Duplicate {
			metrics.WebhookDuplicatesTotal.Inc()
			log.Printf("[Webhook] Duplicate delivery %s for rental %s (tx %s), already paid",
				result.DeliveryID, result.RentalID, payload.TransactionID)
		} else {
			log.Printf("[Webhook] Accepted delivery %s: rental %s marked paid (tx %s)",
				result.DeliveryID, result.RentalID, payload.TransactionID)
		}
	} else {
		log.Printf("[Webhook] Rejected delivery %s: %s - %s", result.DeliveryID, result.Reason, result.Message)
	}

	if w.recorder != nil {
		delivery := &models.WebhookDelivery{
			ID:            result.DeliveryID,
			ReceivedAt:    result.ReceivedAt,
			Reference:     result.Reference,
			RentalID:      result.RentalID,
			TransactionID: payload.TransactionID,
			Outcome:       result.Outcome,
			Reason:        result.Reason,
			Message:       result.Message,
			Duplicate:     result.Duplicate,
		}
		if payload.Amount != nil {
			delivery.Amount = payload.Amount.StringFixed(2)
		}
		if err := w.recorder.RecordDelivery(context.WithoutCancel(ctx), delivery, raw); err != nil {
			log.Printf("[Webhook] Failed to record delivery %s: %v", result.DeliveryID, err)
		}
	}

	for _, n := range w.notifiers {
		n.NotifyWebhookResult(result)
	}
}
