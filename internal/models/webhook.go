package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RejectReason classifies why a delivery or a manual override was refused
type RejectReason string

const (
	ReasonAuthFailure    RejectReason = "auth-failure"
	ReasonBadReference   RejectReason = "bad-reference"
	ReasonNotFound       RejectReason = "not-found"
	ReasonAmountMismatch RejectReason = "amount-mismatch"
	ReasonValidation     RejectReason = "validation"
	// ReasonInternal marks a storage failure; the bank should redeliver
	ReasonInternal RejectReason = "internal-error"
)

// WebhookOutcome is the terminal state of one delivery
type WebhookOutcome string

const (
	WebhookAccepted WebhookOutcome = "accepted"
	WebhookRejected WebhookOutcome = "rejected"
)

// BankWebhookPayload is the body posted by the bank's notifier.
// Amount is optional; when absent no amount check is made.
type BankWebhookPayload struct {
	Reference     string           `json:"reference"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaidDate      string           `json:"paidDate"`
	PaymentMethod string           `json:"paymentMethod"`
	TransactionID string           `json:"transactionId"`
}

// WebhookResult is returned to the notifier and fanned out to operators
type WebhookResult struct {
	DeliveryID string         `json:"delivery_id"`
	Outcome    WebhookOutcome `json:"outcome"`
	Reason     RejectReason   `json:"reason,omitempty"`
	Message    string         `json:"message,omitempty"`
	Reference  string         `json:"reference,omitempty"`
	RentalID   string         `json:"rental_id,omitempty"`
	Duplicate  bool           `json:"duplicate,omitempty"`
	Payment    *RentalPayment `json:"payment,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Accepted reports whether the delivery reached the accepted state
func (r *WebhookResult) Accepted() bool {
	return r.Outcome == WebhookAccepted
}

// WebhookDelivery is the audit record of one inbound delivery
type WebhookDelivery struct {
	ID            string         `json:"id"`
	ReceivedAt    time.Time      `json:"received_at"`
	Reference     string         `json:"reference,omitempty"`
	RentalID      string         `json:"rental_id,omitempty"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	Outcome       WebhookOutcome `json:"outcome"`
	Reason        RejectReason   `json:"reason,omitempty"`
	Message       string         `json:"message,omitempty"`
	Duplicate     bool           `json:"duplicate"`
	Payload       string         `json:"-"`
	ArchiveKey    string         `json:"archive_key,omitempty"`
}

// WebhookDeliveryFilter is used for listing the delivery audit log
type WebhookDeliveryFilter struct {
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Limit   int    `json:"limit"`
	Offset  int    `json:"offset"`
}
