package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the closed set of states a rental payment can be in
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

// Valid reports whether s is one of the known statuses
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	}
	return false
}

// ParsePaymentStatus validates a raw status string from the UI or a query param
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	s := PaymentStatus(raw)
	return s, s.Valid()
}

// RentalPayment is the payment record attached to a single rental.
// PaidDate and TransactionID are set only while PaymentStatus is paid.
type RentalPayment struct {
	ID                  string          `json:"id"`
	RentalID            string          `json:"rental_id"`
	CustomerName        string          `json:"customer_name"`
	VehicleRegistration string          `json:"vehicle_registration"`
	Company             string          `json:"company,omitempty"`
	AmountDue           decimal.Decimal `json:"amount_due"`
	PaymentStatus       PaymentStatus   `json:"payment_status"`
	PaymentDueDate      time.Time       `json:"payment_due_date"`
	PaidDate            *time.Time      `json:"paid_date,omitempty"`
	PaymentMethod       string          `json:"payment_method"`
	TransactionID       *string         `json:"transaction_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Clone returns a deep copy so callers can't mutate ledger-owned pointers
func (p *RentalPayment) Clone() *RentalPayment {
	if p == nil {
		return nil
	}
	c := *p
	if p.PaidDate != nil {
		d := *p.PaidDate
		c.PaidDate = &d
	}
	if p.TransactionID != nil {
		t := *p.TransactionID
		c.TransactionID = &t
	}
	return &c
}

// CreateRentalPaymentRequest is sent when a rental is booked
type CreateRentalPaymentRequest struct {
	RentalID            string          `json:"rental_id"`
	CustomerName        string          `json:"customer_name"`
	VehicleRegistration string          `json:"vehicle_registration"`
	Company             string          `json:"company,omitempty"`
	AmountDue           decimal.Decimal `json:"amount_due"`
	PaymentDueDate      string          `json:"payment_due_date"`
	PaymentMethod       string          `json:"payment_method"`
}

// UpdatePaymentStatusRequest is the manual override body from the dashboard
type UpdatePaymentStatusRequest struct {
	Status        string           `json:"status"`
	PaidDate      string           `json:"paid_date,omitempty"`
	PaymentMethod string           `json:"payment_method,omitempty"`
	TransactionID string           `json:"transaction_id,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

// StatusMeta carries the transition metadata for ApplyStatus.
// ObservedAmount is only set when the caller saw an actual transferred amount.
type StatusMeta struct {
	PaidDate       *time.Time
	PaymentMethod  string
	TransactionID  string
	ObservedAmount *decimal.Decimal
}

// RentalPaymentFilter is used for listing/filtering payments.
// Search matches customer, company or vehicle; the other text fields
// match only their own column. All text matches are case-insensitive substrings.
type RentalPaymentFilter struct {
	Search   string        `json:"search,omitempty"`
	Customer string        `json:"customer,omitempty"`
	Company  string        `json:"company,omitempty"`
	Vehicle  string        `json:"vehicle,omitempty"`
	Status   PaymentStatus `json:"status,omitempty"`
}

// PaymentStatistics is derived from a ledger snapshot on every request
type PaymentStatistics struct {
	Total             int             `json:"total"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	Paid              int             `json:"paid"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	Pending           int             `json:"pending"`
	PendingAmount     decimal.Decimal `json:"pending_amount"`
	Overdue           int             `json:"overdue"`
	OverdueAmount     decimal.Decimal `json:"overdue_amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"`
	CollectionRate    float64         `json:"collection_rate"`
}

// PaymentChangeEvent is emitted after every effective status transition
type PaymentChangeEvent struct {
	PaymentID      string        `json:"payment_id"`
	RentalID       string        `json:"rental_id"`
	PreviousStatus PaymentStatus `json:"previous_status"`
	NewStatus      PaymentStatus `json:"new_status"`
	OccurredAt     time.Time     `json:"occurred_at"`
}
