package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"fleet-backend/internal/metrics"
	"fleet-backend/internal/models"
	"fleet-backend/internal/repositories"
	"fleet-backend/internal/timeutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxConflictRetries bounds re-reads after another process won the status CAS
const maxConflictRetries = 5

// PaymentStore is the persistence the ledger needs. Implemented by
// repositories.RentalPaymentRepository (postgres) and
// repositories.MemoryPaymentStore.
type PaymentStore interface {
	Create(ctx context.Context, p *models.RentalPayment) error
	Get(ctx context.Context, id string) (*models.RentalPayment, error)
	GetByRentalID(ctx context.Context, rentalID string) (*models.RentalPayment, error)
	List(ctx context.Context, filter *models.RentalPaymentFilter) ([]*models.RentalPayment, error)
	UpdateStatus(ctx context.Context, p *models.RentalPayment, expected models.PaymentStatus) error
}

// EventPublisher receives a change event after every effective transition.
// Implementations must not block.
type EventPublisher interface {
	PublishPaymentChange(event models.PaymentChangeEvent)
}

// StatisticsCache is an optional read-through cache for Statistics.
// Generation must move on every InvalidateStatistics so that a snapshot
// stored under an older generation is never served again. ok is false when
// the cache is unavailable.
type StatisticsCache interface {
	Generation(ctx context.Context) (generation uint64, ok bool)
	GetStatistics(ctx context.Context, generation uint64) (*models.PaymentStatistics, bool)
	SetStatistics(ctx context.Context, generation uint64, stats *models.PaymentStatistics)
	InvalidateStatistics(ctx context.Context)
}

// AmountPolicy decides whether an observed transfer matches the amount due
type AmountPolicy struct {
	Enabled   bool
	Tolerance decimal.Decimal
}

// Matches reports whether observed is within tolerance of due
func (p AmountPolicy) Matches(observed, due decimal.Decimal) bool {
	if !p.Enabled {
		return true
	}
	return observed.Sub(due).Abs().LessThanOrEqual(p.Tolerance)
}

// ApplyResult is the outcome of a successful ApplyStatus call.
// Duplicate is true when the record was already in the requested status.
type ApplyResult struct {
	Payment        *models.RentalPayment `json:"payment"`
	PreviousStatus models.PaymentStatus  `json:"previous_status"`
	Duplicate      bool                  `json:"duplicate"`
}

// PaymentLedger owns every rental payment record and the only path that
// mutates one. Transitions for the same rental id are serialized; different
// rental ids proceed in parallel.
type PaymentLedger struct {
	store      PaymentStore
	policy     AmountPolicy
	locks      *keyedMutex
	publishers []EventPublisher
	cache      StatisticsCache
	// changes counts committed mutations in this process
	changes atomic.Uint64
	now     func() time.Time
}

func NewPaymentLedger(store PaymentStore, policy AmountPolicy) *PaymentLedger {
	return &PaymentLedger{
		store:  store,
		policy: policy,
		locks:  newKeyedMutex(),
		now:    timeutil.Now,
	}
}

// AddPublisher registers a change-event subscriber
func (l *PaymentLedger) AddPublisher(p EventPublisher) {
	l.publishers = append(l.publishers, p)
}

// SetStatisticsCache enables caching of the dashboard statistics. The
// ledger invalidates it itself after every committed change.
func (l *PaymentLedger) SetStatisticsCache(c StatisticsCache) {
	l.cache = c
}

// Get returns a payment by its record id
func (l *PaymentLedger) Get(ctx context.Context, id string) (*models.RentalPayment, error) {
	p, err := l.store.Get(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newLedgerError(models.ReasonNotFound, "payment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", id, err)
	}
	return p, nil
}

// GetByRentalID returns the payment attached to a rental
func (l *PaymentLedger) GetByRentalID(ctx context.Context, rentalID string) (*models.RentalPayment, error) {
	p, err := l.store.GetByRentalID(ctx, rentalID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, newLedgerError(models.ReasonNotFound, "no payment for rental %s", rentalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment for rental %s: %w", rentalID, err)
	}
	return p, nil
}

// List returns the payments matching filter in insertion order
func (l *PaymentLedger) List(ctx context.Context, filter *models.RentalPaymentFilter) ([]*models.RentalPayment, error) {
	if filter != nil && filter.Status != "" && !filter.Status.Valid() {
		return nil, newLedgerError(models.ReasonValidation, "unknown payment status %q", filter.Status)
	}
	payments, err := l.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// Register creates the payment record for a newly booked rental
func (l *PaymentLedger) Register(ctx context.Context, p *models.RentalPayment) (*models.RentalPayment, error) {
	p = p.Clone()
	p.RentalID = strings.TrimSpace(p.RentalID)
	p.CustomerName = strings.TrimSpace(p.CustomerName)
	p.VehicleRegistration = strings.TrimSpace(p.VehicleRegistration)
	p.Company = strings.TrimSpace(p.Company)

	switch {
	case p.RentalID == "":
		return nil, newLedgerError(models.ReasonValidation, "rental_id is required")
	case p.CustomerName == "":
		return nil, newLedgerError(models.ReasonValidation, "customer_name is required")
	case p.VehicleRegistration == "":
		return nil, newLedgerError(models.ReasonValidation, "vehicle_registration is required")
	case p.AmountDue.IsNegative():
		return nil, newLedgerError(models.ReasonValidation, "amount_due must not be negative")
	case p.PaymentDueDate.IsZero():
		return nil, newLedgerError(models.ReasonValidation, "payment_due_date is required")
	}

	if p.PaymentStatus == "" {
		p.PaymentStatus = models.PaymentStatusPending
	}
	if !p.PaymentStatus.Valid() {
		return nil, newLedgerError(models.ReasonValidation, "unknown payment status %q", p.PaymentStatus)
	}
	if p.PaymentStatus == models.PaymentStatusPaid {
		if p.PaidDate == nil || p.TransactionID == nil || *p.TransactionID == "" || p.PaymentMethod == "" {
			return nil, newLedgerError(models.ReasonValidation, "paid records need paid_date, payment_method and transaction_id")
		}
	} else {
		p.PaidDate = nil
		p.TransactionID = nil
	}

	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	if err := l.store.Create(ctx, p); err != nil {
		if errors.Is(err, repositories.ErrDuplicateRental) {
			return nil, newLedgerError(models.ReasonValidation, "rental %s already has a payment record", p.RentalID)
		}
		return nil, fmt.Errorf("failed to register payment for rental %s: %w", p.RentalID, err)
	}

	log.Printf("[Ledger] Registered payment %s for rental %s (%s due %s)",
		p.ID, p.RentalID, p.AmountDue.StringFixed(2), timeutil.FormatDate(p.PaymentDueDate))

	l.publish(ctx, models.PaymentChangeEvent{
		PaymentID:  p.ID,
		RentalID:   p.RentalID,
		NewStatus:  p.PaymentStatus,
		OccurredAt: l.now(),
	})
	return p, nil
}

// ApplyStatus moves the payment for rentalID to status.
//
// Re-applying the status a record already has is a successful no-op with
// Duplicate set. Nothing changed, so no PaymentChangeEvent is published and
// cached statistics stay valid: subscribers only ever see effective
// transitions, and a redelivered bank webhook is silent.
//
// Moving to paid needs PaidDate, PaymentMethod and TransactionID; moving
// away from paid clears the paid fields. When
// meta.ObservedAmount is set and the amount policy is enabled, a transfer
// outside tolerance is refused with amount-mismatch.
func (l *PaymentLedger) ApplyStatus(ctx context.Context, rentalID string, status models.PaymentStatus, meta models.StatusMeta) (*ApplyResult, error) {
	if !status.Valid() {
		return nil, newLedgerError(models.ReasonValidation, "unknown payment status %q", status)
	}
	if status == models.PaymentStatusPaid {
		var missing []string
		if meta.PaidDate == nil {
			missing = append(missing, "paid_date")
		}
		if strings.TrimSpace(meta.PaymentMethod) == "" {
			missing = append(missing, "payment_method")
		}
		if strings.TrimSpace(meta.TransactionID) == "" {
			missing = append(missing, "transaction_id")
		}
		if len(missing) > 0 {
			return nil, newLedgerError(models.ReasonValidation, "marking paid requires %s", strings.Join(missing, ", "))
		}
	}

	unlock := l.locks.Lock(strings.ToLower(rentalID))
	defer unlock()

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		current, err := l.GetByRentalID(ctx, rentalID)
		if err != nil {
			return nil, err
		}

		if current.PaymentStatus == status {
			return &ApplyResult{Payment: current, PreviousStatus: current.PaymentStatus, Duplicate: true}, nil
		}

		if meta.ObservedAmount != nil && !l.policy.Matches(*meta.ObservedAmount, current.AmountDue) {
			return nil, newLedgerError(models.ReasonAmountMismatch,
				"received %s but %s is due for rental %s",
				meta.ObservedAmount.StringFixed(2), current.AmountDue.StringFixed(2), rentalID)
		}

		next := current.Clone()
		next.PaymentStatus = status
		if status == models.PaymentStatusPaid {
			paid := timeutil.StartOfDay(*meta.PaidDate)
			tx := strings.TrimSpace(meta.TransactionID)
			next.PaidDate = &paid
			next.PaymentMethod = strings.TrimSpace(meta.PaymentMethod)
			next.TransactionID = &tx
		} else {
			next.PaidDate = nil
			next.TransactionID = nil
			if m := strings.TrimSpace(meta.PaymentMethod); m != "" {
				next.PaymentMethod = m
			}
		}

		err = l.store.UpdateStatus(ctx, next, current.PaymentStatus)
		if errors.Is(err, repositories.ErrStatusConflict) {
			metrics.PaymentConflictRetriesTotal.Inc()
			log.Printf("[Ledger] Status of rental %s changed underneath us, retrying", rentalID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update payment for rental %s: %w", rentalID, err)
		}

		metrics.PaymentTransitionsTotal.WithLabelValues(string(current.PaymentStatus), string(status)).Inc()
		log.Printf("[Ledger] Rental %s: %s -> %s", rentalID, current.PaymentStatus, status)

		l.publish(ctx, models.PaymentChangeEvent{
			PaymentID:      next.ID,
			RentalID:       next.RentalID,
			PreviousStatus: current.PaymentStatus,
			NewStatus:      status,
			OccurredAt:     l.now(),
		})

		return &ApplyResult{Payment: next, PreviousStatus: current.PaymentStatus}, nil
	}

	return nil, fmt.Errorf("rental %s: %w", rentalID, repositories.ErrStatusConflict)
}

// Statistics aggregates the whole ledger for the dashboard. A cached
// snapshot is only stored when no change committed while it was computed,
// so statistics never outlive a mutation.
func (l *PaymentLedger) Statistics(ctx context.Context) (*models.PaymentStatistics, error) {
	if l.cache == nil {
		return l.computeStatistics(ctx)
	}

	generation, ok := l.cache.Generation(ctx)
	if !ok {
		return l.computeStatistics(ctx)
	}
	if stats, hit := l.cache.GetStatistics(ctx, generation); hit {
		return stats, nil
	}

	changes := l.changes.Load()
	stats, err := l.computeStatistics(ctx)
	if err != nil {
		return nil, err
	}
	if l.changes.Load() == changes {
		l.cache.SetStatistics(ctx, generation, stats)
	}
	return stats, nil
}

func (l *PaymentLedger) computeStatistics(ctx context.Context) (*models.PaymentStatistics, error) {
	payments, err := l.store.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for statistics: %w", err)
	}
	stats := ComputeStatistics(payments)
	return &stats, nil
}

// publish runs after a change has committed: it bumps the change counter,
// drops cached statistics, then notifies subscribers
func (l *PaymentLedger) publish(ctx context.Context, event models.PaymentChangeEvent) {
	l.changes.Add(1)
	if l.cache != nil {
		// the change is committed; a caller hanging up must not skip this
		invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		l.cache.InvalidateStatistics(invalidateCtx)
		cancel()
	}
	for _, p := range l.publishers {
		p.PublishPaymentChange(event)
	}
}
