package repositories

import (
	"context"
	"strings"
	"sync"
	"time"

	"fleet-backend/internal/models"
)

// MemoryPaymentStore is a thread-safe in-memory payment store used for
// local runs (-store=memory) and tests. Listing keeps insertion order.
type MemoryPaymentStore struct {
	mu       sync.RWMutex
	byID     map[string]*models.RentalPayment
	byRental map[string]string
	order    []string
	now      func() time.Time
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{
		byID:     make(map[string]*models.RentalPayment),
		byRental: make(map[string]string),
		order:    make([]string, 0),
		now:      time.Now,
	}
}

func (s *MemoryPaymentStore) Create(ctx context.Context, p *models.RentalPayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRental[rentalKey(p.RentalID)]; exists {
		return ErrDuplicateRental
	}

	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.byID[p.ID] = p.Clone()
	s.byRental[rentalKey(p.RentalID)] = p.ID
	s.order = append(s.order, p.ID)
	return nil
}

func (s *MemoryPaymentStore) Get(ctx context.Context, id string) (*models.RentalPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryPaymentStore) GetByRentalID(ctx context.Context, rentalID string) (*models.RentalPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRental[rentalKey(rentalID)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryPaymentStore) List(ctx context.Context, filter *models.RentalPaymentFilter) ([]*models.RentalPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.RentalPayment, 0, len(s.order))
	for _, id := range s.order {
		p := s.byID[id]
		if MatchesFilter(p, filter) {
			result = append(result, p.Clone())
		}
	}
	return result, nil
}

func (s *MemoryPaymentStore) UpdateStatus(ctx context.Context, p *models.RentalPayment, expected models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRental[rentalKey(p.RentalID)]
	if !ok {
		return ErrStatusConflict
	}
	current := s.byID[id]
	if current.PaymentStatus != expected {
		return ErrStatusConflict
	}

	updated := current.Clone()
	updated.PaymentStatus = p.PaymentStatus
	updated.PaidDate = p.PaidDate
	updated.PaymentMethod = p.PaymentMethod
	updated.TransactionID = p.TransactionID
	updated.UpdatedAt = s.now()

	s.byID[id] = updated.Clone()
	p.UpdatedAt = updated.UpdatedAt
	return nil
}

// MatchesFilter applies the list filter semantics shared with the SQL repository
func MatchesFilter(p *models.RentalPayment, filter *models.RentalPaymentFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Status != "" && p.PaymentStatus != filter.Status {
		return false
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		if !containsFold(p.CustomerName, s) && !containsFold(p.Company, s) && !containsFold(p.VehicleRegistration, s) {
			return false
		}
	}
	if s := strings.TrimSpace(filter.Customer); s != "" && !containsFold(p.CustomerName, s) {
		return false
	}
	if s := strings.TrimSpace(filter.Company); s != "" && !containsFold(p.Company, s) {
		return false
	}
	if s := strings.TrimSpace(filter.Vehicle); s != "" && !containsFold(p.VehicleRegistration, s) {
		return false
	}
	return true
}

// rentalKey folds case: references carry the rental id upper-cased
func rentalKey(rentalID string) string {
	return strings.ToLower(rentalID)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
