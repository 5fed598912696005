package repositories

import (
	"context"
	"fmt"
	"sync"

	"fleet-backend/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookDeliveryRepository struct {
	DB *pgxpool.Pool
}

func NewWebhookDeliveryRepository(db *pgxpool.Pool) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{DB: db}
}

// Create records one inbound webhook delivery
func (r *WebhookDeliveryRepository) Create(ctx context.Context, d *models.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			id, received_at, reference, rental_id, transaction_id, amount,
			outcome, reason, message, duplicate, payload, archive_key
		)
		VALUES ($1::text::uuid, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''),
		        $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, NULLIF($12, ''))
	`

	_, err := r.DB.Exec(ctx, query,
		d.ID,
		d.ReceivedAt,
		d.Reference,
		d.RentalID,
		d.TransactionID,
		d.Amount,
		string(d.Outcome),
		string(d.Reason),
		d.Message,
		d.Duplicate,
		d.Payload,
		d.ArchiveKey,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

// List returns deliveries newest first with the total matching count
func (r *WebhookDeliveryRepository) List(ctx context.Context, filter *models.WebhookDeliveryFilter) ([]*models.WebhookDelivery, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argNum := 1

	if filter.Outcome != "" {
		whereClause += fmt.Sprintf(" AND outcome = $%d", argNum)
		args = append(args, filter.Outcome)
		argNum++
	}

	if filter.Reason != "" {
		whereClause += fmt.Sprintf(" AND reason = $%d", argNum)
		args = append(args, filter.Reason)
		argNum++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM webhook_deliveries %s", whereClause)
	var total int
	if err := r.DB.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id::text, received_at, COALESCE(reference, ''), COALESCE(rental_id, ''),
		       COALESCE(transaction_id, ''), COALESCE(amount, ''), outcome, COALESCE(reason, ''),
		       COALESCE(message, ''), duplicate, COALESCE(archive_key, '')
		FROM webhook_deliveries
		%s
		ORDER BY received_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argNum, argNum+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var deliveries []*models.WebhookDelivery
	for rows.Next() {
		d := &models.WebhookDelivery{}
		var outcome, reason string
		err := rows.Scan(
			&d.ID, &d.ReceivedAt, &d.Reference, &d.RentalID,
			&d.TransactionID, &d.Amount, &outcome, &reason,
			&d.Message, &d.Duplicate, &d.ArchiveKey,
		)
		if err != nil {
			return nil, 0, err
		}
		d.Outcome = models.WebhookOutcome(outcome)
		d.Reason = models.RejectReason(reason)
		deliveries = append(deliveries, d)
	}

	return deliveries, total, rows.Err()
}

// MemoryDeliveryStore keeps the delivery log in memory for -store=memory runs
type MemoryDeliveryStore struct {
	mu         sync.RWMutex
	deliveries []*models.WebhookDelivery
}

func NewMemoryDeliveryStore() *MemoryDeliveryStore {
	return &MemoryDeliveryStore{}
}

func (s *MemoryDeliveryStore) Create(ctx context.Context, d *models.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *d
	s.deliveries = append(s.deliveries, &c)
	return nil
}

func (s *MemoryDeliveryStore) List(ctx context.Context, filter *models.WebhookDeliveryFilter) ([]*models.WebhookDelivery, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.WebhookDelivery
	for i := len(s.deliveries) - 1; i >= 0; i-- {
		d := s.deliveries[i]
		if filter.Outcome != "" && string(d.Outcome) != filter.Outcome {
			continue
		}
		if filter.Reason != "" && string(d.Reason) != filter.Reason {
			continue
		}
		c := *d
		matched = append(matched, &c)
	}

	total := len(matched)
	if filter.Offset >= total {
		return []*models.WebhookDelivery{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}
