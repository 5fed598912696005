package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"fleet-backend/internal/models"
)

// MaxStoredPayload caps the raw body kept on the audit row
const MaxStoredPayload = 64 << 10

// DeliveryStore persists webhook delivery audit rows
type DeliveryStore interface {
	Create(ctx context.Context, d *models.WebhookDelivery) error
	List(ctx context.Context, filter *models.WebhookDeliveryFilter) ([]*models.WebhookDelivery, int, error)
}

// PayloadArchiver keeps full raw payloads outside the database
type PayloadArchiver interface {
	DeliveryKey(deliveryID string, receivedAt time.Time) string
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// DeliveryAuditService records every inbound delivery. Rejected payloads are
// also uploaded to the archive when one is configured.
type DeliveryAuditService struct {
	Repo     DeliveryStore
	archiver PayloadArchiver
}

func NewDeliveryAuditService(repo DeliveryStore) *DeliveryAuditService {
	return &DeliveryAuditService{Repo: repo}
}

// SetArchiver enables archival of rejected payloads
func (s *DeliveryAuditService) SetArchiver(a PayloadArchiver) {
	s.archiver = a
}

// RecordDelivery implements DeliveryRecorder
func (s *DeliveryAuditService) RecordDelivery(ctx context.Context, d *models.WebhookDelivery, raw []byte) error {
	d.Payload = truncatePayload(raw)

	if d.Outcome == models.WebhookRejected && s.archiver != nil && len(raw) > 0 {
		key := s.archiver.DeliveryKey(d.ID, d.ReceivedAt)
		if err := s.archiver.Put(ctx, key, raw, "application/json"); err != nil {
			// the audit row still matters more than the archive copy
			log.Printf("[Audit] Failed to archive delivery %s: %v", d.ID, err)
		} else {
			d.ArchiveKey = key
		}
	}

	if err := s.Repo.Create(ctx, d); err != nil {
		return fmt.Errorf("failed to store delivery %s: %w", d.ID, err)
	}
	return nil
}

// List returns the delivery log newest first
func (s *DeliveryAuditService) List(ctx context.Context, filter *models.WebhookDeliveryFilter) ([]*models.WebhookDelivery, int, error) {
	if filter == nil {
		filter = &models.WebhookDeliveryFilter{}
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.Repo.List(ctx, filter)
}

// truncatePayload caps raw at MaxStoredPayload and makes it safe for a TEXT column
func truncatePayload(raw []byte) string {
	if len(raw) > MaxStoredPayload {
		n := MaxStoredPayload
		// don't split a multi-byte rune
		for n > MaxStoredPayload-utf8.UTFMax && !utf8.RuneStart(raw[n]) {
			n--
		}
		raw = raw[:n]
	}
	s := strings.ToValidUTF8(string(raw), "\uFFFD")
	return strings.ReplaceAll(s, "\x00", "")
}
