package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"fleet-backend/internal/models"
	"fleet-backend/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	puts map[string][]byte
	err  error
}

func (f *fakeArchiver) DeliveryKey(id string, at time.Time) string {
	return "webhooks/" + id + ".json"
}

func (f *fakeArchiver) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}

func TestRecordDeliveryArchivesRejectedPayloads(t *testing.T) {
	store := repositories.NewMemoryDeliveryStore()
	archiver := &fakeArchiver{}
	audit := NewDeliveryAuditService(store)
	audit.SetArchiver(archiver)
	ctx := context.Background()

	rejected := &models.WebhookDelivery{ID: "d1", Outcome: models.WebhookRejected, Reason: models.ReasonBadReference}
	accepted := &models.WebhookDelivery{ID: "d2", Outcome: models.WebhookAccepted}

	require.NoError(t, audit.RecordDelivery(ctx, rejected, []byte(`{"reference":"nope"}`)))
	require.NoError(t, audit.RecordDelivery(ctx, accepted, []byte(`{"reference":"FLEET-R1-A"}`)))

	assert.Len(t, archiver.puts, 1)
	assert.Contains(t, archiver.puts, "webhooks/d1.json")

	logged, total, err := audit.List(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	assert.Equal(t, "d2", logged[0].ID, "newest first")
	assert.Equal(t, "webhooks/d1.json", logged[1].ArchiveKey)
	assert.Empty(t, logged[0].ArchiveKey)
}

func TestRecordDeliveryArchiveFailureStillRecords(t *testing.T) {
	store := repositories.NewMemoryDeliveryStore()
	audit := NewDeliveryAuditService(store)
	audit.SetArchiver(&fakeArchiver{err: errors.New("r2 down")})

	d := &models.WebhookDelivery{ID: "d1", Outcome: models.WebhookRejected}
	require.NoError(t, audit.RecordDelivery(context.Background(), d, []byte(`{}`)))

	logged, total, err := audit.List(context.Background(), &models.WebhookDeliveryFilter{Outcome: "rejected"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Empty(t, logged[0].ArchiveKey)
}

func TestTruncatePayload(t *testing.T) {
	assert.Equal(t, `{"a":1}`, truncatePayload([]byte(`{"a":1}`)))

	big := strings.Repeat("a", MaxStoredPayload-1) + "é"
	got := truncatePayload([]byte(big))
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, MaxStoredPayload-1)

	assert.Equal(t, "ab", truncatePayload([]byte("a\x00b")))
}
