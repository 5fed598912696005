package cache

import (
	"context"
	"testing"
	"time"

	"fleet-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withClient(t *testing.T, c *redis.Client) {
	t.Helper()
	previous := GetClient()
	SetClient(c)
	t.Cleanup(func() {
		if c != nil {
			c.Close()
		}
		SetClient(previous)
	})
}

func TestStatisticsCacheWithoutRedis(t *testing.T) {
	withClient(t, nil)
	ctx := context.Background()
	c := NewPaymentStatisticsCache()

	_, ok := c.Generation(ctx)
	assert.False(t, ok)

	c.SetStatistics(ctx, 0, &models.PaymentStatistics{Total: 1})
	_, hit := c.GetStatistics(ctx, 0)
	assert.False(t, hit)

	assert.NotPanics(t, func() { c.InvalidateStatistics(ctx) })
	assert.False(t, IsHealthy())

	_, hit = GetCached(ctx, statisticsKey(0))
	assert.False(t, hit)
}

func TestStatisticsCacheUnreachableRedis(t *testing.T) {
	withClient(t, redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	ctx := context.Background()
	c := NewPaymentStatisticsCache()

	_, ok := c.Generation(ctx)
	assert.False(t, ok)

	_, hit := c.GetStatistics(ctx, 0)
	assert.False(t, hit)
	assert.False(t, IsHealthy())
}

func TestStatisticsKeyPerGeneration(t *testing.T) {
	assert.Equal(t, "payments:statistics:0", statisticsKey(0))
	assert.NotEqual(t, statisticsKey(1), statisticsKey(2))
	assert.NotEqual(t, PaymentStatisticsGenKey, statisticsKey(0))
}

func TestStatisticsEncodingKeepsDecimals(t *testing.T) {
	stats := &models.PaymentStatistics{
		Total:             3,
		TotalAmount:       decimal.RequireFromString("1480.50"),
		Paid:              1,
		PaidAmount:        decimal.RequireFromString("240.25"),
		Pending:           1,
		PendingAmount:     decimal.RequireFromString("1150.00"),
		Overdue:           1,
		OverdueAmount:     decimal.RequireFromString("90.25"),
		OutstandingAmount: decimal.RequireFromString("1240.25"),
		CollectionRate:    16.23,
	}

	data, err := encodeStatistics(stats)
	require.NoError(t, err)

	got, err := decodeStatistics(data)
	require.NoError(t, err)

	assert.Equal(t, stats.Total, got.Total)
	assert.Equal(t, stats.Paid, got.Paid)
	assert.Equal(t, stats.Pending, got.Pending)
	assert.Equal(t, stats.Overdue, got.Overdue)
	assert.True(t, stats.TotalAmount.Equal(got.TotalAmount), "total_amount %s", got.TotalAmount)
	assert.True(t, stats.PaidAmount.Equal(got.PaidAmount), "paid_amount %s", got.PaidAmount)
	assert.True(t, stats.PendingAmount.Equal(got.PendingAmount), "pending_amount %s", got.PendingAmount)
	assert.True(t, stats.OverdueAmount.Equal(got.OverdueAmount), "overdue_amount %s", got.OverdueAmount)
	assert.True(t, stats.OutstandingAmount.Equal(got.OutstandingAmount), "outstanding_amount %s", got.OutstandingAmount)
	assert.InDelta(t, stats.CollectionRate, got.CollectionRate, 0.0001)
}

func TestDecodeStatisticsRejectsGarbage(t *testing.T) {
	_, err := decodeStatistics([]byte("not json"))
	assert.Error(t, err)
}
