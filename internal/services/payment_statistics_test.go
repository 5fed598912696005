package services

import (
	"testing"

	"fleet-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func payment(status models.PaymentStatus, amount string) *models.RentalPayment {
	return &models.RentalPayment{PaymentStatus: status, AmountDue: decimal.RequireFromString(amount)}
}

func TestComputeStatisticsEmpty(t *testing.T) {
	stats := ComputeStatistics(nil)

	assert.Equal(t, 0, stats.Total)
	assert.True(t, stats.TotalAmount.IsZero())
	assert.True(t, stats.PaidAmount.IsZero())
	assert.True(t, stats.OutstandingAmount.IsZero())
	assert.Equal(t, 0.0, stats.CollectionRate)
}

func TestComputeStatisticsMixed(t *testing.T) {
	stats := ComputeStatistics([]*models.RentalPayment{
		payment(models.PaymentStatusPaid, "100"),
		payment(models.PaymentStatusPending, "50"),
		payment(models.PaymentStatusOverdue, "25"),
	})

	assert.Equal(t, 3, stats.Total)
	assert.True(t, stats.TotalAmount.Equal(decimal.NewFromInt(175)))
	assert.Equal(t, 1, stats.Paid)
	assert.True(t, stats.PaidAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 1, stats.Pending)
	assert.True(t, stats.PendingAmount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 1, stats.Overdue)
	assert.True(t, stats.OverdueAmount.Equal(decimal.NewFromInt(25)))
	assert.True(t, stats.OutstandingAmount.Equal(decimal.NewFromInt(75)))
	assert.InDelta(t, 57.14, stats.CollectionRate, 0.001)
}

func TestComputeStatisticsZeroAmounts(t *testing.T) {
	stats := ComputeStatistics([]*models.RentalPayment{
		payment(models.PaymentStatusPaid, "0"),
		payment(models.PaymentStatusPending, "0"),
	})

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0.0, stats.CollectionRate)
}

func TestComputeStatisticsKeepsCents(t *testing.T) {
	stats := ComputeStatistics([]*models.RentalPayment{
		payment(models.PaymentStatusPaid, "0.10"),
		payment(models.PaymentStatusPaid, "0.20"),
		payment(models.PaymentStatusPending, "0.30"),
	})

	assert.Equal(t, "0.30", stats.PaidAmount.StringFixed(2))
	assert.Equal(t, "0.60", stats.TotalAmount.StringFixed(2))
	assert.InDelta(t, 50.0, stats.CollectionRate, 0.001)
}

func TestComputeStatisticsFullyCollected(t *testing.T) {
	stats := ComputeStatistics([]*models.RentalPayment{
		payment(models.PaymentStatusPaid, "120.50"),
		payment(models.PaymentStatusPaid, "79.50"),
	})

	assert.InDelta(t, 100.0, stats.CollectionRate, 0.001)
	assert.True(t, stats.OutstandingAmount.IsZero())
}
