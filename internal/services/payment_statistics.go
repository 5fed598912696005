package services

import (
	"fleet-backend/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ComputeStatistics aggregates a snapshot of payments in one pass.
// CollectionRate is paid amount over total amount as a percentage rounded
// to two places, and 0 when nothing is due.
func ComputeStatistics(payments []*models.RentalPayment) models.PaymentStatistics {
	stats := models.PaymentStatistics{
		TotalAmount:       decimal.Zero,
		PaidAmount:        decimal.Zero,
		PendingAmount:     decimal.Zero,
		OverdueAmount:     decimal.Zero,
		OutstandingAmount: decimal.Zero,
	}

	for _, p := range payments {
		if p == nil {
			continue
		}
		stats.Total++
		stats.TotalAmount = stats.TotalAmount.Add(p.AmountDue)

		switch p.PaymentStatus {
		case models.PaymentStatusPaid:
			stats.Paid++
			stats.PaidAmount = stats.PaidAmount.Add(p.AmountDue)
		case models.PaymentStatusPending:
			stats.Pending++
			stats.PendingAmount = stats.PendingAmount.Add(p.AmountDue)
		case models.PaymentStatusOverdue:
			stats.Overdue++
			stats.OverdueAmount = stats.OverdueAmount.Add(p.AmountDue)
		}
	}

	stats.OutstandingAmount = stats.TotalAmount.Sub(stats.PaidAmount)

	if stats.TotalAmount.IsPositive() {
		rate := stats.PaidAmount.Mul(hundred).DivRound(stats.TotalAmount, 2)
		stats.CollectionRate = rate.InexactFloat64()
	}

	return stats
}
