package services

import (
	"bytes"
	"context"
	"fmt"

	"fleet-backend/internal/models"
	"fleet-backend/internal/reference"
	"fleet-backend/internal/timeutil"

	"github.com/jung-kurt/gofpdf/v2"
)

// ReceiptService renders PDF receipts for settled rental payments
type ReceiptService struct {
	ledger      *PaymentLedger
	CompanyName string
}

func NewReceiptService(ledger *PaymentLedger) *ReceiptService {
	return &ReceiptService{ledger: ledger, CompanyName: "Fleet Rentals"}
}

// ReceiptForPayment loads a payment by id and renders its receipt.
// Only paid records have receipts; anything else is a validation error.
func (s *ReceiptService) ReceiptForPayment(ctx context.Context, paymentID string) (*models.RentalPayment, []byte, error) {
	p, err := s.ledger.Get(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if p.PaymentStatus != models.PaymentStatusPaid {
		return nil, nil, newLedgerError(models.ReasonValidation, "payment %s is %s, receipts exist only for paid payments", p.ID, p.PaymentStatus)
	}
	data, err := s.GenerateReceiptPDF(p)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to render receipt for %s: %w", p.ID, err)
	}
	return p, data, nil
}

// GenerateReceiptPDF renders a one-page A4 receipt
func (s *ReceiptService) GenerateReceiptPDF(p *models.RentalPayment) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle(fmt.Sprintf("Receipt %s", p.RentalID), false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, fmt.Sprintf("%s - Payment Receipt", s.CompanyName), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, fmt.Sprintf("Generated: %s", timeutil.Now().Format("02-Jan-2006 03:04 PM")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Rental
	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Rental", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(95, 7, fmt.Sprintf("Customer: %s", p.CustomerName), "LB", 0, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Rental: %s", p.RentalID), "RB", 1, "L", false, 0, "")
	pdf.CellFormat(95, 7, fmt.Sprintf("Vehicle: %s", p.VehicleRegistration), "LB", 0, "L", false, 0, "")
	if p.Company != "" {
		pdf.CellFormat(95, 7, fmt.Sprintf("Company: %s", p.Company), "RB", 1, "L", false, 0, "")
	} else {
		pdf.CellFormat(95, 7, "", "RB", 1, "L", false, 0, "")
	}
	pdf.Ln(5)

	// Payment
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(190, 8, "Payment", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(50, 7, "Reference", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Due", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Paid", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Method", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Amount", "1", 1, "C", true, 0, "")

	paidOn := ""
	if p.PaidDate != nil {
		paidOn = p.PaidDate.In(timeutil.Location).Format("02-Jan-2006")
	}
	ref := reference.Encode(p.RentalID, p.CustomerName)
	if len(ref) > 24 {
		ref = ref[:21] + "..."
	}

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(50, 6, ref, "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, 6, p.PaymentDueDate.In(timeutil.Location).Format("02-Jan-2006"), "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, paidOn, "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, p.PaymentMethod, "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, p.AmountDue.StringFixed(2), "1", 1, "R", false, 0, "")
	pdf.Ln(5)

	if p.TransactionID != nil {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(190, 6, fmt.Sprintf("Bank transaction: %s", *p.TransactionID), "", 1, "L", false, 0, "")
	}

	pdf.SetFillColor(200, 255, 200)
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(190, 10, fmt.Sprintf("PAID IN FULL: %s", p.AmountDue.StringFixed(2)), "1", 1, "C", true, 0, "")

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
