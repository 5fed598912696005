package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"fleet-backend/internal/middleware"
	"fleet-backend/internal/models"
	"fleet-backend/internal/services"
	"fleet-backend/internal/timeutil"
	"fleet-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type PaymentHandler struct {
	Ledger   *services.PaymentLedger
	Receipts *services.ReceiptService
}

func NewPaymentHandler(ledger *services.PaymentLedger, receipts *services.ReceiptService) *PaymentHandler {
	return &PaymentHandler{Ledger: ledger, Receipts: receipts}
}

// ListPayments returns payments matching the query filter
// GET /api/payments?search=&customer=&company=&vehicle=&status=
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.RentalPaymentFilter{
		Search:   q.Get("search"),
		Customer: q.Get("customer"),
		Company:  q.Get("company"),
		Vehicle:  q.Get("vehicle"),
		Status:   models.PaymentStatus(q.Get("status")),
	}

	payments, err := h.Ledger.List(r.Context(), filter)
	if err != nil {
		respondLedgerError(w, err, "list payments")
		return
	}
	if payments == nil {
		payments = []*models.RentalPayment{}
	}
	utils.JSON(w, http.StatusOK, payments)
}

// CreatePayment registers the payment record for a new rental
// POST /api/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRentalPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondReason(w, http.StatusBadRequest, "Invalid request body", string(models.ReasonValidation))
		return
	}

	dueDate, err := timeutil.ParseDate(req.PaymentDueDate)
	if err != nil {
		utils.RespondReason(w, http.StatusBadRequest, fmt.Sprintf("invalid payment_due_date %q", req.PaymentDueDate), string(models.ReasonValidation))
		return
	}

	payment, err := h.Ledger.Register(r.Context(), &models.RentalPayment{
		RentalID:            req.RentalID,
		CustomerName:        req.CustomerName,
		VehicleRegistration: req.VehicleRegistration,
		Company:             req.Company,
		AmountDue:           req.AmountDue,
		PaymentDueDate:      dueDate,
		PaymentMethod:       req.PaymentMethod,
	})
	if err != nil {
		respondLedgerError(w, err, "register payment")
		return
	}

	subject, _ := middleware.GetSubjectFromContext(r.Context())
	log.Printf("[Payments] %s registered payment %s for rental %s", subjectOrAnonymous(subject), payment.ID, payment.RentalID)
	utils.JSON(w, http.StatusCreated, payment)
}

// GetPayment returns a single payment by id
// GET /api/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := h.Ledger.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondLedgerError(w, err, "get payment")
		return
	}
	utils.JSON(w, http.StatusOK, payment)
}

// UpdateStatus is the operator's manual override. It goes through the same
// ledger transition as the bank webhook.
// PUT /api/payments/{rental_id}/status
func (h *PaymentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	rentalID := mux.Vars(r)["rental_id"]

	var req models.UpdatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondReason(w, http.StatusBadRequest, "Invalid request body", string(models.ReasonValidation))
		return
	}

	status, ok := models.ParsePaymentStatus(strings.TrimSpace(req.Status))
	if !ok {
		utils.RespondReason(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status), string(models.ReasonValidation))
		return
	}

	meta := models.StatusMeta{
		PaymentMethod:  req.PaymentMethod,
		TransactionID:  req.TransactionID,
		ObservedAmount: req.Amount,
	}
	if strings.TrimSpace(req.PaidDate) != "" {
		paidDate, err := timeutil.ParseDate(req.PaidDate)
		if err != nil {
			utils.RespondReason(w, http.StatusBadRequest, fmt.Sprintf("invalid paid_date %q", req.PaidDate), string(models.ReasonValidation))
			return
		}
		meta.PaidDate = &paidDate
	}

	result, err := h.Ledger.ApplyStatus(r.Context(), rentalID, status, meta)
	if err != nil {
		respondLedgerError(w, err, "update payment status")
		return
	}

	subject, _ := middleware.GetSubjectFromContext(r.Context())
	if result.Duplicate {
		log.Printf("[Payments] %s re-applied %s to rental %s (no change)", subjectOrAnonymous(subject), status, rentalID)
	} else {
		log.Printf("[Payments] %s moved rental %s from %s to %s", subjectOrAnonymous(subject), rentalID, result.PreviousStatus, status)
	}
	utils.JSON(w, http.StatusOK, result)
}

// GetStatistics returns dashboard aggregates
// GET /api/payments/statistics
func (h *PaymentHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Ledger.Statistics(r.Context())
	if err != nil {
		respondLedgerError(w, err, "payment statistics")
		return
	}
	utils.JSON(w, http.StatusOK, stats)
}

// DownloadReceipt streams the PDF receipt of a paid payment
// GET /api/payments/{id}/receipt
func (h *PaymentHandler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	payment, data, err := h.Receipts.ReceiptForPayment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondLedgerError(w, err, "render receipt")
		return
	}

	filename := fmt.Sprintf("receipt_%s.pdf", payment.RentalID)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("[Payments] Failed to write receipt for %s: %v", payment.ID, err)
	}
}

func subjectOrAnonymous(subject string) string {
	if subject == "" {
		return "anonymous"
	}
	return subject
}
