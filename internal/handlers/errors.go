package handlers

import (
	"errors"
	"log"
	"net/http"

	"fleet-backend/internal/models"
	"fleet-backend/internal/services"
	"fleet-backend/pkg/utils"
)

// StatusForReason maps a rejection reason onto the HTTP status returned to
// the bank notifier and the dashboard
func StatusForReason(reason models.RejectReason) int {
	switch reason {
	case models.ReasonAuthFailure:
		return http.StatusUnauthorized
	case models.ReasonBadReference, models.ReasonValidation:
		return http.StatusBadRequest
	case models.ReasonNotFound:
		return http.StatusNotFound
	case models.ReasonAmountMismatch:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondLedgerError writes a typed ledger rejection, or a 500 for anything else
func respondLedgerError(w http.ResponseWriter, err error, context string) {
	var le *services.LedgerError
	if errors.As(err, &le) {
		utils.RespondReason(w, StatusForReason(le.Reason), le.Message, string(le.Reason))
		return
	}
	log.Printf("[Handler] %s: %v", context, err)
	utils.RespondError(w, http.StatusInternalServerError, "Internal server error")
}
