package services

import (
	"errors"
	"fmt"

	"fleet-backend/internal/models"
)

// LedgerError is a refused status transition. Reason maps onto the
// rejection taxonomy shared by the webhook and the manual override path.
type LedgerError struct {
	Reason  models.RejectReason
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newLedgerError(reason models.RejectReason, format string, args ...interface{}) *LedgerError {
	return &LedgerError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// RejectReasonOf extracts the rejection reason from err, if it carries one
func RejectReasonOf(err error) (models.RejectReason, bool) {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Reason, true
	}
	return "", false
}

// IsNotFound reports whether err is a ledger not-found rejection
func IsNotFound(err error) bool {
	r, ok := RejectReasonOf(err)
	return ok && r == models.ReasonNotFound
}

// IsValidation reports whether err is a ledger validation rejection
func IsValidation(err error) bool {
	r, ok := RejectReasonOf(err)
	return ok && r == models.ReasonValidation
}
