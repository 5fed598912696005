package repositories

import "errors"

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a compare-and-swap status update
	// finds the row no longer in the expected status
	ErrStatusConflict = errors.New("payment status changed concurrently")
	// ErrDuplicateRental is returned when a rental already has a payment record
	ErrDuplicateRental = errors.New("rental already has a payment record")
)
