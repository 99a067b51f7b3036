package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrDuplicateBooking    = errors.New("duplicate booking")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrSlotFull            = errors.New("slot full")
	ErrQuotaExceeded       = errors.New("quota exceeded")
	ErrDataIntegrity       = errors.New("data integrity violation")
	ErrNotAuthorized       = errors.New("not authorized")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidSlot         = errors.New("invalid slot")
	ErrSlotInUse           = errors.New("slot has active bookings")
	ErrStatusConflict      = errors.New("appointment status changed concurrently")
)

// QuotaExceededError names the limiting classification for UI messaging.
type QuotaExceededError struct {
	Classification string
	Limit          int
	Active         int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: classification %q allows %d active appointments, %d held",
		e.Classification, e.Limit, e.Active)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Retryable reports whether the caller may retry the operation with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
