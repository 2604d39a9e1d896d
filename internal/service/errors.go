// Package service implements appointment booking, the appointment
// lifecycle and payment reconciliation on top of the repositories.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/clinic-appointments/internal/repository"
)

// Error taxonomy surfaced to handlers. Detailed errors wrap one of these
// and are matched with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrPastDate        = errors.New("appointment date is in the past")
	ErrSlotUnavailable = errors.New("time slot is not available")
	ErrPolicyViolation = errors.New("policy violation")
	ErrIntegrity       = errors.New("integrity check failed")
	ErrNotFound        = errors.New("not found")
)

var (
	ErrForbidden          = fmt.Errorf("%w: operation not permitted for this user", ErrPolicyViolation)
	ErrNotOwner           = fmt.Errorf("%w: appointment belongs to another user", ErrForbidden)
	ErrInvalidTransition  = fmt.Errorf("%w: invalid status transition", ErrPolicyViolation)
	ErrAlreadyPaid        = fmt.Errorf("%w: appointment is already paid", ErrPolicyViolation)
	ErrCancellationWindow = fmt.Errorf("%w: too late to cancel", ErrPolicyViolation)
	ErrAppointmentClosed  = fmt.Errorf("%w: appointment is cancelled", ErrPolicyViolation)
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// translate maps repository sentinels onto the service taxonomy. Errors
// produced by service guards pass through unchanged.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, repository.ErrSlotTaken):
		return ErrSlotUnavailable
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s was modified concurrently", ErrPolicyViolation, what)
	}
	return err
}
