package engagement

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no engagement row exists for the identifier.
	ErrNotFound = errors.New("engagement: not found")
	// ErrInvalidTransition signals a state precondition that never held.
	ErrInvalidTransition = errors.New("engagement: invalid transition")
	// ErrConcurrentModification signals an optimistic-lock conflict; the
	// caller must re-read and retry against fresh state.
	ErrConcurrentModification = errors.New("engagement: concurrent modification")
	// ErrPaymentNotVerified is returned by Accept when the referenced escrow
	// payment is not in the verified state.
	ErrPaymentNotVerified = errors.New("engagement: escrow payment not verified")
	// ErrDisputeNotEligible is returned when the consumed budget has not
	// crossed the halfway mark.
	ErrDisputeNotEligible = errors.New("engagement: dispute not eligible")
	// ErrAlreadySubmitted blocks company rejection once work has been delivered.
	ErrAlreadySubmitted = errors.New("engagement: submission already exists")
	// ErrForbidden signals the actor does not own the side of the engagement
	// the operation requires.
	ErrForbidden = errors.New("engagement: forbidden")
)

// NoIterationsRemainingError is a user-correctable condition, not a crash:
// it carries the remaining count and whether the dispute path is open.
type NoIterationsRemainingError struct {
	Remaining       int
	DisputeEligible bool
}

func (e *NoIterationsRemainingError) Error() string {
	if e.DisputeEligible {
		return fmt.Sprintf("engagement: no iterations remaining (%d left); dispute may be raised", e.Remaining)
	}
	return fmt.Sprintf("engagement: no iterations remaining (%d left)", e.Remaining)
}
