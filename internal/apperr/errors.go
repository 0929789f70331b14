package apperr

import (
	"errors"
	"fmt"
)

// Shared error taxonomy for the booking core. Handlers map these onto HTTP
// status codes; services return them wrapped with fmt.Errorf("%w").
var (
	// ErrNotFound also masks ownership mismatches so callers cannot
	// enumerate other users' resources.
	ErrNotFound = errors.New("resource not found")

	// ErrCapacityExceeded rejects a schedule when the per-city-per-day
	// booking limit for the event is already reached.
	ErrCapacityExceeded = errors.New("booking capacity exceeded for the selected day")

	// ErrConflictNeedsConfirmation requires an explicit force flag before
	// overwriting an already-configured cart item for the same event.
	ErrConflictNeedsConfirmation = errors.New("cart already holds this event, confirmation required")

	ErrEmptySelection  = errors.New("no cart items selected for checkout")
	ErrIncompleteDraft = errors.New("draft is missing tier, address or schedule")

	// ErrIdempotentNoop is not a failure: the operation was already applied
	// and the duplicate trigger was discarded.
	ErrIdempotentNoop = errors.New("already handled")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NewValidation builds a ValidationError.
func NewValidation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError, including
// the draft/selection sentinels which share its 4xx semantics.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrEmptySelection) || errors.Is(err, ErrIncompleteDraft)
}

// GatewayError marks a transient payment-gateway failure; callers may retry
// initiation.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGateway wraps err as a GatewayError for the given operation.
func NewGateway(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err}
}
