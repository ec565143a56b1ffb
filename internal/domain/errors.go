package domain

import (
	"errors"
	"fmt"
)

var (
	// Taxonomy classes. Callers branch on these with errors.Is.
	ErrValidation     = errors.New("validation failed")
	ErrTransientAuth  = errors.New("security token expired")
	ErrPersistentAuth = errors.New("re-authentication required")
	ErrNetwork        = errors.New("network failure")

	// Validation causes
	ErrInvalidAmount        = errors.New("amount is not a valid decimal")
	ErrNegativeAmount       = errors.New("amount must not be negative")
	ErrUnknownPSP           = errors.New("unknown psp")
	ErrDateOutsideWindow    = errors.New("date is outside the editable window")
	ErrInvalidKind          = errors.New("invalid override kind")
	ErrConfirmationRequired = errors.New("confirmation code required")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidDateRange     = errors.New("start date is after end date")
	ErrMissingActor         = errors.New("actor is required")

	// Lookup errors
	ErrOverrideNotFound = errors.New("override not found")
)

// ValidationError reports malformed input. It matches ErrValidation and
// unwraps to the specific cause.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError wraps err as a validation failure on field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %v", e.Err)
	}
	return fmt.Sprintf("validation failed: %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the ErrValidation class.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
