package models

import "errors"

// Error taxonomy. Wrap with fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrTransactionFailure = errors.New("transaction failure")

	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

var taxonomy = []error{
	ErrValidation,
	ErrNotFound,
	ErrInvalidState,
	ErrInsufficientStock,
	ErrInvariantViolation,
	ErrTransactionFailure,
	ErrConflict,
	ErrUnauthorized,
	ErrForbidden,
}

// Kind returns the taxonomy sentinel err wraps, or nil
func Kind(err error) error {
	for _, k := range taxonomy {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
