package shared

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState indicates an operation attempted from a state that does not permit it.
	ErrInvalidState = errors.New("operation not allowed in current state")
	// ErrInsufficientStock indicates an allocation would drive availability below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates a structural conflict such as deleting an in-progress wave.
	ErrConflict = errors.New("conflicting state")
	// ErrEmptyInput indicates a batch operation found nothing eligible to work on.
	ErrEmptyInput = errors.New("no eligible input")
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
)

// UserSafeMessage returns a message safe to surface to API consumers.
// Known domain errors pass through; anything else is masked.
func UserSafeMessage(err error) string {
	for _, known := range []error{ErrValidation, ErrInvalidState, ErrInsufficientStock, ErrConflict, ErrEmptyInput, ErrNotFound} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "internal error"
}
