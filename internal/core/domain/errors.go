package domain

import "errors"

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStoreUnavailable   = errors.New("credential store unavailable")
	ErrIdentityNotFound   = errors.New("identity not found")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")
)

// ValidationError reports malformed client input. Its message is safe to
// return to the caller.
type ValidationError struct {
	Reason string
}

func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

func (e *ValidationError) Error() string {
	return e.Reason
}
