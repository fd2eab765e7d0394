package common

import (
	"errors"
	"fmt"
)

var (
	// repository specific errors
	ErrNotFound = errors.New("not found")

	// submission pipeline errors
	ErrDuplicateReceipt   = errors.New("receipt already saved")
	ErrInvalidFieldUpdate = errors.New("invalid field update")

	// auth errors
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotVerified   = errors.New("email not verified")

	ErrInternal = errors.New("internal error")
)

// ValidationError reports a missing or malformed input field. It is an
// expected condition and is rendered to the caller as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// QuotaExceededError is returned when a basic-plan user hits the receipt
// limit for the active accounting window. It carries the configured limit so
// the client can render an upgrade prompt.
type QuotaExceededError struct {
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("monthly receipt limit (%d) reached for basic plan", e.Limit)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsQuotaExceeded unwraps the quota error, if any.
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
