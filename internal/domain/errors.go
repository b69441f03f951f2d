package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Specific errors wrap exactly one of these so callers can branch
// with errors.Is on either level.
var (
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrDelivery     = errors.New("delivery failed")
	ErrInternal     = errors.New("internal error")
)

var (
	ErrEmailTaken           = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrAlreadyVerified      = fmt.Errorf("%w: email already verified", ErrConflict)
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid credentials", ErrUnauthorized)
	ErrEmailNotVerified     = fmt.Errorf("%w: email not verified", ErrUnauthorized)
	ErrCodeNotFound         = fmt.Errorf("%w: no active code or it expired", ErrNotFound)
	ErrAccountNotFound      = fmt.Errorf("%w: account not found", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("%w: notification not found", ErrNotFound)
)

// ErrCodeMismatch refines ErrCodeNotFound: a code that does not match the
// active one, including a superseded code, was never found for the submitter.
var ErrCodeMismatch error = &refinedError{msg: "invalid code", parent: ErrCodeNotFound}

type refinedError struct {
	msg    string
	parent error
}

func (e *refinedError) Error() string { return e.msg }
func (e *refinedError) Unwrap() error { return e.parent }

// Invalid builds a validation error for a single message.
func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
