package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrRateLimited is returned when an identity exceeded its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned for unknown sessions, users or questions.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by stores on unique key conflicts.
	ErrAlreadyExists = errors.New("already exists")
	// ErrExpired is returned for sessions that outlived their TTL.
	ErrExpired = errors.New("expired")
	// ErrUnauthorized covers bad credentials and unverifiable provider signatures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRejected is returned when the provider reports the payment did not complete.
	ErrRejected = errors.New("payment rejected")
	// ErrInternal wraps unexpected failures surfaced to callers with a generic message.
	ErrInternal = errors.New("internal error")
)

// ValidationError describes why one input field was refused.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid is shorthand for building a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
