// Package apperrors defines the error taxonomy shared by every store and the
// mutation pipeline. Callers branch on kind with errors.Is; only
// infrastructure errors are eligible for automatic retry.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind sentinels. Wrapped errors report their kind through errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("forbidden")
	ErrValidation     = errors.New("validation failed")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Error carries a kind sentinel plus a human-readable message and, for
// validation failures, the offending field.
type Error struct {
	kind    error
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.kind.Error(), e.Field, e.Message)
	}
	if e.Message == "" {
		return e.kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.kind.Error(), e.Message)
}

func (e *Error) Is(target error) bool { return target == e.kind }

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the sentinel this error wraps.
func (e *Error) Kind() error { return e.kind }

func Authentication(msg string) error {
	return &Error{kind: ErrAuthentication, Message: msg}
}

func Authorization(msg string) error {
	return &Error{kind: ErrAuthorization, Message: msg}
}

func Validation(field, msg string) error {
	return &Error{kind: ErrValidation, Field: field, Message: msg}
}

func QuotaExceeded(msg string) error {
	return &Error{kind: ErrQuotaExceeded, Message: msg}
}

func Conflict(msg string) error {
	return &Error{kind: ErrConflict, Message: msg}
}

func NotFound(msg string) error {
	return &Error{kind: ErrNotFound, Message: msg}
}

// Infrastructure wraps a storage or transport failure. The cause stays
// reachable through errors.Unwrap for operator logs.
func Infrastructure(err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: ErrInfrastructure, Message: err.Error(), cause: err}
}

// Retryable reports whether the caller may automatically retry. Domain errors
// never qualify; retrying them cannot change the outcome.
func Retryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

// PublicMessage renders an error for callers outside the trust boundary.
// Authorization denials are deliberately indistinguishable from missing
// records so actors cannot probe for other tenants' data.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorization), errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrInfrastructure):
		return "service unavailable"
	default:
		var e *Error
		if errors.As(err, &e) {
			return e.Error()
		}
		return err.Error()
	}
}
