// Package apperror defines the error kinds shared by every layer.
//
// Services and stores return *AppError values that wrap one of the sentinels
// below. Callers match on kind with errors.Is and read the human-readable
// message with errors.As. Only handler/response.go translates kinds to HTTP.
package apperror

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("invalid request")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// ErrInvalidRequest is the kind for malformed caller input. It is the same
	// sentinel as ErrValidation so older call sites keep matching.
	ErrInvalidRequest = ErrValidation

	// ErrProviderDenied is returned when the provider redirected back with an
	// error parameter. It also matches ErrInvalidRequest.
	ErrProviderDenied = fmt.Errorf("%w: provider denied authorization", ErrInvalidRequest)

	ErrUpstream          = errors.New("upstream provider error")
	ErrMalformedResponse = errors.New("malformed provider response")
	ErrNotSupported      = errors.New("not supported")
	ErrCanceled          = errors.New("canceled")

	// ErrUserNotFound also matches ErrNotFound.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
)

type AppError struct {
	Err     error  // kind sentinel, possibly joined with a cause
	Message string // human-readable error message
	Field   string // optional: field causing the error

	// Status is the upstream HTTP status for ErrUpstream, zero otherwise.
	Status int
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidRequest reports structurally invalid input on the given field.
func InvalidRequest(field, message string) *AppError {
	return ValidationFailed(field, message)
}

// ProviderDenied carries the error code and description the provider sent
// back to the redirect URI.
func ProviderDenied(code, description string) *AppError {
	msg := fmt.Sprintf("authorization denied by provider: %s", code)
	if description != "" {
		msg = fmt.Sprintf("%s (%s)", msg, description)
	}
	return &AppError{
		Err:     ErrProviderDenied,
		Message: msg,
		Field:   "error",
	}
}

// Upstream reports a non-success answer from a provider endpoint. status is
// zero when the request never produced a response.
func Upstream(op string, status int, cause error) *AppError {
	msg := fmt.Sprintf("%s: provider request failed", op)
	if status != 0 {
		msg = fmt.Sprintf("%s: provider returned status %d", op, status)
	}
	err := ErrUpstream
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUpstream, cause)
	}
	return &AppError{
		Err:     err,
		Message: msg,
		Status:  status,
	}
}

// MalformedResponse reports a success response that lacks a required field.
func MalformedResponse(op, field string) *AppError {
	return &AppError{
		Err:     ErrMalformedResponse,
		Message: fmt.Sprintf("%s: provider response missing %s", op, field),
		Field:   field,
	}
}

func NotSupported(provider, capability string) *AppError {
	return &AppError{
		Err:     ErrNotSupported,
		Message: fmt.Sprintf("provider %s does not support %s", provider, capability),
	}
}

// UserNotFound is returned when no local user exists for a provider identity.
func UserNotFound(provider, providerID string) *AppError {
	return &AppError{
		Err:     ErrUserNotFound,
		Message: fmt.Sprintf("no user for %s identity %s", provider, providerID),
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// UnknownID is the storage conflict raised when updating a record that does
// not exist. It matches both ErrConflict and ErrNotFound.
func UnknownID(resource, id string) *AppError {
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrConflict, ErrNotFound),
		Message: fmt.Sprintf("%s with id %s does not exist", resource, id),
	}
}

// Canceled wraps a context error so callers can match either ErrCanceled or
// the original context.Canceled / context.DeadlineExceeded.
func Canceled(op string, cause error) *AppError {
	if cause == nil {
		cause = context.Canceled
	}
	return &AppError{
		Err:     fmt.Errorf("%w: %w", ErrCanceled, cause),
		Message: fmt.Sprintf("%s: %v", op, cause),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 401 Unauthorized.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// IsContextError reports whether err stems from a canceled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
