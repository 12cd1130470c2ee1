package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("user", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "InvalidRequest wraps ErrInvalidRequest",
			err:       InvalidRequest("code", "code is required"),
			target:    ErrInvalidRequest,
			wantMatch: true,
		},
		{
			name:      "ProviderDenied is an invalid request",
			err:       ProviderDenied("access_denied", "user said no"),
			target:    ErrInvalidRequest,
			wantMatch: true,
		},
		{
			name:      "ProviderDenied matches its own kind",
			err:       ProviderDenied("access_denied", ""),
			target:    ErrProviderDenied,
			wantMatch: true,
		},
		{
			name:      "plain InvalidRequest is not ProviderDenied",
			err:       InvalidRequest("state", "state is required"),
			target:    ErrProviderDenied,
			wantMatch: false,
		},
		{
			name:      "Upstream wraps ErrUpstream",
			err:       Upstream("exchange", 500, nil),
			target:    ErrUpstream,
			wantMatch: true,
		},
		{
			name:      "Upstream keeps its cause",
			err:       Upstream("exchange", 0, context.DeadlineExceeded),
			target:    context.DeadlineExceeded,
			wantMatch: true,
		},
		{
			name:      "MalformedResponse is not Upstream",
			err:       MalformedResponse("exchange", "access_token"),
			target:    ErrUpstream,
			wantMatch: false,
		},
		{
			name:      "NotSupported is not Upstream",
			err:       NotSupported("github", "token refresh"),
			target:    ErrUpstream,
			wantMatch: false,
		},
		{
			name:      "UserNotFound matches ErrUserNotFound",
			err:       UserNotFound("github", "42"),
			target:    ErrUserNotFound,
			wantMatch: true,
		},
		{
			name:      "UserNotFound is a NotFound",
			err:       UserNotFound("github", "42"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotFound is not UserNotFound",
			err:       NotFound("user", "42"),
			target:    ErrUserNotFound,
			wantMatch: false,
		},
		{
			name:      "UnknownID is a conflict",
			err:       UnknownID("user", "x"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "UnknownID is a not found",
			err:       UnknownID("user", "x"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "Canceled matches ErrCanceled",
			err:       Canceled("exchange", context.Canceled),
			target:    ErrCanceled,
			wantMatch: true,
		},
		{
			name:      "Canceled keeps the context cause",
			err:       Canceled("exchange", context.DeadlineExceeded),
			target:    context.DeadlineExceeded,
			wantMatch: true,
		},
		{
			name:      "wrapped AppError still matches",
			err:       fmt.Errorf("service/auth: exchanging code: %w", Upstream("exchange", 401, nil)),
			target:    ErrUpstream,
			wantMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("user", "abc123"),
			wantMessage: "user not found with id abc123",
		},
		{
			name:        "InvalidRequest uses custom message",
			err:         InvalidRequest("code", "code is required"),
			wantMessage: "code is required",
		},
		{
			name:        "ProviderDenied includes description",
			err:         ProviderDenied("access_denied", "The user denied access"),
			wantMessage: "authorization denied by provider: access_denied (The user denied access)",
		},
		{
			name:        "ProviderDenied without description",
			err:         ProviderDenied("access_denied", ""),
			wantMessage: "authorization denied by provider: access_denied",
		},
		{
			name:        "Upstream includes status",
			err:         Upstream("github token exchange", 502, nil),
			wantMessage: "github token exchange: provider returned status 502",
		},
		{
			name:        "MalformedResponse names the field",
			err:         MalformedResponse("github token exchange", "access_token"),
			wantMessage: "github token exchange: provider response missing access_token",
		},
		{
			name:        "Conflict message includes resource and id",
			err:         Conflict("user", "abc123"),
			wantMessage: "user conflict with id abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := NotFound("user", "abc123")
	if unwrapped := err.Unwrap(); unwrapped != ErrNotFound {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, ErrNotFound)
	}
}

func TestUpstreamStatus(t *testing.T) {
	var appErr *AppError
	err := fmt.Errorf("wrapped: %w", Upstream("exchange", 401, nil))
	if !errors.As(err, &appErr) {
		t.Fatal("errors.As() did not find *AppError")
	}
	if appErr.Status != 401 {
		t.Errorf("Status = %d, want 401", appErr.Status)
	}
}

func TestIsContextError(t *testing.T) {
	if !IsContextError(fmt.Errorf("x: %w", context.Canceled)) {
		t.Error("IsContextError(Canceled) = false, want true")
	}
	if !IsContextError(Canceled("op", context.DeadlineExceeded)) {
		t.Error("IsContextError(Canceled(DeadlineExceeded)) = false, want true")
	}
	if IsContextError(errors.New("boom")) {
		t.Error("IsContextError(plain) = true, want false")
	}
}
