package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON or WriteError so all endpoints share
// one body shape. Errors always look like:
//
//	{"error": "upstream_error", "message": "github token exchange: provider returned status 401"}
//
// WriteError is the only place in the codebase that turns an apperror kind
// into an HTTP status.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Error   string `json:"error"`   // machine-readable kind, e.g. "provider_denied"
	Message string `json:"message"` // human-readable description
}

// maxBodyBytes caps JSON request bodies. Login and refresh bodies are tiny.
const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorKind maps an error to its HTTP status and machine-readable kind.
//
// Order matters: ErrProviderDenied also matches ErrInvalidRequest, and
// ErrUserNotFound also matches ErrNotFound, so the narrower kinds come first.
// An unknown-id update matches both ErrConflict and ErrNotFound and is
// reported as a conflict.
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrCanceled):
		return http.StatusGatewayTimeout, "canceled"
	case errors.Is(err, apperror.ErrProviderDenied):
		return http.StatusBadRequest, "provider_denied"
	case errors.Is(err, apperror.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, apperror.ErrNotSupported):
		return http.StatusBadRequest, "not_supported"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, apperror.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteError maps a domain error to a status code and writes the error body.
// It doubles as the auth.ErrorWriter for RequireAuth.
//
// Only *apperror.AppError messages reach the client. Anything else becomes a
// generic 500 so driver errors, file paths or SQL never leak.
func WriteError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, kind := errorKind(err)
	msg := appErr.Message
	if status == http.StatusInternalServerError {
		msg = "An internal error occurred"
	}
	writeJSON(w, status, ErrorResponse{Error: kind, Message: msg})
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperror.InvalidRequest("body", "request body must be valid JSON")
	}
	return nil
}
