package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
)

// SessionCookie is the cookie that carries the session JWT.
const SessionCookie = "session"

// contextKey is unexported so no other package can read or shadow our values.
type contextKey string

const userIDKey contextKey = "userID"

// ErrorWriter renders an error response. The HTTP layer passes its shared
// writer so rejected sessions get the same body as every other error.
type ErrorWriter func(w http.ResponseWriter, err error)

// RequireAuth rejects requests without a valid session with an
// apperror.Forbidden written by deny, and stores the user ID in the request
// context otherwise. A nil deny falls back to a plain 401.
func RequireAuth(tokens *TokenService, deny ErrorWriter) func(http.Handler) http.Handler {
	if deny == nil {
		deny = func(w http.ResponseWriter, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil || userID == "" {
				deny(w, apperror.Forbidden("valid authentication required"))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user ID when a valid session is present and lets
// anonymous requests through untouched.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// extractUserID reads the session from the cookie, falling back to an
// Authorization: Bearer header for non-browser clients.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return tokens.Validate(strings.TrimSpace(token))
	}
	return "", errors.New("auth: no session token")
}
