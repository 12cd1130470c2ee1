package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/auth"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/service"
)

// Authenticator is the slice of service.AuthService the HTTP layer needs.
type Authenticator interface {
	Initiate(ctx context.Context, providerName, codeChallenge string) (*model.Initiation, error)
	HandleCallback(ctx context.Context, providerName string, req service.CallbackRequest) (*model.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken, providerName string) (*model.AuthResult, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	Providers() []string
}

var _ Authenticator = (*service.AuthService)(nil)

// AuthHandler maps the login, callback and refresh operations onto HTTP.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLogin       → start a login, as JSON (POST) or a redirect (GET)
//   - HandleCallback    → finish a login and, when sessions are on, set the session cookie
//   - HandleRefresh     → trade a provider refresh token for a new access token
//   - HandleLogout      → clear the session cookie
//   - HandleMe          → return the user behind the session
//   - HandleProviders   → list configured providers
//
// The handler owns HTTP concerns only: parameters, cookies, status codes.
// Every rule about codes, states and users lives in the service.
type AuthHandler struct {
	auth   Authenticator
	tokens *auth.TokenService // nil disables session cookies
	logger *slog.Logger

	// SecureCookies marks the session cookie Secure. Turn on behind HTTPS.
	SecureCookies bool
}

// NewAuthHandler creates an AuthHandler. tokens may be nil, in which case
// callbacks return the result without issuing a session.
func NewAuthHandler(svc Authenticator, tokens *auth.TokenService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   svc,
		tokens: tokens,
		logger: logger,
	}
}

type loginRequest struct {
	CodeChallenge string `json:"codeChallenge"`
}

// HandleLogin starts a login.
//
// HTTP: POST /auth/{provider}/login  body {"codeChallenge": "..."} (optional)
//
//	→ 200 {"authorizationUrl": "...", "state": "..."}
//
// HTTP: GET /auth/{provider}/login?code_challenge=...
//
//	→ 307 redirect to the provider
//
// The GET form is for browsers that follow a plain link. The JSON form is for
// SPAs and native apps that keep the state and PKCE verifier themselves.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	var req loginRequest
	if r.Method == http.MethodGet {
		req.CodeChallenge = r.URL.Query().Get("code_challenge")
	} else if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	init, err := h.auth.Initiate(r.Context(), providerName, req.CodeChallenge)
	if err != nil {
		WriteError(w, err)
		return
	}

	if r.Method == http.MethodGet {
		http.Redirect(w, r, init.AuthorizationURL, http.StatusTemporaryRedirect)
		return
	}
	writeJSON(w, http.StatusOK, init)
}

// HandleCallback completes a login.
//
// HTTP: GET /auth/{provider}/callback?code=...&state=...[&code_verifier=...]
//
//	or  ?error=access_denied&error_description=...
//	→ 200 {"id","email","name","provider","accessToken","expiresAt"}
//
// The provider's own error parameters are handed to the service untouched;
// it decides that a denial never reaches the token endpoint.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")
	q := r.URL.Query()

	res, err := h.auth.HandleCallback(r.Context(), providerName, service.CallbackRequest{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		CodeVerifier:     q.Get("code_verifier"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	if h.tokens != nil {
		session, err := h.tokens.Generate(res.ID, res.Provider)
		if err != nil {
			h.logger.Error("callback: session token generation failed",
				slog.String("userID", res.ID),
				slog.String("error", err.Error()),
			)
			WriteError(w, err)
			return
		}
		h.setSessionCookie(w, session, h.tokens.TTL())
	}

	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// HandleRefresh exchanges a provider refresh token.
//
// HTTP: POST /auth/{provider}/refresh  body {"refreshToken": "..."}
//
//	→ 200 same shape as the callback
//	→ 400 not_supported for providers without refresh (GitHub)
//	→ 404 user_not_found when the identity never logged in here
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.auth.RefreshToken(r.Context(), req.RefreshToken, providerName)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout  (OptionalAuth)
//
// Sessions are stateless JWTs, so the token stays valid until it expires;
// without the cookie the browser simply stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		h.logger.Info("session ended", slog.String("userID", userID))
	}
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the user behind the current session.
//
// HTTP: GET /api/me  (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		WriteError(w, apperror.Forbidden("valid authentication required"))
		return
	}

	user, err := h.auth.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Warn("me: user lookup failed", slog.String("userID", userID))
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleProviders lists the configured provider names.
//
// HTTP: GET /auth/providers → 200 {"providers": ["github", "google"]}
func (h *AuthHandler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.auth.Providers()})
}

// setSessionCookie writes the session cookie. A negative ttl deletes it.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, ttl time.Duration) {
	maxAge := -1
	if ttl > 0 {
		maxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
