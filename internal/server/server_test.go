package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/config"
)

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func baseConfig(driver string) *config.Config {
	return &config.Config{
		Port:            8080,
		StoreDriver:     driver,
		DBPath:          ":memory:",
		JWTSecret:       "server-test-secret-0123456789",
		ProviderTimeout: 0,
		GitHub: config.GitHubConfig{ProviderConfig: config.ProviderConfig{
			ClientID:     "gh-id",
			ClientSecret: "gh-secret",
		}},
	}
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestServerRoutes(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			h := newTestServer(t, baseConfig(driver)).Handler()

			rr := do(t, h, http.MethodGet, "/healthz")
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

			rr = do(t, h, http.MethodGet, "/auth/providers")
			assert.JSONEq(t, `{"providers":["github"]}`, rr.Body.String())

			rr = do(t, h, http.MethodGet, "/auth/github/login")
			assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
			assert.True(t, strings.HasPrefix(rr.Header().Get("Location"), "https://github.com/login/oauth/authorize?"))

			rr = do(t, h, http.MethodPost, "/auth/gitlab/login")
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			rr = do(t, h, http.MethodGet, "/auth/github/callback?state=s1")
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			rr = do(t, h, http.MethodGet, "/api/me")
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.JSONEq(t, `{"error":"unauthorized","message":"valid authentication required"}`, rr.Body.String())

			rr = do(t, h, http.MethodPost, "/auth/logout")
			assert.Equal(t, http.StatusOK, rr.Code)
		})
	}
}

func TestServer_NoSessionsWithoutSecret(t *testing.T) {
	cfg := baseConfig(config.DriverMemory)
	cfg.JWTSecret = ""
	h := newTestServer(t, cfg).Handler()

	rr := do(t, h, http.MethodGet, "/api/me")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_StateTracking(t *testing.T) {
	cfg := baseConfig(config.DriverSQLite)
	cfg.TrackState = true
	h := newTestServer(t, cfg).Handler()

	// A state this server never issued is rejected before any provider call.
	rr := do(t, h, http.MethodGet, "/auth/github/callback?code=abc&state=forged")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid_request")
}
