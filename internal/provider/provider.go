// Package provider adapts external OAuth2 identity providers to a single
// Gateway contract built on golang.org/x/oauth2.
//
// A Gateway never touches storage. It turns an authorization code or refresh
// token into a model.Token and an access token into a model.ProviderIdentity,
// classifying every failure into an apperror kind:
//
//	non-2xx from the provider        → apperror.ErrUpstream
//	2xx without a required field     → apperror.ErrMalformedResponse
//	capability the provider lacks    → apperror.ErrNotSupported
//	context canceled or timed out    → apperror.ErrCanceled
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

// Gateway is the capability set every identity provider offers.
type Gateway interface {
	// Name is the provider namespace stored on users, e.g. "github".
	Name() string

	// BuildAuthorizationURL returns the URL the browser is sent to. A
	// non-blank codeChallenge is forwarded unchanged with method S256.
	BuildAuthorizationURL(state, codeChallenge string) string

	ExchangeCodeForToken(ctx context.Context, code model.AuthorizationCode) (*model.Token, error)
	FetchUserInfo(ctx context.Context, accessToken string) (*model.ProviderIdentity, error)
	RefreshToken(ctx context.Context, refreshToken string) (*model.Token, error)
}

// Settings configures one provider instance. Empty endpoints fall back to the
// provider's well-known defaults.
type Settings struct {
	Name         string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	AuthorizationEndpoint string
	TokenEndpoint         string
	UserInfoEndpoint      string
	EmailsEndpoint        string // GitHub only

	// DefaultTokenLifetime applies when a token response omits expires_in.
	DefaultTokenLifetime time.Duration

	// OfflineAccess asks the provider for a refresh token (access_type=offline).
	OfflineAccess bool

	// HTTPClient is used for every provider call. nil means http.DefaultClient.
	HTTPClient *http.Client

	// Now is the clock used to stamp IssuedAt. nil means time.Now.
	Now func() time.Time
}

func (s Settings) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Settings) lifetime(fallback time.Duration) time.Duration {
	if s.DefaultTokenLifetime > 0 {
		return s.DefaultTokenLifetime
	}
	return fallback
}

// oauthConfig merges configured endpoints over the provider defaults.
func (s Settings) oauthConfig(defaults oauth2.Endpoint, defaultScopes []string) *oauth2.Config {
	endpoint := defaults
	if s.AuthorizationEndpoint != "" {
		endpoint.AuthURL = s.AuthorizationEndpoint
	}
	if s.TokenEndpoint != "" {
		endpoint.TokenURL = s.TokenEndpoint
	}

	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	return &oauth2.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		RedirectURL:  s.RedirectURI,
		Scopes:       scopes,
		Endpoint:     endpoint,
	}
}

// clientContext makes x/oauth2 use the configured HTTP client.
func (s Settings) clientContext(ctx context.Context) context.Context {
	if s.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)
}

// authCodeURL builds the authorization URL, adding PKCE parameters when a
// challenge is present.
func authCodeURL(cfg *oauth2.Config, state, codeChallenge string, extra ...oauth2.AuthCodeOption) string {
	opts := append([]oauth2.AuthCodeOption{}, extra...)
	if strings.TrimSpace(codeChallenge) != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)
	}
	return cfg.AuthCodeURL(state, opts...)
}

// exchange trades a code for a token and converts it.
func exchange(ctx context.Context, s Settings, cfg *oauth2.Config, op string, code model.AuthorizationCode, fallback time.Duration) (*model.Token, error) {
	var opts []oauth2.AuthCodeOption
	if code.HasVerifier() {
		opts = append(opts, oauth2.VerifierOption(code.CodeVerifier))
	}

	issuedAt := s.now()
	tok, err := cfg.Exchange(s.clientContext(ctx), code.Code, opts...)
	if err != nil {
		return nil, classifyTokenError(ctx, op, err)
	}
	return convertToken(tok, issuedAt, s.lifetime(fallback)), nil
}

// convertToken maps an oauth2.Token onto model.Token. expires_in wins when the
// provider sent it, otherwise defaultLifetime applies.
func convertToken(tok *oauth2.Token, issuedAt time.Time, defaultLifetime time.Duration) *model.Token {
	lifetime := defaultLifetime
	switch {
	case tok.ExpiresIn > 0:
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		lifetime = tok.Expiry.Sub(issuedAt).Round(time.Second)
	}

	scope, _ := tok.Extra("scope").(string)
	return model.NewToken(tok.AccessToken, tok.RefreshToken, tok.TokenType, scope, issuedAt, lifetime)
}

// classifyTokenError sorts an x/oauth2 token endpoint failure into an
// apperror kind.
func classifyTokenError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperror.Canceled(op, ctxErr)
	}
	if apperror.IsContextError(err) {
		return apperror.Canceled(op, err)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if re.ErrorCode != "" {
			op = op + " (" + re.ErrorCode + ")"
		}
		return apperror.Upstream(op, status, err)
	}

	if strings.Contains(err.Error(), "missing access_token") {
		return apperror.MalformedResponse(op, "access_token")
	}
	return apperror.Upstream(op, 0, err)
}

// maxBodyBytes bounds how much of a provider response is decoded.
const maxBodyBytes = 1 << 20

// getJSON performs an authenticated GET and decodes the JSON body into v.
func getJSON(ctx context.Context, s Settings, op, endpoint, accessToken string, headers map[string]string, v any) error {
	client := oauth2.NewClient(s.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   model.DefaultTokenType,
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("provider: building %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, val := range headers {
		req.Header.Set(k, val)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperror.Canceled(op, ctxErr)
		}
		if apperror.IsContextError(err) {
			return apperror.Canceled(op, err)
		}
		return apperror.Upstream(op, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return apperror.Upstream(op, resp.StatusCode, nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return apperror.Canceled(op, ctxErr)
		}
		return &apperror.AppError{
			Err:     fmt.Errorf("%w: %w", apperror.ErrMalformedResponse, err),
			Message: fmt.Sprintf("%s: provider response is not valid JSON", op),
		}
	}
	return nil
}
