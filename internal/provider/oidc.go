package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

const (
	GoogleName = "google"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

	OIDCDefaultTokenLifetime = time.Hour
)

var oidcScopes = []string{"openid", "email", "profile"}

// userInfoClaims are the standard OpenID Connect userinfo claims we read.
type userInfoClaims struct {
	Subject           string `json:"sub"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
}

// OIDCGateway talks to any standards-following provider that exposes a
// userinfo endpoint and issues refresh tokens.
type OIDCGateway struct {
	settings    Settings
	config      *oauth2.Config
	userInfoURL string
}

var _ Gateway = (*OIDCGateway)(nil)

// NewOIDCGateway requires explicit endpoints in s.
func NewOIDCGateway(s Settings) (*OIDCGateway, error) {
	if s.Name == "" {
		return nil, fmt.Errorf("provider: oidc provider needs a name")
	}
	if s.AuthorizationEndpoint == "" || s.TokenEndpoint == "" || s.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("provider: %s needs authorization, token and userinfo endpoints", s.Name)
	}
	return newOIDCGateway(s, oauth2.Endpoint{AuthStyle: oauth2.AuthStyleInHeader}), nil
}

// NewGoogleGateway is an OIDCGateway preset with Google's endpoints.
// Offline access is always requested so refresh works.
func NewGoogleGateway(s Settings) *OIDCGateway {
	if s.Name == "" {
		s.Name = GoogleName
	}
	if s.UserInfoEndpoint == "" {
		s.UserInfoEndpoint = googleUserInfoURL
	}
	s.OfflineAccess = true
	return newOIDCGateway(s, google.Endpoint)
}

func newOIDCGateway(s Settings, defaults oauth2.Endpoint) *OIDCGateway {
	return &OIDCGateway{
		settings:    s,
		config:      s.oauthConfig(defaults, oidcScopes),
		userInfoURL: s.UserInfoEndpoint,
	}
}

func (g *OIDCGateway) Name() string { return g.settings.Name }

func (g *OIDCGateway) BuildAuthorizationURL(state, codeChallenge string) string {
	var extra []oauth2.AuthCodeOption
	if g.settings.OfflineAccess {
		extra = append(extra, oauth2.AccessTypeOffline)
	}
	return authCodeURL(g.config, state, codeChallenge, extra...)
}

func (g *OIDCGateway) ExchangeCodeForToken(ctx context.Context, code model.AuthorizationCode) (*model.Token, error) {
	return exchange(ctx, g.settings, g.config, g.Name()+" token exchange", code, OIDCDefaultTokenLifetime)
}

// FetchUserInfo reads the userinfo endpoint. Email is inline, so there is no
// second lookup.
func (g *OIDCGateway) FetchUserInfo(ctx context.Context, accessToken string) (*model.ProviderIdentity, error) {
	op := g.Name() + " user info"

	var claims userInfoClaims
	if err := getJSON(ctx, g.settings, op, g.userInfoURL, accessToken, nil, &claims); err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, apperror.MalformedResponse(op, "sub")
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name = claims.PreferredUsername
	}

	return &model.ProviderIdentity{
		ProviderID:  claims.Subject,
		Provider:    g.Name(),
		DisplayName: name,
		Email:       claims.Email,
	}, nil
}

// RefreshToken runs the refresh_token grant through oauth2.TokenSource.
func (g *OIDCGateway) RefreshToken(ctx context.Context, refreshToken string) (*model.Token, error) {
	op := g.Name() + " token refresh"

	issuedAt := g.settings.now()
	src := g.config.TokenSource(g.settings.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(ctx, op, err)
	}
	return convertToken(tok, issuedAt, g.settings.lifetime(OIDCDefaultTokenLifetime)), nil
}
