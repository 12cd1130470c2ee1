package model

import (
	"strings"
	"time"
)

// DefaultTokenType is used when a token response omits token_type.
const DefaultTokenType = "Bearer"

// AuthorizationCode is the code/state pair delivered to the redirect URI,
// plus the PKCE verifier when the client used one.
type AuthorizationCode struct {
	Code         string
	State        string
	CodeVerifier string
}

func NewAuthorizationCode(code, state, codeVerifier string) AuthorizationCode {
	return AuthorizationCode{Code: code, State: state, CodeVerifier: codeVerifier}
}

// IsValid reports whether both code and state are non-blank.
// Whitespace-only values count as blank.
func (c AuthorizationCode) IsValid() bool {
	return strings.TrimSpace(c.Code) != "" && strings.TrimSpace(c.State) != ""
}

// HasVerifier reports whether a PKCE code verifier was supplied.
func (c AuthorizationCode) HasVerifier() bool {
	return strings.TrimSpace(c.CodeVerifier) != ""
}

// Token is a provider credential. ExpiresAt always equals IssuedAt plus the
// lifetime the provider reported, or the provider default when it reported none.
type Token struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	TokenType    string    `json:"tokenType"`
	Scope        string    `json:"scope,omitempty"`
	IssuedAt     time.Time `json:"issuedAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// NewToken builds a Token and fills the token type default.
func NewToken(access, refresh, tokenType, scope string, issuedAt time.Time, lifetime time.Duration) *Token {
	if strings.TrimSpace(tokenType) == "" {
		tokenType = DefaultTokenType
	}
	return &Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenType,
		Scope:        scope,
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(lifetime),
	}
}

// ExpiresIn is the token lifetime.
func (t *Token) ExpiresIn() time.Duration {
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// HasRefreshToken reports whether the provider issued a refresh token.
func (t *Token) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// PendingState is an issued state value awaiting its callback. Only used
// when server-side state tracking is enabled.
type PendingState struct {
	State     string    `db:"state"`
	Provider  string    `db:"provider"`
	ExpiresAt time.Time `db:"expires_at"`
}
