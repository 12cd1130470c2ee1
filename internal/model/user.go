// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a local account linked to exactly one provider identity.
//
// (Provider, ProviderID) is the natural key. ID is our own xid, assigned on
// first login and never changed afterwards, so primary keys do not depend on
// a provider's numbering scheme.
//
// Email may be empty: providers let users hide it.
type User struct {
	ID         string    `json:"id"         db:"id"`
	Email      string    `json:"email"      db:"email"`
	Name       string    `json:"name"       db:"name"`
	Provider   string    `json:"provider"   db:"provider"`
	ProviderID string    `json:"providerId" db:"provider_id"`
	CreatedAt  time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt  time.Time `json:"updatedAt"  db:"updated_at"`
}

// ProviderIdentity is the profile a provider returns for an access token.
type ProviderIdentity struct {
	ProviderID  string `json:"providerId"`
	Provider    string `json:"provider"`
	DisplayName string `json:"name"`
	Email       string `json:"email"`
}

// AuthResult is what a successful login or refresh hands back to the caller:
// the local user view plus the provider access token.
type AuthResult struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Provider    string    `json:"provider"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// NewAuthResult combines a stored user with a freshly issued token.
func NewAuthResult(u *User, tok *Token) *AuthResult {
	return &AuthResult{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Provider:    u.Provider,
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
	}
}

// Initiation is returned when a login starts. The caller redirects the
// browser to AuthorizationURL and keeps State for the callback.
type Initiation struct {
	AuthorizationURL string `json:"authorizationUrl"`
	State            string `json:"state"`
}
