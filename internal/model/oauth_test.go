package model

import (
	"testing"
	"time"
)

func TestAuthorizationCodeIsValid(t *testing.T) {
	tests := []struct {
		name  string
		code  AuthorizationCode
		valid bool
	}{
		{"code and state", NewAuthorizationCode("abc", "xyz", ""), true},
		{"with verifier", NewAuthorizationCode("abc", "xyz", "verifier"), true},
		{"empty code", NewAuthorizationCode("", "xyz", ""), false},
		{"empty state", NewAuthorizationCode("abc", "", ""), false},
		{"whitespace code", NewAuthorizationCode("  \t", "xyz", ""), false},
		{"whitespace state", NewAuthorizationCode("abc", "\n ", ""), false},
		{"both empty", NewAuthorizationCode("", "", "v"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestAuthorizationCodeHasVerifier(t *testing.T) {
	if NewAuthorizationCode("a", "b", "").HasVerifier() {
		t.Error("HasVerifier() = true for empty verifier")
	}
	if NewAuthorizationCode("a", "b", "   ").HasVerifier() {
		t.Error("HasVerifier() = true for whitespace verifier")
	}
	if !NewAuthorizationCode("a", "b", "v").HasVerifier() {
		t.Error("HasVerifier() = false for set verifier")
	}
}

func TestNewToken(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tok := NewToken("tok1", "", "", "", issued, 8*time.Hour)

	if tok.TokenType != DefaultTokenType {
		t.Errorf("TokenType = %q, want %q", tok.TokenType, DefaultTokenType)
	}
	if want := issued.Add(8 * time.Hour); !tok.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", tok.ExpiresAt, want)
	}
	if tok.ExpiresIn() != 8*time.Hour {
		t.Errorf("ExpiresIn() = %v, want 8h", tok.ExpiresIn())
	}
	if tok.HasRefreshToken() {
		t.Error("HasRefreshToken() = true, want false")
	}
}

func TestNewToken_KeepsProviderValues(t *testing.T) {
	issued := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := NewToken("tok1", "r1", "bearer", "read:user", issued, time.Hour)

	if tok.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want provider value kept", tok.TokenType)
	}
	if !tok.HasRefreshToken() {
		t.Error("HasRefreshToken() = false, want true")
	}
	if tok.ExpiresIn() != time.Hour {
		t.Errorf("ExpiresIn() = %v, want 1h", tok.ExpiresIn())
	}
}

func TestNewAuthResult(t *testing.T) {
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	u := &User{ID: "u1", Email: "a@b.c", Name: "Ada", Provider: "github", ProviderID: "42"}
	tok := &Token{AccessToken: "tok1", ExpiresAt: exp}

	got := NewAuthResult(u, tok)

	if got.ID != "u1" || got.Email != "a@b.c" || got.Name != "Ada" || got.Provider != "github" {
		t.Errorf("NewAuthResult() user fields = %+v", got)
	}
	if got.AccessToken != "tok1" || !got.ExpiresAt.Equal(exp) {
		t.Errorf("NewAuthResult() token fields = %+v", got)
	}
}
