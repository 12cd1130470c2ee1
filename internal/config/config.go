// Package config loads server settings from environment variables.
//
// Variables are parsed with caarlos0/env and checked with go-playground's
// validator. A provider is enabled by setting its CLIENT_ID; everything else
// about it has a sensible default except for the generic OIDC provider, which
// needs its three endpoints.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/provider"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full server configuration.
type Config struct {
	Port     int    `env:"PORT"      envDefault:"8080" validate:"min=1,max=65535"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"sqlite" validate:"oneof=memory sqlite postgres"`
	DBPath      string `env:"DB_PATH"      envDefault:"data/oauth.db"`
	PostgresDSN string `env:"POSTGRES_DSN" validate:"required_if=StoreDriver postgres"`

	// JWTSecret signs session cookies. Empty disables sessions and /api/me.
	JWTSecret     string        `env:"JWT_SECRET"     validate:"omitempty,min=16"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"15m"`
	SecureCookies bool          `env:"SECURE_COOKIES"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`

	// TrackState makes the server remember issued states and reject
	// callbacks carrying anything else.
	TrackState bool          `env:"OAUTH_TRACK_STATE"`
	StateTTL   time.Duration `env:"OAUTH_STATE_TTL"   envDefault:"10m"`

	GitHub GitHubConfig   `envPrefix:"GITHUB_"`
	Google ProviderConfig `envPrefix:"GOOGLE_"`
	OIDC   OIDCConfig     `envPrefix:"OIDC_"`
}

// ProviderConfig is one provider's client registration. Empty endpoints fall
// back to the provider's published defaults.
type ProviderConfig struct {
	ClientID              string        `env:"CLIENT_ID"`
	ClientSecret          string        `env:"CLIENT_SECRET"          validate:"required_with=ClientID"`
	AuthorizationEndpoint string        `env:"AUTHORIZATION_ENDPOINT" validate:"omitempty,url"`
	TokenEndpoint         string        `env:"TOKEN_ENDPOINT"         validate:"omitempty,url"`
	UserInfoEndpoint      string        `env:"USERINFO_ENDPOINT"      validate:"omitempty,url"`
	RedirectURI           string        `env:"REDIRECT_URI"           validate:"omitempty,url"`
	Scopes                []string      `env:"SCOPES"                 envSeparator:","`
	TokenLifetime         time.Duration `env:"TOKEN_LIFETIME"`
}

// Enabled reports whether the provider was configured.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

type GitHubConfig struct {
	ProviderConfig
	EmailsEndpoint string `env:"EMAILS_ENDPOINT" validate:"omitempty,url"`
}

// OIDCConfig registers one generic OpenID Connect provider under Name.
type OIDCConfig struct {
	Name string `env:"NAME" envDefault:"oidc" validate:"required,lowercase,excludesall=/"`
	ProviderConfig
}

// Load reads the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: validating: %w", err)
	}

	if c.OIDC.Enabled() {
		if c.OIDC.AuthorizationEndpoint == "" || c.OIDC.TokenEndpoint == "" || c.OIDC.UserInfoEndpoint == "" {
			return errors.New("config: OIDC provider needs OIDC_AUTHORIZATION_ENDPOINT, OIDC_TOKEN_ENDPOINT and OIDC_USERINFO_ENDPOINT")
		}
		if c.OIDC.Name == provider.GitHubName || c.OIDC.Name == provider.GoogleName {
			return fmt.Errorf("config: OIDC_NAME %q collides with a built-in provider", c.OIDC.Name)
		}
	}
	return nil
}

// SlogLevel converts LogLevel for slog.HandlerOptions.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Gateways builds a gateway for every enabled provider. All gateways share
// client, which may be nil.
func (c *Config) Gateways(client *http.Client) ([]provider.Gateway, error) {
	var gateways []provider.Gateway

	if c.GitHub.Enabled() {
		s := c.settings(provider.GitHubName, c.GitHub.ProviderConfig, client)
		s.EmailsEndpoint = c.GitHub.EmailsEndpoint
		gateways = append(gateways, provider.NewGitHubGateway(s))
	}

	if c.Google.Enabled() {
		gateways = append(gateways, provider.NewGoogleGateway(c.settings(provider.GoogleName, c.Google, client)))
	}

	if c.OIDC.Enabled() {
		gw, err := provider.NewOIDCGateway(c.settings(c.OIDC.Name, c.OIDC.ProviderConfig, client))
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		gateways = append(gateways, gw)
	}

	return gateways, nil
}

func (c *Config) settings(name string, p ProviderConfig, client *http.Client) provider.Settings {
	redirect := p.RedirectURI
	if redirect == "" {
		redirect = fmt.Sprintf("http://localhost:%d/auth/%s/callback", c.Port, name)
	}
	return provider.Settings{
		Name:                  name,
		ClientID:              p.ClientID,
		ClientSecret:          p.ClientSecret,
		RedirectURI:           redirect,
		Scopes:                p.Scopes,
		AuthorizationEndpoint: p.AuthorizationEndpoint,
		TokenEndpoint:         p.TokenEndpoint,
		UserInfoEndpoint:      p.UserInfoEndpoint,
		DefaultTokenLifetime:  p.TokenLifetime,
		HTTPClient:            client,
	}
}
