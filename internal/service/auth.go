// Package service holds the authentication business logic.
//
// AuthService sits between the HTTP handlers and the provider gateways and
// user store:
//
//	AuthHandler (HTTP) → AuthService → provider.Gateway (network)
//	                                 ↘ repository.UserRepository (storage)
//
// One login is two round trips. Initiate hands out a state value and the
// provider's authorization URL. HandleCallback receives the code and state
// back, exchanges the code, derives the identity from the new access token,
// and reconciles it with the local user keyed on (provider, providerID).
// Nothing is kept between calls unless a state tracker is configured.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/auth"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/provider"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
)

// DefaultStateTTL applies to WithStateTracker when ttl is zero.
const DefaultStateTTL = 10 * time.Minute

// AuthService orchestrates login and refresh. It has no mutable state and is
// safe for concurrent use.
type AuthService struct {
	gateways *provider.Registry
	users    repository.UserRepository
	logger   *slog.Logger

	now         func() time.Time
	callTimeout time.Duration

	states   repository.StateRepository
	stateTTL time.Duration
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithStateTracker makes Initiate record each issued state and HandleCallback
// consume it, so a callback only succeeds for a state this service issued for
// the same provider. Without it the state is treated as an opaque value.
func WithStateTracker(states repository.StateRepository, ttl time.Duration) Option {
	return func(s *AuthService) {
		if ttl <= 0 {
			ttl = DefaultStateTTL
		}
		s.states = states
		s.stateTTL = ttl
	}
}

// WithCallTimeout bounds every gateway network call. Zero leaves only the
// caller's context in charge.
func WithCallTimeout(d time.Duration) Option {
	return func(s *AuthService) { s.callTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(gateways *provider.Registry, users repository.UserRepository, logger *slog.Logger, opts ...Option) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthService{
		gateways: gateways,
		users:    users,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StateTracking reports whether issued states are verified on callback.
func (s *AuthService) StateTracking() bool {
	return s.states != nil
}

// Providers lists the configured provider names.
func (s *AuthService) Providers() []string {
	return s.gateways.Names()
}

// Initiate starts a login with the named provider. A non-blank codeChallenge
// is forwarded to the provider unmodified.
func (s *AuthService) Initiate(ctx context.Context, providerName, codeChallenge string) (*model.Initiation, error) {
	gw, err := s.gateways.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	state, err := auth.NewState()
	if err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	if s.states != nil {
		pending := model.PendingState{
			State:     state,
			Provider:  gw.Name(),
			ExpiresAt: s.now().Add(s.stateTTL),
		}
		if err := s.states.Save(ctx, pending); err != nil {
			return nil, fmt.Errorf("service/auth: saving state: %w", err)
		}
	}

	s.logger.Info("authentication initiated",
		slog.String("provider", gw.Name()),
		slog.Bool("pkce", codeChallenge != ""),
	)

	return &model.Initiation{
		AuthorizationURL: gw.BuildAuthorizationURL(state, codeChallenge),
		State:            state,
	}, nil
}

// CallbackRequest is what the provider sent back to the redirect URI.
type CallbackRequest struct {
	Code             string
	State            string
	CodeVerifier     string
	Error            string
	ErrorDescription string
}

// HandleCallback completes a login: it exchanges the code, fetches the
// identity and creates or updates the local user.
//
// A provider-reported error and a blank code or state are rejected before any
// provider call. Gateway failures keep their kind.
func (s *AuthService) HandleCallback(ctx context.Context, providerName string, req CallbackRequest) (*model.AuthResult, error) {
	if strings.TrimSpace(req.Error) != "" {
		s.logger.Warn("provider denied authorization",
			slog.String("provider", providerName),
			slog.String("error", req.Error),
		)
		return nil, apperror.ProviderDenied(req.Error, req.ErrorDescription)
	}

	code := model.NewAuthorizationCode(req.Code, req.State, req.CodeVerifier)
	if !code.IsValid() {
		return nil, apperror.InvalidRequest("code", "code and state are required")
	}

	gw, err := s.gateways.Lookup(providerName)
	if err != nil {
		return nil, err
	}

	if s.states != nil {
		if err := s.states.Consume(ctx, code.State, gw.Name()); err != nil {
			s.logger.Warn("callback state rejected", slog.String("provider", gw.Name()))
			return nil, err
		}
	}

	token, err := s.exchange(ctx, gw, code)
	if err != nil {
		s.logFailure("code exchange failed", gw.Name(), err)
		return nil, err
	}

	identity, err := s.fetchIdentity(ctx, gw, token.AccessToken)
	if err != nil {
		s.logFailure("user info lookup failed", gw.Name(), err)
		return nil, err
	}

	user, created, err := s.reconcile(ctx, gw.Name(), identity)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated",
		slog.String("provider", gw.Name()),
		slog.String("userID", user.ID),
		slog.Bool("created", created),
		slog.Bool("refreshable", token.HasRefreshToken()),
		slog.Duration("expiresIn", token.ExpiresIn()),
	)

	return model.NewAuthResult(user, token), nil
}

// RefreshToken trades a refresh token for a new access token and returns the
// existing user it belongs to. It never creates a user.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken, providerName string) (*model.AuthResult, error) {
	gw, err := s.gateways.Lookup(providerName)
	if err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, apperror.InvalidRequest("refreshToken", "refresh token is required")
	}

	token, err := s.refresh(ctx, gw, refreshToken)
	if err != nil {
		s.logFailure("token refresh failed", gw.Name(), err)
		return nil, err
	}

	identity, err := s.fetchIdentity(ctx, gw, token.AccessToken)
	if err != nil {
		s.logFailure("user info lookup failed", gw.Name(), err)
		return nil, err
	}

	user, err := s.users.FindByProviderIdentity(ctx, identity.ProviderID, gw.Name())
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.UserNotFound(gw.Name(), identity.ProviderID)
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	s.logger.Info("token refreshed",
		slog.String("provider", gw.Name()),
		slog.String("userID", user.ID),
		slog.Bool("rotated", token.HasRefreshToken()),
		slog.Duration("expiresIn", token.ExpiresIn()),
	)

	return model.NewAuthResult(user, token), nil
}

// GetUser returns the user with the given internal ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.InvalidRequest("id", "user ID must not be empty")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// reconcile keys exclusively on (provider, providerID). Email is never used
// to match because providers let users change it.
func (s *AuthService) reconcile(ctx context.Context, providerName string, identity *model.ProviderIdentity) (*model.User, bool, error) {
	existing, err := s.users.FindByProviderIdentity(ctx, identity.ProviderID, providerName)
	switch {
	case err == nil:
		existing.Name = identity.DisplayName
		existing.Email = identity.Email
		existing.UpdatedAt = s.now()
		if err := s.users.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("service/auth: updating user %s: %w", existing.ID, err)
		}
		return existing, false, nil

	case errors.Is(err, apperror.ErrNotFound):
		now := s.now()
		user := &model.User{
			ID:         xid.New().String(),
			Email:      identity.Email,
			Name:       identity.DisplayName,
			Provider:   providerName,
			ProviderID: identity.ProviderID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, false, fmt.Errorf("service/auth: creating user: %w", err)
		}
		return user, true, nil

	default:
		return nil, false, fmt.Errorf("service/auth: looking up user: %w", err)
	}
}

func (s *AuthService) exchange(ctx context.Context, gw provider.Gateway, code model.AuthorizationCode) (*model.Token, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	tok, err := gw.ExchangeCodeForToken(ctx, code)
	if err != nil {
		return nil, gatewayError("exchange code", err)
	}
	return tok, nil
}

func (s *AuthService) refresh(ctx context.Context, gw provider.Gateway, refreshToken string) (*model.Token, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	tok, err := gw.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, gatewayError("refresh token", err)
	}
	return tok, nil
}

func (s *AuthService) fetchIdentity(ctx context.Context, gw provider.Gateway, accessToken string) (*model.ProviderIdentity, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	identity, err := gw.FetchUserInfo(ctx, accessToken)
	if err != nil {
		return nil, gatewayError("fetch user info", err)
	}
	if identity.ProviderID == "" {
		return nil, apperror.MalformedResponse("fetch user info", "id")
	}
	return identity, nil
}

func (s *AuthService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

// gatewayError passes classified errors through unchanged and turns a bare
// context error into ErrCanceled.
func gatewayError(op string, err error) error {
	if !errors.Is(err, apperror.ErrCanceled) && apperror.IsContextError(err) {
		return apperror.Canceled(op, err)
	}
	return err
}

func (s *AuthService) logFailure(msg, providerName string, err error) {
	s.logger.Warn(msg,
		slog.String("provider", providerName),
		slog.String("error", err.Error()),
	)
}
