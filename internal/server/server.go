// Package server is the composition root: it opens the store, builds the
// provider gateways, wires service and handlers onto a chi router, and runs
// the HTTP server until SIGINT or SIGTERM.
//
// DEPENDENCY FLOW:
//
//	config.Config → store (memory | sqlite | postgres)
//	              → provider.Registry (github, google, oidc)
//	              → service.AuthService → handler.AuthHandler → routes
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/auth"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/config"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/handler"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/middleware"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/provider"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository/memory"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository/postgres"
	sqliteRepo "github.com/ivanlozanoq/PoP-OAuth2/internal/repository/sqlite"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/service"
)

// Server owns the router and the store. The store is closed when Start returns.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger

	store  store
	closer io.Closer
}

// store is what every driver provides. Only memory and sqlite can track
// states; postgres deployments fall back to an in-process state map.
type store struct {
	users  repository.UserRepository
	states repository.StateRepository
	pinger handler.Pinger
}

// New opens the configured store and wires every route.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	st, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  st,
		closer: closer,
	}

	if err := s.setupRoutes(); err != nil {
		_ = closer.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the store without serving.
func (s *Server) Close() error {
	return s.closer.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func openStore(ctx context.Context, cfg *config.Config) (store, io.Closer, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		m := memory.New()
		return store{users: m, states: m}, closerFunc(func() error { return nil }), nil

	case config.DriverPostgres:
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return store{}, nil, fmt.Errorf("opening postgres: %w", err)
		}
		return store{users: pg, states: memory.New(), pinger: pg}, pg, nil

	default:
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return store{}, nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return store{}, nil, fmt.Errorf("opening database: %w", err)
		}
		return store{users: db, states: db, pinger: db}, db, nil
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTES:
//
//	GET    /healthz                   → liveness (pings the store)
//	GET    /auth/providers            → configured provider names
//	GET    /auth/{provider}/login     → 307 to the provider
//	POST   /auth/{provider}/login     → {authorizationUrl, state}
//	GET    /auth/{provider}/callback  → {id, email, name, provider, accessToken, expiresAt}
//	POST   /auth/{provider}/refresh   → same shape as callback
//	POST   /auth/logout               → clears the session cookie
//	GET    /api/me                    → session user (only when JWT_SECRET is set)
//
// Middleware runs in the order added: RequestID must precede Logger so each
// log line carries the ID.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	gateways, err := s.config.Gateways(&http.Client{Timeout: s.config.ProviderTimeout})
	if err != nil {
		return err
	}
	registry, err := provider.NewRegistry(gateways...)
	if err != nil {
		return fmt.Errorf("registering providers: %w", err)
	}
	if len(gateways) == 0 {
		s.logger.Warn("no OAuth providers configured; set GITHUB_CLIENT_ID, GOOGLE_CLIENT_ID or OIDC_CLIENT_ID")
	}

	opts := []service.Option{service.WithCallTimeout(s.config.ProviderTimeout)}
	if s.config.TrackState {
		opts = append(opts, service.WithStateTracker(s.store.states, s.config.StateTTL))
	}
	authService := service.NewAuthService(registry, s.store.users, s.logger, opts...)

	var tokens *auth.TokenService
	if s.config.JWTSecret != "" {
		tokens, err = auth.NewTokenService(s.config.JWTSecret, s.config.SessionTTL)
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
	} else {
		s.logger.Warn("JWT_SECRET not set; sessions and /api/me are disabled")
	}

	authHandler := handler.NewAuthHandler(authService, tokens, s.logger)
	authHandler.SecureCookies = s.config.SecureCookies

	s.router.Get("/healthz", handler.HandleHealth(s.store.pinger))

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/providers", authHandler.HandleProviders)
		if tokens != nil {
			r.With(auth.OptionalAuth(tokens)).Post("/logout", authHandler.HandleLogout)
		} else {
			r.Post("/logout", authHandler.HandleLogout)
		}

		r.Route("/{provider}", func(r chi.Router) {
			r.Get("/login", authHandler.HandleLogin)
			r.Post("/login", authHandler.HandleLogin)
			r.Get("/callback", authHandler.HandleCallback)
			r.Post("/refresh", authHandler.HandleRefresh)
		})
	})

	if tokens != nil {
		s.router.Route("/api", func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens, handler.WriteError))
			r.Get("/me", authHandler.HandleMe)
		})
	}

	s.logger.Info("routes configured",
		slog.Any("providers", registry.Names()),
		slog.String("store", s.config.StoreDriver),
		slog.Bool("stateTracking", authService.StateTracking()),
		slog.Bool("sessions", tokens != nil),
	)
	return nil
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the store.
func (s *Server) Start() error {
	defer s.closer.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Callbacks wait on two provider round trips.
		WriteTimeout: 15*time.Second + 2*s.config.ProviderTimeout,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
