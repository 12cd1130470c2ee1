// Command server runs the OAuth2 login service.
//
// All settings come from environment variables; see internal/config. A
// minimal local run against GitHub:
//
//	GITHUB_CLIENT_ID=... GITHUB_CLIENT_SECRET=... JWT_SECRET=$(openssl rand -hex 32) \
//	    go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/config"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
