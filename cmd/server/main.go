// Package main is the entry point for the Rakshak server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main"
// package. This one is kept minimal. Its job is to:
// 1. Read configuration (config.Load: defaults, YAML file, .env, env vars)
// 2. Create the logger
// 3. Build the server and start it
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...). cmd/rakshakctl is the second entry point and
// shares the same packages.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/rakshak/internal/config"
	"github.com/sakif/rakshak/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// Load fails on anything the server cannot start with (short JWT
	// secret, unknown store driver, bad port), so there is nothing to
	// validate here.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// slog.NewTextHandler prints human-readable key=value lines. The level
	// comes from LOG_LEVEL (debug | info | warn | error).
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel(),
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`; 0755 = owner rwx, others r-x.
	if cfg.Store.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.Store.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	if !cfg.Auth.GitHub.Enabled() {
		logger.Info("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}
	if cfg.Auth.AllowDemo {
		logger.Warn("demo login is enabled")
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
