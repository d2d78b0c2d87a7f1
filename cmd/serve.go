package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wayfare-app/wayfare/db"
	"github.com/wayfare-app/wayfare/internal/app"
	"github.com/wayfare-app/wayfare/internal/config"
	"github.com/wayfare-app/wayfare/internal/log"
)

// configFileEnv points at an optional YAML config file. All keys can
// also be set directly via WAYFARE_* environment variables.
const configFileEnv = "WAYFARE_CONFIG"

func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load(os.Getenv(configFileEnv))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	return cfg, logger, nil
}

// runServe initializes the application and starts the HTTP API server.
func runServe() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	addr := cfg.HTTPAddr
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting wayfare AI service", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	logger.Info("HTTP server ready",
		"addr", addr,
		"api", "/api/v1/*",
		"health", "/healthz, /readyz",
	)
	return a.Server.Run(ctx, addr)
}

// runMigrate applies pending database migrations and exits.
func runMigrate() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.PostgresHost == "" || cfg.PostgresDBName == "" {
		return fmt.Errorf("postgres host and dbname are required")
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
