package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfare-app/wayfare/db"
	"github.com/wayfare-app/wayfare/internal/api"
	"github.com/wayfare-app/wayfare/internal/config"
	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
	"github.com/wayfare-app/wayfare/internal/media"
	"github.com/wayfare-app/wayfare/internal/proofread"
	"github.com/wayfare-app/wayfare/internal/rag"
	"github.com/wayfare-app/wayfare/internal/vector"
	"github.com/wayfare-app/wayfare/internal/work"
)

const dbConnectTimeout = 10 * time.Second

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := providePool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	gw, err := gateway.New(ctx, gateway.Config{
		APIKey: cfg.ModelAPIKey,
		Model:  cfg.ModelName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing model gateway: %w", err)
	}
	a.Gateway = gw

	embedder, err := gateway.NewEmbedder(ctx, gateway.EmbedderConfig{
		APIKey: cfg.EmbeddingAPIKey,
		Model:  cfg.EmbedderModel,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	a.Embedder = embedder

	store, err := vector.New(pool, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}
	a.Store = store

	a.Fetcher = media.NewFetcher(media.Config{Timeout: cfg.MediaFetchTimeout}, logger)
	a.Workers = work.NewPool(ctx, cfg.Workers, logger)

	indexer, err := rag.NewIndexer(gw, store, a.Fetcher, a.Workers, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing indexer: %w", err)
	}
	a.Indexer = indexer

	resolver, err := rag.NewResolver(gw, store, a.Fetcher, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing resolver: %w", err)
	}
	a.Resolver = resolver

	svc, err := proofread.NewService(gw, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing proofread service: %w", err)
	}
	a.Proofread = svc

	server, err := api.NewServer(api.ServerConfig{
		Logger:     logger,
		Proofread:  svc,
		Resolver:   resolver,
		Pool:       pool,
		TrustProxy: cfg.TrustProxy,
		RateBurst:  cfg.RateBurst,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	connURL := cfg.PostgresURL()

	if err := db.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, connURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
