// Package app wires the application together: configuration, database,
// model gateway, vector store, background workers, and the HTTP server.
package app

import (
	"github.com/jackc/pgx/v5/pgxpool"

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

// App is the application container. Build with Setup, release with Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool
	Gateway  *gateway.Gateway
	Embedder *gateway.Embedder
	Store    *vector.Store
	Fetcher  *media.Fetcher
	Workers  *work.Pool

	Indexer   *rag.Indexer
	Resolver  *rag.Resolver
	Proofread *proofread.Service
	Server    *api.Server
}

// Close shuts down in dependency order: drain background work first so
// in-flight indexing can still reach the database, then close the pool.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Workers != nil {
		a.Workers.Close()
		a.Logger.Debug("worker pool drained")
	}
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	return nil
}
