// Package app provides application initialization and dependency
// injection. Setup wires the full engine: database pool and migrations,
// Genkit embedder, vector store, NLP sidecar client, chunker, document
// store, the memory layers, and the maintenance scheduler.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jellycore/oracle/internal/chunker"
	"github.com/jellycore/oracle/internal/config"
	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/memory"
	"github.com/jellycore/oracle/internal/nlp"
	"github.com/jellycore/oracle/internal/store"
	"github.com/jellycore/oracle/internal/vector"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	NLP     *nlp.Client
	Chunker *chunker.Chunker
	Vectors *vector.PGVector

	Documents  *store.Documents
	UserModels *memory.UserModels
	Procedures *memory.Procedures
	Episodes   *memory.Episodes
	Scheduler  *memory.Scheduler

	cancel context.CancelFunc
}

// Close gracefully shuts down all resources.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.cancel != nil {
		a.cancel()
	}
	if a.DBPool != nil {
		a.DBPool.Close()
	}
	return nil
}
