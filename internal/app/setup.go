package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jellycore/oracle/db"
	"github.com/jellycore/oracle/internal/chunker"
	"github.com/jellycore/oracle/internal/config"
	"github.com/jellycore/oracle/internal/log"
	"github.com/jellycore/oracle/internal/memory"
	"github.com/jellycore/oracle/internal/nlp"
	"github.com/jellycore/oracle/internal/store"
	"github.com/jellycore/oracle/internal/vector"
)

// Setup creates and initializes the application. On failure everything
// already initialized is released; on success call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	vectors, err := vector.NewPGVector(pool, embedder, cfg.EmbedderModel, cfg.EmbedderVersion, embedOptions(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("creating vector store: %w", err)
	}
	a.Vectors = vectors

	if cfg.NLPBaseURL != "" {
		a.NLP = nlp.New(cfg.NLPBaseURL, logger)
	}

	a.Chunker = chunker.New(chunker.Config{
		MaxTokens:          cfg.ChunkMaxTokens,
		OverlapTokens:      cfg.ChunkOverlapTokens,
		MinChunkTokens:     cfg.ChunkMinTokens,
		PreserveCodeBlocks: cfg.PreserveCodeBlocks,
	}, thaiSplitter(a.NLP), logger)

	docs, err := store.New(pool, vectors, segmenter(a.NLP), a.Chunker, logger)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	a.Documents = docs

	if a.UserModels, err = memory.NewUserModels(docs, logger); err != nil {
		return nil, fmt.Errorf("creating user model layer: %w", err)
	}
	if a.Procedures, err = memory.NewProcedures(docs, logger); err != nil {
		return nil, fmt.Errorf("creating procedural layer: %w", err)
	}
	if a.Episodes, err = memory.NewEpisodes(docs, logger); err != nil {
		return nil, fmt.Errorf("creating episodic layer: %w", err)
	}
	if a.Scheduler, err = memory.NewScheduler(docs, a.Episodes, cfg.MaintenanceInterval(), logger); err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	// The scheduler outlives the setup context and stops on Close.
	maintCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel
	go a.Scheduler.Run(maintCtx)

	return a, nil
}

// thaiSplitter adapts the optional sidecar client to the chunker's
// interface without handing it a typed nil.
func thaiSplitter(c *nlp.Client) chunker.ThaiSplitter {
	if c == nil {
		return nil
	}
	return c
}

// segmenter adapts the optional sidecar client to the store's
// interface without handing it a typed nil.
func segmenter(c *nlp.Client) store.Segmenter {
	if c == nil {
		return nil
	}
	return c
}

// provideDBPool runs migrations and creates the PostgreSQL pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// embedOptions returns the provider-specific embed configuration.
// Gemini defaults to 3072-dim output and must be truncated to the
// schema width; Ollama's nomic-embed-text is 768-dim natively.
func embedOptions(cfg *config.Config) any {
	if cfg.Provider == config.ProviderOllama {
		return nil
	}
	return vector.GeminiEmbedOptions()
}

// provideGenkit initializes Genkit with the configured embedding
// provider.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit embedder registration (no auto-discovery).
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"embedder", cfg.EmbedderModel, "host", cfg.OllamaHost)
		return g, nil

	default: // gemini
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "embedder", cfg.EmbedderModel)
		return g, nil
	}
}

// provideEmbedder looks up the embedder registered by the provider
// plugin. Each provider registers differently: gemini by model name,
// ollama keyed by server address.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	default:
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
