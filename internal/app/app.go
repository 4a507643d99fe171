// Package app wires the application together: database, Genkit, embedder,
// stores, pipeline and query chain.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archonhq/archon/db"
	"github.com/archonhq/archon/internal/config"
	"github.com/archonhq/archon/internal/embed"
	"github.com/archonhq/archon/internal/ingest"
	"github.com/archonhq/archon/internal/rag"
	"github.com/archonhq/archon/internal/source"
	"github.com/archonhq/archon/internal/tracker"
	"github.com/archonhq/archon/internal/vector"
)

// App holds the fully initialized application components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Embedder  *embed.Service
	Tracker   *tracker.Store
	Vectors   *vector.Store
	Chain     *rag.Chain
	Runner    *ingest.Runner
	Scheduler *ingest.Scheduler // nil when sync_interval is 0
}

// New initializes every component. The config must already be validated.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize Genkit")
	}

	embedder, err := embed.New(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		cfg.VectorDimensions,
		logger,
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	trk := tracker.New(pool, logger)
	vectors := vector.New(pool, cfg.VectorDimensions, logger)

	chain, err := rag.NewChain(g, embedder, vectors, rag.Options{
		ModelName:   cfg.FullModelName(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		RetrievalK:  cfg.RetrievalK,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating query chain: %w", err)
	}

	src := source.NewClient(cfg.GitHubToken, logger)
	chunker := ingest.NewChunker(
		ingest.WithChunkSize(cfg.ChunkSize),
		ingest.WithChunkOverlap(cfg.ChunkOverlap),
	)
	pipeline, err := ingest.NewPipeline(src, trk, vectors, embedder, chunker,
		cfg.Repositories, logger, ingest.WithWorkers(cfg.IngestWorkers))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	runner := ingest.NewRunner(pipeline, logger)

	var scheduler *ingest.Scheduler
	if cfg.SyncInterval > 0 {
		scheduler, err = ingest.NewScheduler(runner, cfg.SyncInterval, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("creating scheduler: %w", err)
		}
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Genkit:    g,
		Embedder:  embedder,
		Tracker:   trk,
		Vectors:   vectors,
		Chain:     chain,
		Runner:    runner,
		Scheduler: scheduler,
	}, nil
}

// newPool runs migrations, then opens and verifies the connection pool.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
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
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Fail fast if the database is unreachable
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// Close releases held resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}
