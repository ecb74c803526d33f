package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/meetscribe/internal/answer"
	"github.com/meetscribe/meetscribe/internal/chunk"
	"github.com/meetscribe/meetscribe/internal/config"
	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/database"
	"github.com/meetscribe/meetscribe/internal/embed"
	"github.com/meetscribe/meetscribe/internal/gemini"
	"github.com/meetscribe/meetscribe/internal/ingest"
	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/suggest"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// App holds the wired pipeline shared by the CLI commands.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Pool      *pgxpool.Pool
	Store     *corpus.Store
	Indexer   *ingest.Indexer
	Answerer  *answer.Engine
	Suggester *suggest.Engine
}

// newApp loads configuration and wires every service the pipeline needs.
// The caller owns the returned App and must Close() it.
func newApp(ctx context.Context) (_ *App, retErr error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger()

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer func() {
		if retErr != nil {
			pool.Close()
		}
	}()

	client, err := gemini.NewClient(ctx, cfg.APIKey(), gemini.Config{
		EmbedderModel: cfg.EmbedderModel,
		GenerateModel: cfg.GenerateModel,
		Dimension:     cfg.Dimension,
		Temperature:   cfg.Temperature,
		MaxTokens:     cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	gateway, err := embed.New(client, embed.Config{
		Dimension:         cfg.Dimension,
		BatchSize:         cfg.EmbedBatchSize,
		RequestTimeout:    config.DefaultEmbedTimeout,
		RequestsPerMinute: cfg.EmbedRequestsPerMinute,
	}, logger.With("component", "embed"))
	if err != nil {
		return nil, fmt.Errorf("creating embedding gateway: %w", err)
	}

	index, err := vecindex.New(pool, logger.With("component", "vecindex"))
	if err != nil {
		return nil, fmt.Errorf("creating vector index: %w", err)
	}

	store, err := corpus.NewStore(pool, logger.With("component", "corpus"))
	if err != nil {
		return nil, fmt.Errorf("creating corpus store: %w", err)
	}

	splitter, err := chunk.NewSplitter(cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	indexer, err := ingest.New(store, gateway, index, splitter, cfg.IndexVersion,
		logger.With("component", "ingest"))
	if err != nil {
		return nil, fmt.Errorf("creating indexer: %w", err)
	}

	answerer, err := answer.New(gateway, index, store, client, answer.Config{
		TopK:            cfg.TopK,
		HistoryTurns:    cfg.HistoryTurns,
		RelevanceFloor:  float64(cfg.RelevanceFloor),
		IndexVersion:    cfg.IndexVersion,
		GenerateTimeout: config.DefaultGenerateTimeout,
	}, logger.With("component", "answer"))
	if err != nil {
		return nil, fmt.Errorf("creating answer engine: %w", err)
	}

	suggester, err := suggest.New(gateway, index, client, suggest.Config{
		IndexVersion:    cfg.IndexVersion,
		GenerateTimeout: config.DefaultGenerateTimeout,
	}, logger.With("component", "suggest"))
	if err != nil {
		return nil, fmt.Errorf("creating suggestion engine: %w", err)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Store:     store,
		Indexer:   indexer,
		Answerer:  answerer,
		Suggester: suggester,
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() {
	a.Pool.Close()
}

// newLogger builds the process logger. MEETSCRIBE_LOG_LEVEL=debug enables
// debug output; everything else stays at info.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("MEETSCRIBE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
