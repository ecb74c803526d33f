package config

import (
	"fmt"
	"log/slog"
	"os"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Configuration errors are fatal: they are surfaced immediately at startup and
// never retried, unlike transient external-service errors.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API key is required for all embedding and completion operations.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// Model configuration.
	if c.GenerateModel == "" {
		return fmt.Errorf("%w: generate_model cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// The dimension must match the vector column in the chunk_vectors table.
	// gemini-embedding-001 supports 128-3072 via OutputDimensionality.
	if c.Dimension < 128 || c.Dimension > 3072 {
		return fmt.Errorf("%w: must be between 128 and 3072, got %d", ErrInvalidDimension, c.Dimension)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity).
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	// MaxTokens is the completion output ceiling, not the context window.
	if c.MaxTokens < 1 || c.MaxTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Retrieval configuration.
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.HistoryTurns < 0 || c.HistoryTurns > 50 {
		return fmt.Errorf("%w: must be between 0 and 50, got %d", ErrInvalidHistoryTurns, c.HistoryTurns)
	}
	if c.RelevanceFloor < -1.0 || c.RelevanceFloor > 1.0 {
		return fmt.Errorf("%w: must be a cosine similarity in [-1, 1], got %.2f",
			ErrInvalidRelevanceFloor, c.RelevanceFloor)
	}

	// Chunking: overlap must leave forward progress.
	if c.ChunkMaxTokens < 1 {
		return fmt.Errorf("%w: chunk_max_tokens must be positive, got %d", ErrInvalidChunking, c.ChunkMaxTokens)
	}
	if c.ChunkOverlapTokens < 0 || c.ChunkOverlapTokens >= c.ChunkMaxTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens must be in [0, chunk_max_tokens), got %d",
			ErrInvalidChunking, c.ChunkOverlapTokens)
	}

	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 250 {
		return fmt.Errorf("%w: must be between 1 and 250, got %d", ErrInvalidBatchSize, c.EmbedBatchSize)
	}

	// Zero disables throttling; negative values are meaningless.
	if c.EmbedRequestsPerMinute < 0 {
		return fmt.Errorf("%w: embed_requests_per_minute cannot be negative, got %d",
			ErrInvalidRateLimit, c.EmbedRequestsPerMinute)
	}

	if c.IndexVersion < 1 {
		return fmt.Errorf("%w: must be >= 1, got %d", ErrInvalidIndexVersion, c.IndexVersion)
	}

	// PostgreSQL configuration.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	if c.PostgresPassword == "meetscribe_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	return nil
}
