// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.meetscribe/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: embedding model, vector dimension, generation model, temperature, token ceiling
//   - Storage: PostgreSQL connection (see storage.go)
//   - Retrieval: top-k, history depth, relevance floor
//   - Indexing: chunk sizing, batch limits, index version
//   - Observability: OTLP trace export
//
// Security: sensitive data (passwords, API keys) is read from the environment and never
// logged. Validation: range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max output token value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidDimension indicates the configured vector dimension is invalid.
	ErrInvalidDimension = errors.New("invalid vector dimension")

	// ErrInvalidChunking indicates the chunk size/overlap combination is invalid.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidHistoryTurns indicates the conversation history depth is out of range.
	ErrInvalidHistoryTurns = errors.New("invalid history turns")

	// ErrInvalidRelevanceFloor indicates the relevance floor is not a valid cosine similarity.
	ErrInvalidRelevanceFloor = errors.New("invalid relevance floor")

	// ErrInvalidBatchSize indicates the embedding batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidRateLimit indicates the embedding rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidIndexVersion indicates the index version is not positive.
	ErrInvalidIndexVersion = errors.New("invalid index version")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 outputs 3072 dimensions by default but supports
	// truncation via OutputDimensionality (Matryoshka Representation Learning).
	// The chunk_vectors schema uses 768 dimensions; see db/migrations.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultGenerateModel is the default Gemini completion model.
	DefaultGenerateModel = "gemini-2.5-flash-lite"

	// DefaultVectorDimension matches the vector(768) column in chunk_vectors.
	DefaultVectorDimension = 768

	// DefaultEmbedTimeout bounds a single embedding request.
	DefaultEmbedTimeout = 30 * time.Second

	// DefaultGenerateTimeout bounds a single completion request. Completions
	// run longer than embeddings, so the ceiling is higher.
	DefaultGenerateTimeout = 60 * time.Second
)

// Config stores application configuration.
// Sensitive values (API key, postgres password) come from the environment.
type Config struct {
	// AI model configuration
	GenerateModel string  `mapstructure:"generate_model"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Dimension     int     `mapstructure:"vector_dimension"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`

	// Retrieval configuration
	TopK           int     `mapstructure:"top_k"`
	HistoryTurns   int     `mapstructure:"history_turns"`
	RelevanceFloor float32 `mapstructure:"relevance_floor"`

	// Indexing configuration
	ChunkMaxTokens     int `mapstructure:"chunk_max_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens"`
	EmbedBatchSize     int `mapstructure:"embed_batch_size"`
	// EmbedRequestsPerMinute throttles embedding calls to stay inside the
	// upstream quota. Zero disables throttling.
	EmbedRequestsPerMinute int `mapstructure:"embed_requests_per_minute"`
	IndexVersion           int `mapstructure:"index_version"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`

	// Observability (OTLP trace export to a local agent)
	OTLP OTLPConfig `mapstructure:"otlp"`
}

// OTLPConfig configures trace export.
type OTLPConfig struct {
	// Enabled turns trace export on. Default: false.
	Enabled bool `mapstructure:"enabled"`

	// AgentHost is the OTLP HTTP endpoint (host:port). Default: localhost:4318.
	AgentHost string `mapstructure:"agent_host"`

	// Environment tags exported spans (dev, staging, prod).
	Environment string `mapstructure:"environment"`

	// ServiceName identifies this service in traces.
	ServiceName string `mapstructure:"service_name"`
}

// APIKey returns the Gemini API key from the environment.
func (c *Config) APIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".meetscribe")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings (cloud convention).
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("generate_model", DefaultGenerateModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("vector_dimension", DefaultVectorDimension)
	// Low temperature: grounded factual answers over creativity.
	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 1000)

	// Retrieval defaults
	v.SetDefault("top_k", 5)
	v.SetDefault("history_turns", 5)
	v.SetDefault("relevance_floor", 0.25)

	// Indexing defaults
	v.SetDefault("chunk_max_tokens", 500)
	v.SetDefault("chunk_overlap_tokens", 50)
	v.SetDefault("embed_batch_size", 100)
	// Matches the gemini-embedding-001 free-tier quota.
	v.SetDefault("embed_requests_per_minute", 100)
	v.SetDefault("index_version", 1)

	// Local development PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "meetscribe")
	v.SetDefault("postgres_password", "meetscribe_dev_password")
	v.SetDefault("postgres_db_name", "meetscribe")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP server
	v.SetDefault("listen_addr", "127.0.0.1:8600")

	// OTLP defaults
	v.SetDefault("otlp.enabled", false)
	v.SetDefault("otlp.agent_host", "localhost:4318")
	v.SetDefault("otlp.environment", "dev")
	v.SetDefault("otlp.service_name", "meetscribe")
}

// bindEnvVariables binds environment variable overrides.
// MEETSCRIBE_ prefixed variables map onto config keys; secrets are bound explicitly.
func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("MEETSCRIBE")
	v.AutomaticEnv()

	// Explicit binding for the postgres password so both the prefixed and the
	// conventional variable name work.
	_ = v.BindEnv("postgres_password", "MEETSCRIBE_POSTGRES_PASSWORD", "POSTGRES_PASSWORD")
}
