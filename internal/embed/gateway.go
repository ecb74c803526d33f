// Package embed turns chunk text into vectors through a rate-limited,
// retrying gateway over the embedding model.
//
// The gateway owns batching policy: callers hand over the full ordered list
// of texts and get back the full ordered list of vectors, or an error naming
// the first sub-batch that could not be embedded after retries.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/meetscribe/meetscribe/internal/log"
)

// ErrDimensionMismatch reports a vector whose length differs from the
// configured dimension. Retrying cannot fix a model/config disagreement, so
// the gateway fails immediately.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Client is the raw embedding call the gateway wraps.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batching and retry behavior.
type Config struct {
	// Dimension every returned vector must have.
	Dimension int
	// BatchSize is the maximum texts per upstream request.
	BatchSize int
	// MaxAttempts per sub-batch, including the first try.
	MaxAttempts int
	// RequestTimeout bounds a single upstream request.
	RequestTimeout time.Duration
	// RequestsPerMinute throttles upstream calls. Zero disables the limiter.
	RequestsPerMinute int
}

// Defaults applied by New when fields are zero.
const (
	DefaultBatchSize      = 100
	DefaultMaxAttempts    = 3
	DefaultRequestTimeout = 30 * time.Second
)

// BatchError reports which slice of the input failed after retries were
// exhausted. Start/End are indices into the original texts slice.
type BatchError struct {
	Start int
	End   int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding texts [%d:%d]: %v", e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Gateway batches, throttles, and retries embedding requests.
type Gateway struct {
	client  Client
	cfg     Config
	limiter *rate.Limiter
	logger  log.Logger
}

// New creates a Gateway. Dimension must be set; other zero fields get
// defaults.
func New(client Client, cfg Config, logger log.Logger) (*Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Dimension < 1 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}

	return &Gateway{client: client, cfg: cfg, limiter: limiter, logger: logger}, nil
}

// EmbedBatch embeds texts in order, splitting into sub-batches of at most
// BatchSize. The result has exactly one vector per input. On failure the
// returned error wraps a *BatchError identifying the failed input range;
// vectors for earlier sub-batches are discarded with it, so the operation is
// all-or-nothing for the caller.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))

		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		batch, err := g.embedWithRetry(ctx, texts[start:end])
		if err != nil {
			return nil, &BatchError{Start: start, End: end, Err: err}
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedOne embeds a single text, typically a user question.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedWithRetry runs one sub-batch with exponential backoff. Transient
// upstream errors retry up to MaxAttempts; malformed responses (wrong count,
// wrong dimension) are permanent.
func (g *Gateway) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	attempt := 0

	op := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()

		got, err := g.client.Embed(reqCtx, texts)
		if err != nil {
			g.logger.Warn("embedding request failed",
				"attempt", attempt,
				"batch_size", len(texts),
				"error", err,
			)
			return err
		}
		if len(got) != len(texts) {
			return backoff.Permanent(fmt.Errorf("sent %d texts, got %d vectors", len(texts), len(got)))
		}
		for i, v := range got {
			if len(v) != g.cfg.Dimension {
				return backoff.Permanent(fmt.Errorf("%w: vector %d has %d values, want %d",
					ErrDimensionMismatch, i, len(v), g.cfg.Dimension))
			}
		}
		vectors = got
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(g.cfg.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return vectors, nil
}
