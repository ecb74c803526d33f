// Package suggest surfaces prior-meeting content relevant to an upcoming
// meeting: related excerpts from past meetings, and model-drafted agenda
// points grounded in past notes.
package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// MaxSuggestions caps the result list: one excerpt per prior meeting.
const MaxSuggestions = 5

// overfetchFactor widens retrieval so that after per-meeting dedup there are
// still enough distinct meetings to fill the list.
const overfetchFactor = 4

// DefaultGenerateTimeout applies when Config.GenerateTimeout is zero.
const DefaultGenerateTimeout = 60 * time.Second

// Embedder embeds the meeting title and agenda for retrieval.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search over the vector index.
type Searcher interface {
	Query(ctx context.Context, vector []float32, filter vecindex.Filter, limit int) ([]vecindex.Match, error)
}

// Generator produces agenda points from past notes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Suggestion is one prior-meeting excerpt relevant to the upcoming meeting.
type Suggestion struct {
	MeetingID    int64
	MeetingTitle string
	Kind         string
	DocumentName string
	Excerpt      string
	Score        float64
	StartSec     *int
	EndSec       *int
}

// Config tunes retrieval scope and generation.
type Config struct {
	// IndexVersion scopes retrieval to vectors written at this version. Zero
	// disables the scope.
	IndexVersion int
	// GenerateTimeout bounds the agenda drafting call.
	GenerateTimeout time.Duration
}

// Engine answers "what from my past meetings relates to this one".
type Engine struct {
	embedder  Embedder
	searcher  Searcher
	generator Generator
	cfg       Config
	logger    log.Logger
}

// New creates an Engine.
func New(embedder Embedder, searcher Searcher, generator Generator, cfg Config, logger log.Logger) (*Engine, error) {
	if embedder == nil || searcher == nil || generator == nil {
		return nil, fmt.Errorf("embedder, searcher, and generator are required")
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{embedder: embedder, searcher: searcher, generator: generator, cfg: cfg, logger: logger}, nil
}

// Suggest returns up to MaxSuggestions excerpts from the owner's other
// meetings, ranked by similarity to the combined title and agenda. Each
// meeting contributes only its best-scoring excerpt. excludeMeetingID keeps
// the upcoming meeting's own content out of its suggestions.
func (e *Engine) Suggest(ctx context.Context, ownerID, excludeMeetingID int64, title, agenda string) ([]Suggestion, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("owner id is required")
	}
	query := strings.TrimSpace(strings.TrimSpace(title) + "\n" + strings.TrimSpace(agenda))
	if query == "" {
		return nil, fmt.Errorf("title or agenda is required")
	}

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding suggestion query: %w", err)
	}

	matches, err := e.searcher.Query(ctx, vector, vecindex.Filter{
		OwnerID:          ownerID,
		ExcludeMeetingID: excludeMeetingID,
		IndexVersion:     e.cfg.IndexVersion,
	}, MaxSuggestions*overfetchFactor)
	if err != nil {
		return nil, fmt.Errorf("searching prior meetings: %w", err)
	}

	// Matches arrive best-first, so the first hit per meeting is its best.
	seen := make(map[int64]bool)
	var suggestions []Suggestion
	for _, m := range matches {
		if seen[m.Payload.MeetingID] {
			continue
		}
		seen[m.Payload.MeetingID] = true
		suggestions = append(suggestions, Suggestion{
			MeetingID:    m.Payload.MeetingID,
			MeetingTitle: m.Payload.MeetingTitle,
			Kind:         m.Payload.Kind,
			DocumentName: m.Payload.DocumentName,
			Excerpt:      m.Payload.Text,
			Score:        m.Score,
			StartSec:     m.Payload.StartSec,
			EndSec:       m.Payload.EndSec,
		})
		if len(suggestions) == MaxSuggestions {
			break
		}
	}

	e.logger.Debug("built suggestions",
		"owner_id", ownerID,
		"candidates", len(matches),
		"suggestions", len(suggestions),
	)
	return suggestions, nil
}
