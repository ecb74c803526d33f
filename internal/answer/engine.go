// Package answer implements grounded question answering over a meeting's
// indexed content.
//
// Retrieval runs first and the retrieved chunks anchor the prompt. When
// nothing relevant surfaces, the model is still consulted but instructed to
// say so rather than guess. Each exchange is appended to the meeting's
// conversation history so later questions carry context.
package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// Embedder embeds the user question for retrieval.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs similarity search over the vector index.
type Searcher interface {
	Query(ctx context.Context, vector []float32, filter vecindex.Filter, limit int) ([]vecindex.Match, error)
}

// TurnStore reads and appends conversation history.
type TurnStore interface {
	RecentTurns(ctx context.Context, meetingID int64, limit int) ([]corpus.ConversationTurn, error)
	CreateTurn(ctx context.Context, turn *corpus.ConversationTurn) (int64, error)
}

// Generator produces the answer text from the assembled prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config tunes retrieval and context assembly.
type Config struct {
	// TopK chunks retrieved per question.
	TopK int
	// HistoryTurns of prior conversation included in the prompt.
	HistoryTurns int
	// RelevanceFloor drops matches below this cosine similarity.
	RelevanceFloor float64
	// IndexVersion scopes retrieval to vectors written at this version, so a
	// version bump never mixes embedding spaces. Zero disables the scope.
	IndexVersion int
	// GenerateTimeout bounds the completion call.
	GenerateTimeout time.Duration
}

// Defaults applied by New when fields are zero.
const (
	DefaultTopK            = 5
	DefaultHistoryTurns    = 5
	DefaultGenerateTimeout = 60 * time.Second
)

// Citation points an answer back at one retrieved chunk.
type Citation struct {
	VectorID     string
	Score        float64
	Kind         string
	MeetingTitle string
	DocumentName string
	Ordinal      int
	Excerpt      string
	StartSec     *int
	EndSec       *int
}

// Answer is the result of one question.
type Answer struct {
	Text      string
	Citations []Citation
	// TurnID identifies the persisted conversation turn, 0 if persistence
	// failed after the answer was produced.
	TurnID int64
	// Grounded is false when no chunk cleared the relevance floor and the
	// model was asked to state that instead of answering.
	Grounded bool
}

// Engine answers questions about a single meeting's content.
type Engine struct {
	embedder  Embedder
	searcher  Searcher
	turns     TurnStore
	generator Generator
	cfg       Config
	logger    log.Logger
}

// New creates an Engine. Zero Config fields get defaults; a zero
// RelevanceFloor keeps every match.
func New(embedder Embedder, searcher Searcher, turns TurnStore, generator Generator,
	cfg Config, logger log.Logger) (*Engine, error) {
	if embedder == nil || searcher == nil || turns == nil || generator == nil {
		return nil, fmt.Errorf("embedder, searcher, turns, and generator are required")
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryTurns < 1 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		embedder:  embedder,
		searcher:  searcher,
		turns:     turns,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Ask answers question within the given meeting's content.
//
// Failures before an answer exists (embedding, search, generation) return an
// error and leave no trace in the conversation history. Once an answer
// exists, a history write failure is logged but does not discard the answer.
func (e *Engine) Ask(ctx context.Context, meetingID, userID int64, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if meetingID == 0 {
		return nil, fmt.Errorf("meeting id is required")
	}

	vector, err := e.embedder.EmbedOne(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	filter := vecindex.Filter{MeetingID: meetingID, IndexVersion: e.cfg.IndexVersion}
	matches, err := e.searcher.Query(ctx, vector, filter, e.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("searching meeting %d: %w", meetingID, err)
	}
	matches = e.relevant(matches)

	// With nothing relevant retrieved, the model is still consulted but
	// instructed to say so instead of answering from thin air.
	grounded := len(matches) > 0
	system := noContextPrompt
	if grounded {
		system = systemPrompt(matches)
	} else {
		e.logger.Info("no relevant chunks for question", "meeting_id", meetingID)
	}

	history, err := e.turns.RecentTurns(ctx, meetingID, e.cfg.HistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("loading conversation history: %w", err)
	}
	reverse(history) // newest-first from storage, chronological in the prompt

	prompt := buildPrompt(system, history, question)
	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	text, err := e.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	ans := &Answer{
		Text:     text,
		Grounded: grounded,
	}
	if grounded {
		ans.Citations = citations(matches)
	}
	ans.TurnID = e.persistTurn(ctx, meetingID, userID, question, text, matches)
	return ans, nil
}

// relevant drops matches below the configured floor.
func (e *Engine) relevant(matches []vecindex.Match) []vecindex.Match {
	if e.cfg.RelevanceFloor <= 0 {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= e.cfg.RelevanceFloor {
			kept = append(kept, m)
		}
	}
	return kept
}

// persistTurn appends the exchange to history, returning the turn id or 0 on
// failure. The answer has already been produced; losing the history row is
// not worth failing the request over.
func (e *Engine) persistTurn(ctx context.Context, meetingID, userID int64,
	question, answer string, matches []vecindex.Match) int64 {
	evidence := make([]string, len(matches))
	for i, m := range matches {
		evidence[i] = m.ID
	}
	id, err := e.turns.CreateTurn(ctx, &corpus.ConversationTurn{
		MeetingID:        meetingID,
		UserID:           userID,
		Question:         question,
		Answer:           answer,
		EvidenceChunkIDs: evidence,
	})
	if err != nil {
		e.logger.Error("failed to persist conversation turn",
			"meeting_id", meetingID, "error", err)
		return 0
	}
	return id
}

func citations(matches []vecindex.Match) []Citation {
	out := make([]Citation, len(matches))
	for i, m := range matches {
		out[i] = Citation{
			VectorID:     m.ID,
			Score:        m.Score,
			Kind:         m.Payload.Kind,
			MeetingTitle: m.Payload.MeetingTitle,
			DocumentName: m.Payload.DocumentName,
			Ordinal:      m.Payload.Ordinal,
			Excerpt:      m.Payload.Text,
			StartSec:     m.Payload.StartSec,
			EndSec:       m.Payload.EndSec,
		}
	}
	return out
}

func reverse(turns []corpus.ConversationTurn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
