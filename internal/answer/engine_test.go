package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fakeSearcher struct {
	matches    []vecindex.Match
	err        error
	lastFilter vecindex.Filter
	lastLimit  int
}

func (f *fakeSearcher) Query(_ context.Context, _ []float32, filter vecindex.Filter, limit int) ([]vecindex.Match, error) {
	f.lastFilter = filter
	f.lastLimit = limit
	return f.matches, f.err
}

type fakeTurns struct {
	recent    []corpus.ConversationTurn
	recentErr error
	created   []corpus.ConversationTurn
	createErr error
}

func (f *fakeTurns) RecentTurns(context.Context, int64, int) ([]corpus.ConversationTurn, error) {
	return f.recent, f.recentErr
}

func (f *fakeTurns) CreateTurn(_ context.Context, turn *corpus.ConversationTurn) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, *turn)
	return int64(len(f.created)), nil
}

type fakeGenerator struct {
	text       string
	err        error
	lastPrompt string
	lastCtx    context.Context
	calls      int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.lastCtx = ctx
	f.lastPrompt = prompt
	return f.text, f.err
}

func match(id string, score float64, ordinal int, text string) vecindex.Match {
	return vecindex.Match{
		ID:    id,
		Score: score,
		Payload: vecindex.Payload{
			Kind:         "transcript",
			MeetingID:    1,
			MeetingTitle: "Weekly sync",
			Ordinal:      ordinal,
			Text:         text,
			IndexVersion: 1,
		},
	}
}

func newEngine(t *testing.T, embedder Embedder, searcher Searcher, turns TurnStore, gen Generator, cfg Config) *Engine {
	t.Helper()
	e, err := New(embedder, searcher, turns, gen, cfg, log.NewNop())
	require.NoError(t, err)
	return e
}

func TestAsk_Grounded(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{
		match("v1", 0.9, 0, "budget was approved at 2M"),
		match("v2", 0.6, 3, "headcount grows by five"),
	}}
	turns := &fakeTurns{}
	gen := &fakeGenerator{text: "The budget was approved at 2M."}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, turns, gen,
		Config{TopK: 5, RelevanceFloor: 0.25})

	ans, err := e.Ask(context.Background(), 1, 10, "what was the budget?")
	require.NoError(t, err)

	assert.True(t, ans.Grounded)
	assert.Equal(t, "The budget was approved at 2M.", ans.Text)
	assert.EqualValues(t, 1, ans.TurnID)

	require.Len(t, ans.Citations, 2)
	assert.Equal(t, "v1", ans.Citations[0].VectorID)
	assert.Equal(t, 0.9, ans.Citations[0].Score)
	assert.Equal(t, "budget was approved at 2M", ans.Citations[0].Excerpt)

	// Retrieval scoped to the meeting.
	assert.EqualValues(t, 1, searcher.lastFilter.MeetingID)
	assert.Equal(t, 5, searcher.lastLimit)

	// The prompt carries the retrieved sections and the question.
	assert.Contains(t, gen.lastPrompt, "budget was approved at 2M")
	assert.Contains(t, gen.lastPrompt, "USER QUESTION:\nwhat was the budget?")

	// The exchange is persisted with its evidence.
	require.Len(t, turns.created, 1)
	assert.Equal(t, []string{"v1", "v2"}, turns.created[0].EvidenceChunkIDs)
	assert.EqualValues(t, 10, turns.created[0].UserID)
}

func TestAsk_RetrievalScopedToIndexVersion(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{match("v1", 0.9, 0, "notes")}}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, &fakeTurns{},
		&fakeGenerator{text: "ok"}, Config{IndexVersion: 2})

	_, err := e.Ask(context.Background(), 1, 10, "question?")
	require.NoError(t, err)

	assert.Equal(t, 2, searcher.lastFilter.IndexVersion)
}

func TestAsk_GenerationIsDeadlineBounded(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{match("v1", 0.9, 0, "context")}}
	gen := &fakeGenerator{text: "ok"}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, &fakeTurns{}, gen, Config{})

	_, err := e.Ask(context.Background(), 1, 10, "question")
	require.NoError(t, err)

	deadline, ok := gen.lastCtx.Deadline()
	require.True(t, ok, "completion call must carry a deadline")
	assert.WithinDuration(t, time.Now().Add(DefaultGenerateTimeout), deadline, 5*time.Second)
}

func TestAsk_NoMatchesStatesTheGap(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	gen := &fakeGenerator{text: "I couldn't find relevant information for that."}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, &fakeSearcher{}, turns, gen, Config{})

	ans, err := e.Ask(context.Background(), 1, 10, "anything?")
	require.NoError(t, err)

	assert.False(t, ans.Grounded)
	assert.Equal(t, "I couldn't find relevant information for that.", ans.Text)
	assert.Empty(t, ans.Citations)

	// The model is still consulted, but told to state the gap.
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.lastPrompt, "No relevant sections were found")
	assert.NotContains(t, gen.lastPrompt, "RELEVANT TRANSCRIPT SECTIONS")

	// The exchange still lands in history, with no evidence.
	require.Len(t, turns.created, 1)
	assert.Empty(t, turns.created[0].EvidenceChunkIDs)
}

func TestAsk_RelevanceFloorFiltersMatches(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{
		match("v1", 0.2, 0, "barely related"),
		match("v2", 0.1, 1, "noise"),
	}}
	gen := &fakeGenerator{text: "nothing relevant"}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, &fakeTurns{}, gen,
		Config{RelevanceFloor: 0.25})

	ans, err := e.Ask(context.Background(), 1, 10, "question")
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Citations)
	assert.NotContains(t, gen.lastPrompt, "barely related")
	assert.NotContains(t, gen.lastPrompt, "noise")
}

func TestAsk_HistoryIsChronological(t *testing.T) {
	t.Parallel()

	// Storage returns newest first.
	turns := &fakeTurns{recent: []corpus.ConversationTurn{
		{Question: "newer question", Answer: "newer answer", CreatedAt: time.Now()},
		{Question: "older question", Answer: "older answer", CreatedAt: time.Now().Add(-time.Minute)},
	}}
	searcher := &fakeSearcher{matches: []vecindex.Match{match("v1", 0.9, 0, "context")}}
	gen := &fakeGenerator{text: "ok"}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, turns, gen, Config{})

	_, err := e.Ask(context.Background(), 1, 10, "next question")
	require.NoError(t, err)

	older := strings.Index(gen.lastPrompt, "older question")
	newer := strings.Index(gen.lastPrompt, "newer question")
	require.GreaterOrEqual(t, older, 0)
	require.GreaterOrEqual(t, newer, 0)
	assert.Less(t, older, newer, "history must read oldest to newest")
}

func TestAsk_GenerateFailureLeavesNoTurn(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	searcher := &fakeSearcher{matches: []vecindex.Match{match("v1", 0.9, 0, "context")}}
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, turns, gen, Config{})

	_, err := e.Ask(context.Background(), 1, 10, "question")
	require.Error(t, err)
	assert.Empty(t, turns.created)
}

func TestAsk_EmbedFailureLeavesNoTurn(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{}
	e := newEngine(t, &fakeEmbedder{err: errors.New("embedding down")}, &fakeSearcher{}, turns,
		&fakeGenerator{}, Config{})

	_, err := e.Ask(context.Background(), 1, 10, "question")
	require.Error(t, err)
	assert.Empty(t, turns.created)
}

func TestAsk_PersistFailureKeepsAnswer(t *testing.T) {
	t.Parallel()

	turns := &fakeTurns{createErr: errors.New("database down")}
	searcher := &fakeSearcher{matches: []vecindex.Match{match("v1", 0.9, 0, "context")}}
	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, searcher, turns,
		&fakeGenerator{text: "answer"}, Config{})

	ans, err := e.Ask(context.Background(), 1, 10, "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.EqualValues(t, 0, ans.TurnID)
}

func TestAsk_InputValidation(t *testing.T) {
	t.Parallel()

	e := newEngine(t, &fakeEmbedder{vector: []float32{1}}, &fakeSearcher{}, &fakeTurns{},
		&fakeGenerator{}, Config{})

	_, err := e.Ask(context.Background(), 1, 10, "   ")
	assert.Error(t, err)

	_, err = e.Ask(context.Background(), 0, 10, "question")
	assert.Error(t, err)
}

func TestBuildPrompt_Layout(t *testing.T) {
	t.Parallel()

	history := []corpus.ConversationTurn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
	}
	got := buildPrompt("system text", history, "final question")

	want := strings.Join([]string{
		"SYSTEM:",
		"system text",
		"\nCONVERSATION:",
		"USER: q1",
		"ASSISTANT: a1",
		"USER: q2",
		"ASSISTANT: a2",
		"\nUSER QUESTION:",
		"final question",
		"\nASSISTANT:",
	}, "\n")
	assert.Equal(t, want, got)
}

func TestBuildPrompt_NoHistory(t *testing.T) {
	t.Parallel()

	got := buildPrompt("system", nil, "question")
	assert.NotContains(t, got, "CONVERSATION:")
	assert.Contains(t, got, "USER QUESTION:\nquestion")
}

func TestSystemPrompt_Sections(t *testing.T) {
	t.Parallel()

	matches := []vecindex.Match{
		match("v1", 0.9, 2, "some transcript text"),
	}
	matches[0].Payload.DocumentName = ""

	got := systemPrompt(matches)
	assert.Contains(t, got, "[Source: transcript, Chunk 2, Doc: N/A] some transcript text")
	assert.Contains(t, got, "based ONLY on the provided transcript sections")
}

func TestSystemPrompt_TranscriptTimeWindow(t *testing.T) {
	t.Parallel()

	m := match("v1", 0.9, 0, "budget approved")
	start, end := 30, 55
	m.Payload.StartSec, m.Payload.EndSec = &start, &end

	got := systemPrompt([]vecindex.Match{m})
	assert.Contains(t, got, "[Source: transcript, Chunk 0, Doc: N/A, Time: 30s-55s] budget approved")
}
