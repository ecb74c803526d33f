package suggest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedOne(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
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

type fakeGenerator struct {
	text       string
	err        error
	lastPrompt string
	lastCtx    context.Context
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.lastCtx = ctx
	f.lastPrompt = prompt
	return f.text, f.err
}

func meetingMatch(meetingID int64, score float64, text string) vecindex.Match {
	return vecindex.Match{
		ID:    fmt.Sprintf("m%d-%f", meetingID, score),
		Score: score,
		Payload: vecindex.Payload{
			Kind:         "transcript",
			MeetingID:    meetingID,
			MeetingTitle: fmt.Sprintf("Meeting %d", meetingID),
			Text:         text,
		},
	}
}

func newEngine(t *testing.T, embedder Embedder, searcher Searcher, gen Generator) *Engine {
	t.Helper()
	e, err := New(embedder, searcher, gen, Config{}, log.NewNop())
	require.NoError(t, err)
	return e
}

func TestSuggest_BestExcerptPerMeeting(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{
		meetingMatch(2, 0.95, "roadmap deep dive"),
		meetingMatch(3, 0.90, "budget review"),
		meetingMatch(2, 0.85, "roadmap follow-up"),
		meetingMatch(4, 0.60, "retro notes"),
	}}
	e := newEngine(t, &fakeEmbedder{}, searcher, &fakeGenerator{})

	got, err := e.Suggest(context.Background(), 10, 1, "Roadmap planning", "discuss Q4")
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.EqualValues(t, 2, got[0].MeetingID)
	assert.Equal(t, "roadmap deep dive", got[0].Excerpt, "only the best excerpt per meeting survives")
	assert.EqualValues(t, 3, got[1].MeetingID)
	assert.EqualValues(t, 4, got[2].MeetingID)

	// Scores stay descending.
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	// Search is owner-scoped, excludes the upcoming meeting, and over-fetches.
	assert.EqualValues(t, 10, searcher.lastFilter.OwnerID)
	assert.EqualValues(t, 1, searcher.lastFilter.ExcludeMeetingID)
	assert.Equal(t, MaxSuggestions*overfetchFactor, searcher.lastLimit)
}

func TestSuggest_CapsAtMax(t *testing.T) {
	t.Parallel()

	var matches []vecindex.Match
	for i := 0; i < 10; i++ {
		matches = append(matches, meetingMatch(int64(i+100), 1.0-float64(i)/100, "text"))
	}
	e := newEngine(t, &fakeEmbedder{}, &fakeSearcher{matches: matches}, &fakeGenerator{})

	got, err := e.Suggest(context.Background(), 10, 0, "title", "")
	require.NoError(t, err)
	assert.Len(t, got, MaxSuggestions)
}

func TestSuggest_Validation(t *testing.T) {
	t.Parallel()

	e := newEngine(t, &fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{})

	_, err := e.Suggest(context.Background(), 0, 1, "title", "agenda")
	assert.Error(t, err)

	_, err = e.Suggest(context.Background(), 10, 1, "  ", "")
	assert.Error(t, err)
}

func TestSuggest_NoMatches(t *testing.T) {
	t.Parallel()

	e := newEngine(t, &fakeEmbedder{}, &fakeSearcher{}, &fakeGenerator{})
	got, err := e.Suggest(context.Background(), 10, 1, "brand new topic", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSuggest_EmbedError(t *testing.T) {
	t.Parallel()

	e := newEngine(t, &fakeEmbedder{err: errors.New("down")}, &fakeSearcher{}, &fakeGenerator{})
	_, err := e.Suggest(context.Background(), 10, 1, "title", "")
	assert.Error(t, err)
}

func TestAgendaPoints(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{
		meetingMatch(1, 0.9, "we agreed to revisit pricing"),
		meetingMatch(1, 0.8, "hiring for the platform team"),
	}}
	gen := &fakeGenerator{text: "- Revisit pricing decision\n2) Platform team hiring status\n\n• Budget follow-up"}
	e := newEngine(t, &fakeEmbedder{}, searcher, gen)

	got, err := e.AgendaPoints(context.Background(), 1, "Q4 sync")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Revisit pricing decision",
		"Platform team hiring status",
		"Budget follow-up",
	}, got)

	assert.EqualValues(t, 1, searcher.lastFilter.MeetingID)
	assert.Equal(t, agendaTopK, searcher.lastLimit)
	assert.Contains(t, gen.lastPrompt, "MEETING TITLE: Q4 sync")
	assert.Contains(t, gen.lastPrompt, "[Source: transcript] we agreed to revisit pricing")
}

func TestAgendaPoints_GenerationIsDeadlineBounded(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{meetingMatch(1, 0.9, "notes")}}
	gen := &fakeGenerator{text: "point"}
	e := newEngine(t, &fakeEmbedder{}, searcher, gen)

	_, err := e.AgendaPoints(context.Background(), 1, "title")
	require.NoError(t, err)

	deadline, ok := gen.lastCtx.Deadline()
	require.True(t, ok, "agenda drafting must carry a deadline")
	assert.WithinDuration(t, time.Now().Add(DefaultGenerateTimeout), deadline, 5*time.Second)
}

func TestAgendaPoints_NothingIndexed(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: "should not run"}
	e := newEngine(t, &fakeEmbedder{}, &fakeSearcher{}, gen)

	got, err := e.AgendaPoints(context.Background(), 1, "title")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, gen.lastPrompt)
}

func TestAgendaPoints_GenerateError(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{matches: []vecindex.Match{meetingMatch(1, 0.9, "notes")}}
	e := newEngine(t, &fakeEmbedder{}, searcher, &fakeGenerator{err: errors.New("down")})

	_, err := e.AgendaPoints(context.Background(), 1, "title")
	assert.Error(t, err)
}

func TestParsePoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		max  int
		want []string
	}{
		{
			name: "bullets stripped",
			in:   "- one\n* two\n• three",
			max:  8,
			want: []string{"one", "two", "three"},
		},
		{
			name: "numbering stripped",
			in:   "1. first\n2) second\n(3) third",
			max:  8,
			want: []string{"first", "second", "third"},
		},
		{
			name: "cap applies",
			in:   "a\nb\nc\nd",
			max:  2,
			want: []string{"a", "b"},
		},
		{
			name: "blank lines skipped",
			in:   "\n\nonly point\n\n",
			max:  8,
			want: []string{"only point"},
		},
		{
			name: "unparseable falls back to whole text",
			in:   "---",
			max:  8,
			want: []string{"---"},
		},
		{
			name: "empty",
			in:   "   ",
			max:  8,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parsePoints(tt.in, tt.max))
		})
	}
}
