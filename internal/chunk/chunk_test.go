package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordRun returns n distinct words separated by single spaces.
func wordRun(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestNewSplitter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		max     int
		overlap int
		wantErr bool
	}{
		{name: "valid", max: 500, overlap: 50},
		{name: "zero overlap", max: 100, overlap: 0},
		{name: "zero max", max: 0, overlap: 0, wantErr: true},
		{name: "negative overlap", max: 100, overlap: -1, wantErr: true},
		{name: "overlap equals max", max: 100, overlap: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s, err := NewSplitter(tt.max, tt.overlap)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, s)
		})
	}
}

func TestSplit_Empty(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(500, 50)
	require.NoError(t, err)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\n\t  "))
}

func TestSplit_SingleChunk(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(500, 50)
	require.NoError(t, err)

	text := "Short meeting note.\n\nNothing much happened."
	spans := s.Split(text)
	require.Len(t, spans, 1)
	assert.Equal(t, strings.TrimSpace(text), spans[0].Text)
	assert.Equal(t, 0, spans[0].WordStart)
	assert.Equal(t, CountTokens(text), spans[0].WordEnd)
}

func TestSplit_LongRunWithOverlap(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(500, 50)
	require.NoError(t, err)

	// 1200 words with no separators stronger than spaces: each chunk holds
	// 500 words and restarts 50 words back, so three chunks cover the text.
	spans := s.Split(wordRun(1200))
	require.Len(t, spans, 3)

	assert.Equal(t, 0, spans[0].WordStart)
	assert.Equal(t, 500, spans[0].WordEnd)
	assert.Equal(t, 450, spans[1].WordStart)
	assert.Equal(t, 950, spans[1].WordEnd)
	assert.Equal(t, 900, spans[2].WordStart)
	assert.Equal(t, 1200, spans[2].WordEnd)

	// The overlap region is byte-identical between adjacent chunks.
	tail := strings.Fields(spans[0].Text)[450:]
	head := strings.Fields(spans[1].Text)[:50]
	assert.Equal(t, tail, head)
}

func TestSplit_RespectsTokenBudget(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(40, 8)
	require.NoError(t, err)

	var b strings.Builder
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "Paragraph %d has exactly eight words total here.\n\n", i)
	}
	spans := s.Split(b.String())
	require.NotEmpty(t, spans)
	for _, sp := range spans {
		assert.LessOrEqual(t, CountTokens(sp.Text), 40)
	}
}

func TestSplit_PrefersParagraphBoundaries(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(10, 0)
	require.NoError(t, err)

	text := "one two three four five six\n\nseven eight nine ten eleven twelve\n\nthirteen fourteen"
	spans := s.Split(text)
	require.Len(t, spans, 2)

	// The first cut lands on the paragraph boundary even though four more
	// words would have fit; the remaining two paragraphs pack together.
	assert.Equal(t, "one two three four five six", spans[0].Text)
	assert.Equal(t, "seven eight nine ten eleven twelve\n\nthirteen fourteen", spans[1].Text)
}

func TestSplit_SentenceFallback(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(8, 0)
	require.NoError(t, err)

	// A single long line forces the sentence separator.
	text := "Alpha beta gamma delta epsilon. Zeta eta theta iota kappa. Lambda mu."
	spans := s.Split(text)
	require.Len(t, spans, 2)
	assert.Equal(t, "Alpha beta gamma delta epsilon.", spans[0].Text)
	assert.Equal(t, "Zeta eta theta iota kappa. Lambda mu.", spans[1].Text)
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(50, 10)
	require.NoError(t, err)

	text := wordRun(333) + "\n\n" + wordRun(77) + "\n" + wordRun(140)
	first := s.Split(text)
	second := s.Split(text)
	assert.Equal(t, first, second)
}

func TestSplit_WordOffsetsCoverDocument(t *testing.T) {
	t.Parallel()

	s, err := NewSplitter(60, 12)
	require.NoError(t, err)

	text := wordRun(200) + "\n\n" + wordRun(95)
	spans := s.Split(text)
	require.NotEmpty(t, spans)

	total := CountTokens(text)
	assert.Equal(t, 0, spans[0].WordStart)
	assert.Equal(t, total, spans[len(spans)-1].WordEnd)
	for i := 1; i < len(spans); i++ {
		// Chunks progress and never leave gaps.
		assert.Greater(t, spans[i].WordStart, spans[i-1].WordStart)
		assert.LessOrEqual(t, spans[i].WordStart, spans[i-1].WordEnd)
	}
}

func TestAnchor(t *testing.T) {
	t.Parallel()

	segments := []Segment{
		{Text: "hello there everyone welcome", StartSec: 0, EndSec: 10},   // words 0-3
		{Text: "today we discuss the roadmap", StartSec: 10, EndSec: 25},  // words 4-8
		{Text: "questions at the end please", StartSec: 25, EndSec: 40},   // words 9-13
	}

	tests := []struct {
		name string
		span Span
		want TimeRange
	}{
		{
			name: "within first segment",
			span: Span{WordStart: 0, WordEnd: 3},
			want: TimeRange{StartSec: 0, EndSec: 10, OK: true},
		},
		{
			name: "spans two segments",
			span: Span{WordStart: 2, WordEnd: 6},
			want: TimeRange{StartSec: 0, EndSec: 25, OK: true},
		},
		{
			name: "entire transcript",
			span: Span{WordStart: 0, WordEnd: 14},
			want: TimeRange{StartSec: 0, EndSec: 40, OK: true},
		},
		{
			name: "end clamped past total",
			span: Span{WordStart: 10, WordEnd: 99},
			want: TimeRange{StartSec: 25, EndSec: 40, OK: true},
		},
		{
			name: "start past total",
			span: Span{WordStart: 14, WordEnd: 20},
			want: TimeRange{},
		},
		{
			name: "empty span",
			span: Span{WordStart: 5, WordEnd: 5},
			want: TimeRange{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Anchor([]Span{tt.span}, segments)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestAnchor_NoSegments(t *testing.T) {
	t.Parallel()

	got := Anchor([]Span{{WordStart: 0, WordEnd: 5}}, nil)
	require.Len(t, got, 1)
	assert.False(t, got[0].OK)
}
