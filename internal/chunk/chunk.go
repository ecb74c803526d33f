// Package chunk splits normalized text into overlapping, token-bounded spans.
//
// The splitter descends through semantic boundaries (paragraph, line, sentence,
// word) and packs content greedily up to a token budget, re-emitting the tail
// of each chunk at the head of the next so boundary content is never lost at a
// hard cut. Token counting is a whitespace-word heuristic: deterministic, and
// honoring the configured bounds, but not tokenizer-exact.
//
// The same input always yields the same output.
package chunk

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Default chunking parameters.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// separators, in descending semantic strength. A final word-level split
// applies when none of these produce small enough pieces.
var separators = []string{"\n\n", "\n", ". "}

// Span is one chunk of source text. WordStart/WordEnd locate the span within
// the document's whitespace-word sequence, which lets transcript chunks be
// anchored back to segment timestamps.
type Span struct {
	Text      string
	WordStart int // offset of the first word in the document word sequence
	WordEnd   int // offset one past the last word
}

// Splitter produces overlapping token-bounded spans.
type Splitter struct {
	maxTokens     int
	overlapTokens int
}

// NewSplitter creates a Splitter. overlapTokens must leave forward progress:
// it has to be smaller than maxTokens.
func NewSplitter(maxTokens, overlapTokens int) (*Splitter, error) {
	if maxTokens < 1 {
		return nil, fmt.Errorf("maxTokens must be positive, got %d", maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("overlapTokens must be in [0, maxTokens), got %d", overlapTokens)
	}
	return &Splitter{maxTokens: maxTokens, overlapTokens: overlapTokens}, nil
}

// CountTokens returns the token count heuristic used by the splitter.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// atom is a byte range into the source text holding at most maxTokens tokens.
type atom struct {
	start, end int
	tokens     int
}

// Split splits text into ordered spans. Empty or all-whitespace text yields
// nil (a no-op for callers, not an error). Text within the token budget
// yields exactly one span.
func (s *Splitter) Split(text string) []Span {
	if CountTokens(text) == 0 {
		return nil
	}

	atoms := s.atomize(text, 0, separators)

	// Word offsets: atoms partition the text, so the offset of an atom's first
	// word is the sum of the token counts of all atoms before it.
	wordStart := make([]int, len(atoms))
	sum := 0
	for i, a := range atoms {
		wordStart[i] = sum
		sum += a.tokens
	}

	var spans []Span
	i := 0
	for i < len(atoms) {
		// Greedy packing up to the budget.
		j := i
		tokens := 0
		for j < len(atoms) && tokens+atoms[j].tokens <= s.maxTokens {
			tokens += atoms[j].tokens
			j++
		}
		if j == i {
			// Single oversize atom; atomize should prevent this, but never stall.
			j = i + 1
			tokens = atoms[i].tokens
		}

		spans = append(spans, Span{
			Text:      strings.TrimSpace(text[atoms[i].start:atoms[j-1].end]),
			WordStart: wordStart[i],
			WordEnd:   wordStart[i] + tokens,
		})

		if j >= len(atoms) {
			break
		}

		// Start the next chunk overlapTokens before the end of this one,
		// stepping back over whole atoms.
		k := j
		back := 0
		for k > i+1 && back+atoms[k-1].tokens <= s.overlapTokens {
			back += atoms[k-1].tokens
			k--
		}
		i = k
	}

	return spans
}

// atomize recursively splits text[base:] into atoms of at most maxTokens
// tokens, preferring the strongest separator that applies.
func (s *Splitter) atomize(text string, base int, seps []string) []atom {
	if n := CountTokens(text); n <= s.maxTokens {
		if n == 0 {
			return nil
		}
		return []atom{{start: base, end: base + len(text), tokens: n}}
	}

	if len(seps) == 0 {
		return splitWords(text, base, s.maxTokens)
	}

	parts := splitKeep(text, seps[0])
	if len(parts) == 1 {
		return s.atomize(text, base, seps[1:])
	}

	var atoms []atom
	for _, p := range parts {
		atoms = append(atoms, s.atomize(p.text, base+p.offset, seps[1:])...)
	}
	return atoms
}

// part is a piece of text with its byte offset in the parent string.
type part struct {
	text   string
	offset int
}

// splitKeep splits text on sep, keeping the separator attached to the
// preceding piece so that the pieces reassemble to the original text.
func splitKeep(text, sep string) []part {
	var parts []part
	offset := 0
	for {
		idx := strings.Index(text[offset:], sep)
		if idx < 0 {
			break
		}
		end := offset + idx + len(sep)
		parts = append(parts, part{text: text[offset:end], offset: offset})
		offset = end
	}
	if offset < len(text) {
		parts = append(parts, part{text: text[offset:], offset: offset})
	}
	if len(parts) == 0 {
		return []part{{text: text}}
	}
	return parts
}

// splitWords is the last-resort split: groups of at most maxTokens
// whitespace-delimited words.
func splitWords(text string, base, maxTokens int) []atom {
	var atoms []atom
	inWord := false
	wordCount := 0
	start := -1
	end := -1

	flush := func() {
		if wordCount > 0 {
			atoms = append(atoms, atom{start: base + start, end: base + end, tokens: wordCount})
			wordCount = 0
			start = -1
		}
	}

	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && wordCount == maxTokens {
				flush()
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			wordCount++
			if start < 0 {
				start = i
			}
		}
		end = i + utf8.RuneLen(r)
	}
	flush()
	return atoms
}
