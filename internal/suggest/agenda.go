package suggest

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// MaxAgendaPoints caps the number of drafted discussion points.
const MaxAgendaPoints = 8

// agendaTopK excerpts of past notes feed the agenda draft.
const agendaTopK = 12

// bulletPrefix strips list markers the model tends to emit despite being
// told not to.
var bulletPrefix = regexp.MustCompile(`^[\-\*•.\d)(]+\s*`)

// AgendaPoints drafts up to MaxAgendaPoints short discussion points for a
// meeting, grounded only in the meeting's already-indexed content. Returns
// nil when nothing is indexed yet.
func (e *Engine) AgendaPoints(ctx context.Context, meetingID int64, title string) ([]string, error) {
	if meetingID == 0 {
		return nil, fmt.Errorf("meeting id is required")
	}

	hint := strings.TrimSpace(title)
	query := "meeting agenda"
	if hint != "" {
		query = "Agenda: " + hint
	}

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding agenda query: %w", err)
	}

	filter := vecindex.Filter{MeetingID: meetingID, IndexVersion: e.cfg.IndexVersion}
	matches, err := e.searcher.Query(ctx, vector, filter, agendaTopK)
	if err != nil {
		return nil, fmt.Errorf("searching past notes: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	sections := make([]string, len(matches))
	for i, m := range matches {
		sections[i] = fmt.Sprintf("[Source: %s] %s", m.Payload.Kind, m.Payload.Text)
	}

	if hint == "" {
		hint = "N/A"
	}
	prompt := "You are preparing concise discussion points for a meeting.\n" +
		"Use ONLY the PAST NOTES below. Do not add new information or assumptions.\n" +
		"If the notes do not support a point, do not include it.\n" +
		"Return 5-8 short points (max 14 words each), one per line, no numbering.\n\n" +
		"MEETING TITLE: " + hint + "\n\n" +
		"PAST NOTES:\n" + strings.Join(sections, "\n\n")

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerateTimeout)
	raw, err := e.generator.Generate(genCtx, prompt)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("drafting agenda points: %w", err)
	}
	return parsePoints(raw, MaxAgendaPoints), nil
}

// parsePoints splits the model output into clean one-line points, stripping
// bullets and numbering. A non-empty response that yields no parseable lines
// comes back as a single point rather than nothing.
func parsePoints(text string, maxPoints int) []string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned := strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if cleaned != "" {
			points = append(points, cleaned)
		}
		if len(points) >= maxPoints {
			break
		}
	}
	if len(points) == 0 && strings.TrimSpace(text) != "" {
		points = []string{strings.TrimSpace(text)}
	}
	return points
}
