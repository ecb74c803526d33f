package answer

import (
	"fmt"
	"strings"

	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// noContextPrompt replaces the grounding instruction when retrieval comes
// back empty. The model states the gap instead of fabricating an answer.
const noContextPrompt = `You are a helpful assistant answering questions from meeting transcripts and uploaded documents.

No relevant sections were found in this meeting's indexed content for the user's question.
Briefly tell the user you could not find relevant information in the available documents or transcripts. Do not invent or assume any information.`

// systemPrompt builds the grounding instruction with the retrieved sections
// inlined. The model is told to answer only from these sections. Transcript
// chunks carry their time window so answers can point at the timeline.
func systemPrompt(matches []vecindex.Match) string {
	sections := make([]string, len(matches))
	for i, m := range matches {
		docName := m.Payload.DocumentName
		if docName == "" {
			docName = "N/A"
		}
		tag := fmt.Sprintf("Source: %s, Chunk %d, Doc: %s",
			m.Payload.Kind, m.Payload.Ordinal, docName)
		if m.Payload.StartSec != nil && m.Payload.EndSec != nil {
			tag += fmt.Sprintf(", Time: %ds-%ds", *m.Payload.StartSec, *m.Payload.EndSec)
		}
		sections[i] = fmt.Sprintf("[%s] %s", tag, m.Payload.Text)
	}

	return fmt.Sprintf(`You are a helpful assistant answering questions from meeting transcripts and uploaded documents.

You have access to relevant parts of a transcript provided below. Use this context to answer user questions accurately and concisely.
If the information is not in the provided context, say you don't have that information from the transcript.

RELEVANT TRANSCRIPT SECTIONS:
%s

Answer the user's question based ONLY on the provided transcript sections. Be specific and cite which part of the transcript you're referring to when possible.`,
		strings.Join(sections, "\n\n"))
}

// buildPrompt flattens the system instruction, prior turns (chronological),
// and the new question into the single-string prompt layout the generation
// model expects.
func buildPrompt(system string, history []corpus.ConversationTurn, question string) string {
	parts := []string{"SYSTEM:", strings.TrimSpace(system)}

	if len(history) > 0 {
		parts = append(parts, "\nCONVERSATION:")
		for _, turn := range history {
			parts = append(parts,
				"USER: "+strings.TrimSpace(turn.Question),
				"ASSISTANT: "+strings.TrimSpace(turn.Answer),
			)
		}
	}

	parts = append(parts,
		"\nUSER QUESTION:",
		strings.TrimSpace(question),
		"\nASSISTANT:",
	)
	return strings.Join(parts, "\n")
}
