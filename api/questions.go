package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/meetscribe/meetscribe/internal/answer"
	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/log"
)

// Question validation constants.
const (
	MaxQuestionLength   = 4000
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// Asker answers a question about a meeting.
type Asker interface {
	Ask(ctx context.Context, meetingID, userID int64, question string) (*answer.Answer, error)
}

// TurnLister reads a meeting's conversation history.
type TurnLister interface {
	RecentTurns(ctx context.Context, meetingID int64, limit int) ([]corpus.ConversationTurn, error)
}

// QuestionHandler handles question answering and conversation history.
type QuestionHandler struct {
	asker  Asker
	turns  TurnLister
	logger log.Logger
}

// NewQuestionHandler creates a new question handler.
func NewQuestionHandler(asker Asker, turns TurnLister, logger log.Logger) *QuestionHandler {
	return &QuestionHandler{asker: asker, turns: turns, logger: logger}
}

// RegisterRoutes registers question routes on the given mux.
func (h *QuestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/meetings/{id}/questions", h.ask)
	mux.HandleFunc("GET /api/meetings/{id}/conversation", h.conversation)
}

// AskRequest is the request body for asking a question.
type AskRequest struct {
	UserID   int64  `json:"user_id"`
	Question string `json:"question"`
}

// CitationResponse is the JSON shape of one answer citation.
type CitationResponse struct {
	VectorID     string  `json:"vector_id"`
	Score        float64 `json:"score"`
	Kind         string  `json:"kind"`
	MeetingTitle string  `json:"meeting_title,omitempty"`
	DocumentName string  `json:"document_name,omitempty"`
	Ordinal      int     `json:"ordinal"`
	Excerpt      string  `json:"excerpt"`
	StartSec     *int    `json:"start_sec,omitempty"`
	EndSec       *int    `json:"end_sec,omitempty"`
}

// AskResponse is the answer to a question.
type AskResponse struct {
	Answer    string             `json:"answer"`
	Grounded  bool               `json:"grounded"`
	TurnID    int64              `json:"turn_id,omitempty"`
	Citations []CitationResponse `json:"citations,omitempty"`
}

// ask answers a question grounded in the meeting's indexed content.
func (h *QuestionHandler) ask(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "question too long")
		return
	}

	ans, err := h.asker.Ask(r.Context(), meetingID, req.UserID, req.Question)
	if err != nil {
		h.logger.Error("failed to answer question", "meeting_id", meetingID, "error", err)
		writeError(w, http.StatusBadGateway, "answer_failed",
			"failed to answer the question, please retry")
		return
	}

	resp := AskResponse{
		Answer:   ans.Text,
		Grounded: ans.Grounded,
		TurnID:   ans.TurnID,
	}
	for _, c := range ans.Citations {
		resp.Citations = append(resp.Citations, CitationResponse{
			VectorID:     c.VectorID,
			Score:        c.Score,
			Kind:         c.Kind,
			MeetingTitle: c.MeetingTitle,
			DocumentName: c.DocumentName,
			Ordinal:      c.Ordinal,
			Excerpt:      c.Excerpt,
			StartSec:     c.StartSec,
			EndSec:       c.EndSec,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// TurnResponse is the JSON shape of one conversation turn.
type TurnResponse struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// conversation returns a meeting's recent history, oldest first.
// Query parameter limit defaults to 20, max 200.
func (h *QuestionHandler) conversation(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", DefaultHistoryLimit, 1, MaxHistoryLimit)

	turns, err := h.turns.RecentTurns(r.Context(), meetingID, limit)
	if err != nil {
		h.logger.Error("failed to list conversation", "meeting_id", meetingID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list conversation")
		return
	}

	// Storage returns newest first; the transcript view reads top-down.
	resp := make([]TurnResponse, len(turns))
	for i, t := range turns {
		resp[len(turns)-1-i] = TurnResponse{
			ID:        t.ID,
			UserID:    t.UserID,
			Question:  t.Question,
			Answer:    t.Answer,
			CreatedAt: t.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"turns": resp,
		"total": len(resp),
	})
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
