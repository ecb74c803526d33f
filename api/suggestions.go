package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/suggest"
)

// Suggester surfaces prior-meeting content for an upcoming meeting.
type Suggester interface {
	Suggest(ctx context.Context, ownerID, excludeMeetingID int64, title, agenda string) ([]suggest.Suggestion, error)
	AgendaPoints(ctx context.Context, meetingID int64, title string) ([]string, error)
}

// SuggestionHandler handles suggestion and agenda-point endpoints.
type SuggestionHandler struct {
	suggester Suggester
	logger    log.Logger
}

// NewSuggestionHandler creates a new suggestion handler.
func NewSuggestionHandler(suggester Suggester, logger log.Logger) *SuggestionHandler {
	return &SuggestionHandler{suggester: suggester, logger: logger}
}

// RegisterRoutes registers suggestion routes on the given mux.
func (h *SuggestionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/suggestions", h.suggestions)
	mux.HandleFunc("POST /api/meetings/{id}/agenda-points", h.agendaPoints)
}

// SuggestionResponse is the JSON shape of one prior-meeting excerpt.
type SuggestionResponse struct {
	MeetingID    int64   `json:"meeting_id"`
	MeetingTitle string  `json:"meeting_title,omitempty"`
	Kind         string  `json:"kind"`
	DocumentName string  `json:"document_name,omitempty"`
	Excerpt      string  `json:"excerpt"`
	Score        float64 `json:"score"`
	StartSec     *int    `json:"start_sec,omitempty"`
	EndSec       *int    `json:"end_sec,omitempty"`
}

// suggestions returns related excerpts from the owner's prior meetings.
// Query parameters: owner_id (required), title and/or agenda (at least one),
// exclude_meeting_id (optional).
func (h *SuggestionHandler) suggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID, err := strconv.ParseInt(q.Get("owner_id"), 10, 64)
	if err != nil || ownerID < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}
	excludeID, _ := strconv.ParseInt(q.Get("exclude_meeting_id"), 10, 64)

	title, agenda := q.Get("title"), q.Get("agenda")
	if title == "" && agenda == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title or agenda is required")
		return
	}

	suggestions, err := h.suggester.Suggest(r.Context(), ownerID, excludeID, title, agenda)
	if err != nil {
		h.logger.Error("failed to build suggestions", "owner_id", ownerID, "error", err)
		writeError(w, http.StatusBadGateway, "suggestions_failed",
			"failed to build suggestions, please retry")
		return
	}

	resp := make([]SuggestionResponse, len(suggestions))
	for i, s := range suggestions {
		resp[i] = SuggestionResponse{
			MeetingID:    s.MeetingID,
			MeetingTitle: s.MeetingTitle,
			Kind:         s.Kind,
			DocumentName: s.DocumentName,
			Excerpt:      s.Excerpt,
			Score:        s.Score,
			StartSec:     s.StartSec,
			EndSec:       s.EndSec,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"suggestions": resp,
		"total":       len(resp),
	})
}

// AgendaPointsRequest is the request body for drafting agenda points.
type AgendaPointsRequest struct {
	Title string `json:"title"`
}

// agendaPoints drafts discussion points for a meeting from its indexed notes.
func (h *SuggestionHandler) agendaPoints(w http.ResponseWriter, r *http.Request) {
	meetingID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req AgendaPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	points, err := h.suggester.AgendaPoints(r.Context(), meetingID, req.Title)
	if err != nil {
		h.logger.Error("failed to draft agenda points", "meeting_id", meetingID, "error", err)
		writeError(w, http.StatusBadGateway, "agenda_failed",
			"failed to draft agenda points, please retry")
		return
	}
	if points == nil {
		points = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
		"total":  len(points),
	})
}
