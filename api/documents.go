package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/extract"
	"github.com/meetscribe/meetscribe/internal/ingest"
	"github.com/meetscribe/meetscribe/internal/log"
)

// Request size limits.
const (
	// MaxDocumentBytes bounds the raw text of a registered document.
	MaxDocumentBytes = 10 << 20 // 10 MiB
	// MaxUploadBytes bounds an uploaded file.
	MaxUploadBytes = 20 << 20 // 20 MiB
)

// DocumentStore is the corpus surface the document endpoints need.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *corpus.SourceDocument) (int64, error)
	GetDocument(ctx context.Context, id int64) (*corpus.SourceDocument, error)
}

// Preparer runs the indexing pipeline for one document.
type Preparer interface {
	Prepare(ctx context.Context, docID int64, force bool) (*ingest.Result, error)
}

// DocumentHandler handles document registration and indexing endpoints.
type DocumentHandler struct {
	store    DocumentStore
	preparer Preparer
	logger   log.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(store DocumentStore, preparer Preparer, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{store: store, preparer: preparer, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.create)
	mux.HandleFunc("POST /api/documents/upload", h.upload)
	mux.HandleFunc("GET /api/documents/{id}", h.get)
	mux.HandleFunc("POST /api/documents/{id}/prepare", h.prepare)
}

// CreateDocumentRequest is the request body for registering a document.
// Transcripts carry segments; uploads carry plain text.
type CreateDocumentRequest struct {
	MeetingID    int64            `json:"meeting_id"`
	OwnerID      int64            `json:"owner_id"`
	Kind         string           `json:"kind"`
	Name         string           `json:"name"`
	MeetingTitle string           `json:"meeting_title"`
	Text         string           `json:"text"`
	Segments     []corpus.Segment `json:"segments,omitempty"`
}

// DocumentResponse is the JSON shape of a document's indexing status.
type DocumentResponse struct {
	ID           int64      `json:"id"`
	MeetingID    int64      `json:"meeting_id"`
	Kind         string     `json:"kind"`
	Name         string     `json:"name,omitempty"`
	MeetingTitle string     `json:"meeting_title,omitempty"`
	Status       string     `json:"status"`
	IndexVersion int        `json:"index_version"`
	ChunkCount   int        `json:"chunk_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func documentResponse(doc *corpus.SourceDocument) DocumentResponse {
	resp := DocumentResponse{
		ID:           doc.ID,
		MeetingID:    doc.MeetingID,
		Kind:         string(doc.Kind),
		Name:         doc.Name,
		MeetingTitle: doc.MeetingTitle,
		Status:       string(doc.Status),
		IndexVersion: doc.IndexVersion,
		ChunkCount:   doc.ChunkCount,
		ProcessedAt:  doc.ProcessedAt,
		CreatedAt:    doc.CreatedAt,
	}
	if doc.ErrorMessage != nil {
		resp.ErrorMessage = *doc.ErrorMessage
	}
	return resp
}

// create registers a document from JSON.
func (h *DocumentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxDocumentBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.MeetingID == 0 || req.OwnerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "meeting_id and owner_id are required")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	id, err := h.store.CreateDocument(r.Context(), &corpus.SourceDocument{
		MeetingID:    req.MeetingID,
		OwnerID:      req.OwnerID,
		Kind:         corpus.DocumentKind(req.Kind),
		Name:         req.Name,
		MeetingTitle: req.MeetingTitle,
		RawText:      req.Text,
		Segments:     req.Segments,
	})
	if err != nil {
		h.logger.Error("failed to create document", "error", err)
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load created document", "document_id", id, "error", err)
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse(doc))
}

// upload registers a document from a multipart file upload. The file's text
// is extracted server-side based on its extension.
func (h *DocumentHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid multipart form")
		return
	}

	meetingID, err := strconv.ParseInt(r.FormValue("meeting_id"), 10, 64)
	if err != nil || meetingID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "meeting_id is required")
		return
	}
	ownerID, err := strconv.ParseInt(r.FormValue("owner_id"), 10, 64)
	if err != nil || ownerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner_id is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read file")
		return
	}

	text, err := extract.Text(header.Filename, data)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedType) {
			writeError(w, http.StatusUnsupportedMediaType, "unsupported_type", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "extraction_failed", err.Error())
		return
	}

	id, err := h.store.CreateDocument(r.Context(), &corpus.SourceDocument{
		MeetingID:    meetingID,
		OwnerID:      ownerID,
		Kind:         corpus.KindUpload,
		Name:         header.Filename,
		MeetingTitle: r.FormValue("meeting_title"),
		RawText:      text,
	})
	if err != nil {
		h.logger.Error("failed to create uploaded document", "error", err)
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse(doc))
}

// get returns a document's indexing status.
func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	doc, err := h.store.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("failed to load document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load document")
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(doc))
}

// PrepareResponse is the result of an indexing run.
type PrepareResponse struct {
	DocumentID int64 `json:"document_id"`
	ChunkCount int   `json:"chunk_count"`
	Skipped    bool  `json:"skipped"`
}

// prepare runs the indexing pipeline for a document. ?force=true re-indexes
// even when the document is already embedded at the current version.
func (h *DocumentHandler) prepare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"

	res, err := h.preparer.Prepare(r.Context(), id, force)
	if err != nil {
		if errors.Is(err, corpus.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		h.logger.Error("indexing failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "indexing_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, PrepareResponse{
		DocumentID: res.DocumentID,
		ChunkCount: res.ChunkCount,
		Skipped:    res.Skipped,
	})
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}
	return id, true
}
