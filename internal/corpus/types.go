// Package corpus persists source documents, their chunks, and meeting
// conversation history in PostgreSQL.
package corpus

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DocumentKind distinguishes meeting transcripts from uploaded files.
type DocumentKind string

const (
	KindTranscript DocumentKind = "transcript"
	KindUpload     DocumentKind = "upload"
)

// Status is the indexing state of a source document. Transitions only move
// forward within one indexing run: unprocessed -> chunked -> embedded, with
// failed reachable from any state.
type Status string

const (
	StatusUnprocessed Status = "unprocessed"
	StatusChunked     Status = "chunked"
	StatusEmbedded    Status = "embedded"
	StatusFailed      Status = "failed"
)

// Segment is one timed piece of a transcript as delivered by the recorder.
// Stored as JSONB on the document; nil for uploads.
type Segment struct {
	Text     string `json:"text"`
	StartSec int    `json:"start_sec"`
	EndSec   int    `json:"end_sec"`
}

// SourceDocument is a transcript or upload attached to a meeting.
type SourceDocument struct {
	ID           int64
	MeetingID    int64
	OwnerID      int64
	Kind         DocumentKind
	Name         string
	MeetingTitle string
	RawText      string
	Segments     []Segment
	Status       Status
	IndexVersion int
	ChunkCount   int
	ErrorMessage *string
	ChunkedAt    *time.Time
	EmbeddedAt   *time.Time
	ProcessedAt  *time.Time
	CreatedAt    time.Time
}

// Chunk is one ordered piece of a source document. VectorID links it to the
// vector store entry; empty until the chunk has been embedded at least once.
type Chunk struct {
	ID         int64
	DocumentID int64
	Ordinal    int
	Text       string
	StartSec   *int
	EndSec     *int
	VectorID   string
	CreatedAt  time.Time
}

// ConversationTurn is one immutable question/answer exchange in a meeting.
type ConversationTurn struct {
	ID               int64
	MeetingID        int64
	UserID           int64
	Question         string
	Answer           string
	EvidenceChunkIDs []string
	CreatedAt        time.Time
}
