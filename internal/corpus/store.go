package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/meetscribe/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// documentCols is the standard SELECT column list for scanDocument.
const documentCols = `id, meeting_id, owner_id, kind, name, meeting_title, raw_text,
	segments, status, index_version, chunk_count, error_message,
	chunked_at, embedded_at, processed_at, created_at`

// Store persists documents, chunks, and conversation turns.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewStore creates a Store.
func NewStore(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// CreateDocument inserts a new source document in the unprocessed state and
// returns its id.
func (s *Store) CreateDocument(ctx context.Context, doc *SourceDocument) (int64, error) {
	if doc.RawText == "" {
		return 0, fmt.Errorf("document text is required")
	}
	if doc.Kind != KindTranscript && doc.Kind != KindUpload {
		return 0, fmt.Errorf("invalid document kind %q", doc.Kind)
	}

	var segments []byte
	if doc.Segments != nil {
		var err error
		segments, err = json.Marshal(doc.Segments)
		if err != nil {
			return 0, fmt.Errorf("marshaling segments: %w", err)
		}
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO source_documents (meeting_id, owner_id, kind, name, meeting_title, raw_text, segments)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		doc.MeetingID, doc.OwnerID, doc.Kind, doc.Name, doc.MeetingTitle, doc.RawText, segments,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}
	return id, nil
}

// GetDocument fetches one document by id. Returns ErrNotFound if absent.
func (s *Store) GetDocument(ctx context.Context, id int64) (*SourceDocument, error) {
	return getDocument(ctx, s.pool, id)
}

func getDocument(ctx context.Context, q querier, id int64) (*SourceDocument, error) {
	row := q.QueryRow(ctx,
		`SELECT `+documentCols+` FROM source_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return doc, err
}

// ListDocumentsByMeeting returns all documents for a meeting, oldest first.
func (s *Store) ListDocumentsByMeeting(ctx context.Context, meetingID int64) ([]SourceDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentCols+` FROM source_documents WHERE meeting_id = $1 ORDER BY created_at, id`,
		meetingID)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []SourceDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// WithDocumentLock runs fn inside a transaction that holds a per-document
// advisory lock, serializing concurrent indexing of the same document
// without blocking work on other documents. The lock releases on commit or
// rollback.
func (s *Store) WithDocumentLock(ctx context.Context, docID int64, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Warn("transaction rollback failed", "document_id", docID, "error", rbErr)
			}
		}
	}()

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		fmt.Sprintf("document:%d", docID)); err != nil {
		return fmt.Errorf("acquiring document lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// GetDocumentTx fetches a document through an open transaction, typically
// after WithDocumentLock has serialized access.
func (s *Store) GetDocumentTx(ctx context.Context, tx pgx.Tx, id int64) (*SourceDocument, error) {
	return getDocument(ctx, tx, id)
}

// ReplaceChunks atomically swaps a document's chunk set: existing rows go
// away, the new ordered set goes in, and the document moves to the chunked
// state at the given index version. Recording the version here keeps the
// chunk rows' vector ids attributable to the version they were derived from.
// Runs within the caller's transaction so a failure leaves the old chunks in
// place.
func (s *Store) ReplaceChunks(ctx context.Context, tx pgx.Tx, docID int64, version int, chunks []Chunk) error {
	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, docID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	for _, c := range chunks {
		if _, err := tx.Exec(ctx,
			`INSERT INTO chunks (document_id, ordinal, chunk_text, start_sec, end_sec, vector_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			docID, c.Ordinal, c.Text, c.StartSec, c.EndSec, c.VectorID); err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Ordinal, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE source_documents
		 SET status = $2, chunk_count = $3, index_version = $4, chunked_at = now(), error_message = NULL
		 WHERE id = $1`,
		docID, StatusChunked, len(chunks), version); err != nil {
		return fmt.Errorf("marking document chunked: %w", err)
	}
	return nil
}

// ListChunks returns a document's chunks in ordinal order.
func (s *Store) ListChunks(ctx context.Context, docID int64) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, ordinal, chunk_text, start_sec, end_sec, COALESCE(vector_id, ''), created_at
		 FROM chunks WHERE document_id = $1 ORDER BY ordinal`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Text,
			&c.StartSec, &c.EndSec, &c.VectorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// MarkEmbedded records a successful indexing run: the document is embedded
// at the given index version and any previous failure message is cleared.
func (s *Store) MarkEmbedded(ctx context.Context, docID int64, version int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE source_documents
		 SET status = $2, index_version = $3, embedded_at = now(), processed_at = now(), error_message = NULL
		 WHERE id = $1`,
		docID, StatusEmbedded, version)
	if err != nil {
		return fmt.Errorf("marking document embedded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	return nil
}

// MarkFailed records an indexing failure without touching chunk state, so a
// later retry can resume from wherever the run stopped.
func (s *Store) MarkFailed(ctx context.Context, docID int64, msg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE source_documents
		 SET status = $2, error_message = $3, processed_at = now()
		 WHERE id = $1`,
		docID, StatusFailed, msg)
	if err != nil {
		return fmt.Errorf("marking document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", docID, ErrNotFound)
	}
	return nil
}

// scanDocument reads one source_documents row in documentCols order.
func scanDocument(row pgx.Row) (*SourceDocument, error) {
	var (
		doc      SourceDocument
		segments []byte
	)
	if err := row.Scan(
		&doc.ID, &doc.MeetingID, &doc.OwnerID, &doc.Kind, &doc.Name, &doc.MeetingTitle,
		&doc.RawText, &segments, &doc.Status, &doc.IndexVersion, &doc.ChunkCount,
		&doc.ErrorMessage, &doc.ChunkedAt, &doc.EmbeddedAt, &doc.ProcessedAt, &doc.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if len(segments) > 0 {
		if err := json.Unmarshal(segments, &doc.Segments); err != nil {
			return nil, fmt.Errorf("unmarshaling segments: %w", err)
		}
	}
	return &doc, nil
}
