// Package vecindex stores and searches chunk embeddings in a shared pgvector
// table.
//
// All chunks from all meetings live in one collection. Tenant isolation is a
// property of the payload filter, not the schema, so every search and delete
// must carry at least one scope field. An unscoped filter is an error, never
// a full-collection operation.
package vecindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/meetscribe/meetscribe/internal/log"
)

// PayloadTextLimit caps the excerpt carried in a vector payload, in runes.
const PayloadTextLimit = 512

// ErrUnscopedFilter is returned when a filter carries no scope field.
var ErrUnscopedFilter = errors.New("vector filter must be scoped to a meeting, owner, or document")

// Payload is the metadata stored alongside each vector. It carries enough to
// render a citation without a join back to the relational tables.
type Payload struct {
	Kind         string `json:"kind"`
	MeetingID    int64  `json:"meeting_id"`
	MeetingTitle string `json:"meeting_title,omitempty"`
	DocumentID   int64  `json:"document_id"`
	DocumentName string `json:"document_name,omitempty"`
	OwnerID      int64  `json:"owner_id"`
	Ordinal      int    `json:"ordinal"`
	Text         string `json:"text"`
	StartSec     *int   `json:"start_sec,omitempty"`
	EndSec       *int   `json:"end_sec,omitempty"`
	IndexVersion int    `json:"index_version"`
}

// Entry is one vector to upsert.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is one search hit. Score is cosine similarity in [-1, 1], higher is
// closer.
type Match struct {
	ID      string
	Score   float64
	Payload Payload
}

// TruncateText shortens s to PayloadTextLimit runes for payload storage.
func TruncateText(s string) string {
	runes := []rune(s)
	if len(runes) <= PayloadTextLimit {
		return s
	}
	return string(runes[:PayloadTextLimit])
}

// Index is the pgvector-backed vector store.
//
// Index is safe for concurrent use by multiple goroutines.
type Index struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates an Index over pool.
func New(pool *pgxpool.Pool, logger log.Logger) (*Index, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Index{pool: pool, logger: logger}, nil
}

const upsertSQL = `INSERT INTO chunk_vectors (id, embedding, payload)
	VALUES ($1, $2, $3)
	ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`

// Upsert writes entries, replacing embedding and payload for existing ids.
// The batch is sent as one round trip.
func (ix *Index) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload for %s: %w", e.ID, err)
		}
		batch.Queue(upsertSQL, e.ID, pgvector.NewVector(e.Vector), payload)
	}

	br := ix.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting vectors: %w", err)
		}
	}

	ix.logger.Debug("upserted vectors", "count", len(entries))
	return nil
}

// Query returns the limit nearest entries to vector among those matching
// filter, most similar first. Ties in distance break on recency.
func (ix *Index) Query(ctx context.Context, vector []float32, filter Filter, limit int) ([]Match, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	args := []any{pgvector.NewVector(vector)}
	where, args, err := filter.clauses(args)
	if err != nil {
		return nil, err
	}
	args = append(args, limit)

	sql := fmt.Sprintf(`SELECT id, payload, 1 - (embedding <=> $1) AS similarity
		FROM chunk_vectors
		WHERE %s
		ORDER BY embedding <=> $1 ASC, created_at DESC
		LIMIT $%d`, where, len(args))

	rows, err := ix.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m       Match
			payload []byte
		)
		if err := rows.Scan(&m.ID, &payload, &m.Score); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		if err := json.Unmarshal(payload, &m.Payload); err != nil {
			return nil, fmt.Errorf("unmarshaling payload for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}
	return matches, nil
}

// Delete removes all entries matching filter and returns how many went away.
// Deleting by an id list is not supported; reindexing always removes a whole
// document or meeting scope.
func (ix *Index) Delete(ctx context.Context, filter Filter) (int64, error) {
	where, args, err := filter.clauses(nil)
	if err != nil {
		return 0, err
	}

	tag, err := ix.pool.Exec(ctx, "DELETE FROM chunk_vectors WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting vectors: %w", err)
	}

	ix.logger.Debug("deleted vectors", "count", tag.RowsAffected())
	return tag.RowsAffected(), nil
}
