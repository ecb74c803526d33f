// Package ingest orchestrates document indexing: chunk, embed, upsert.
//
// Indexing is idempotent and resumable. A document already embedded at the
// current index version is a no-op; a document whose embedding step failed
// keeps its chunks and, at the same index version, resumes from embedding on
// the next run. Concurrent
// runs for the same document serialize on a per-document advisory lock, and
// deterministic vector ids make duplicate upserts harmless.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meetscribe/meetscribe/internal/chunk"
	"github.com/meetscribe/meetscribe/internal/corpus"
	"github.com/meetscribe/meetscribe/internal/log"
	"github.com/meetscribe/meetscribe/internal/vecindex"
)

// DocumentStore is the corpus surface the indexer needs.
type DocumentStore interface {
	WithDocumentLock(ctx context.Context, docID int64, fn func(tx pgx.Tx) error) error
	GetDocumentTx(ctx context.Context, tx pgx.Tx, id int64) (*corpus.SourceDocument, error)
	ReplaceChunks(ctx context.Context, tx pgx.Tx, docID int64, version int, chunks []corpus.Chunk) error
	ListChunks(ctx context.Context, docID int64) ([]corpus.Chunk, error)
	MarkEmbedded(ctx context.Context, docID int64, version int) error
	MarkFailed(ctx context.Context, docID int64, msg string) error
}

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore is the vector index surface the indexer needs.
type VectorStore interface {
	Upsert(ctx context.Context, entries []vecindex.Entry) error
	Delete(ctx context.Context, filter vecindex.Filter) (int64, error)
}

// Result summarizes one indexing run.
type Result struct {
	DocumentID int64
	ChunkCount int
	// Skipped is true when the document was already embedded at the current
	// index version and force was not set.
	Skipped bool
}

// Indexer drives a document through chunking, embedding, and vector upsert.
type Indexer struct {
	store    DocumentStore
	embedder Embedder
	vectors  VectorStore
	splitter *chunk.Splitter
	version  int
	logger   log.Logger
}

// New creates an Indexer writing vectors at the given index version.
func New(store DocumentStore, embedder Embedder, vectors VectorStore,
	splitter *chunk.Splitter, version int, logger log.Logger) (*Indexer, error) {
	if store == nil || embedder == nil || vectors == nil || splitter == nil {
		return nil, fmt.Errorf("store, embedder, vectors, and splitter are required")
	}
	if version < 1 {
		return nil, fmt.Errorf("index version must be positive, got %d", version)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		splitter: splitter,
		version:  version,
		logger:   logger,
	}, nil
}

// Prepare indexes one document. force re-chunks and re-embeds even when the
// document is already embedded at the current version.
//
// The run has two phases. Phase one holds the per-document lock: it decides
// whether chunking is needed and swaps the chunk set transactionally. Phase
// two embeds and upserts outside the lock; embedding failures leave the
// document chunked-but-failed so the next run resumes at embedding.
func (ix *Indexer) Prepare(ctx context.Context, docID int64, force bool) (*Result, error) {
	var (
		doc     *corpus.SourceDocument
		chunks  []corpus.Chunk
		skipped bool
		rechunk bool
	)

	err := ix.store.WithDocumentLock(ctx, docID, func(tx pgx.Tx) error {
		var err error
		doc, err = ix.store.GetDocumentTx(ctx, tx, docID)
		if err != nil {
			return err
		}

		if !force && doc.Status == corpus.StatusEmbedded && doc.IndexVersion == ix.version {
			skipped = true
			return nil
		}

		// A prior run that chunked but failed to embed resumes at embedding,
		// but only when the chunks were cut at the current version: their
		// stored vector ids encode the version, so resuming across a bump
		// would upsert under ids no chunk row references.
		resumable := (doc.Status == corpus.StatusChunked ||
			(doc.Status == corpus.StatusFailed && doc.ChunkCount > 0 && doc.ChunkedAt != nil)) &&
			doc.IndexVersion == ix.version
		if !force && resumable {
			return nil
		}

		rechunk = true
		chunks = ix.buildChunks(doc)
		return ix.store.ReplaceChunks(ctx, tx, docID, ix.version, chunks)
	})
	if err != nil {
		return nil, fmt.Errorf("preparing document %d: %w", docID, err)
	}
	if skipped {
		ix.logger.Debug("document already indexed", "document_id", docID, "version", ix.version)
		return &Result{DocumentID: docID, ChunkCount: doc.ChunkCount, Skipped: true}, nil
	}

	// Old vectors go away before new ones arrive. Version bumps change the
	// deterministic ids, so an upsert alone would leave stale entries behind.
	if rechunk || doc.IndexVersion != ix.version {
		if _, err := ix.vectors.Delete(ctx, vecindex.Filter{DocumentID: docID}); err != nil {
			return nil, fmt.Errorf("deleting stale vectors for document %d: %w", docID, err)
		}
	}

	if !rechunk {
		chunks, err = ix.store.ListChunks(ctx, docID)
		if err != nil {
			return nil, fmt.Errorf("loading chunks for document %d: %w", docID, err)
		}
	}

	if len(chunks) == 0 {
		// Nothing to embed; the document is trivially indexed.
		if err := ix.store.MarkEmbedded(ctx, docID, ix.version); err != nil {
			return nil, err
		}
		return &Result{DocumentID: docID, ChunkCount: 0}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		embedErr := fmt.Errorf("embedding document %d: %w", docID, err)
		if markErr := ix.store.MarkFailed(ctx, docID, embedErr.Error()); markErr != nil {
			ix.logger.Error("failed to record embedding failure",
				"document_id", docID, "error", markErr)
		}
		return nil, embedErr
	}

	entries := make([]vecindex.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = vecindex.Entry{
			ID:     ix.vectorID(doc, c.Ordinal),
			Vector: vectors[i],
			Payload: vecindex.Payload{
				Kind:         string(doc.Kind),
				MeetingID:    doc.MeetingID,
				MeetingTitle: doc.MeetingTitle,
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				OwnerID:      doc.OwnerID,
				Ordinal:      c.Ordinal,
				Text:         vecindex.TruncateText(c.Text),
				StartSec:     c.StartSec,
				EndSec:       c.EndSec,
				IndexVersion: ix.version,
			},
		}
	}

	if err := ix.vectors.Upsert(ctx, entries); err != nil {
		upsertErr := fmt.Errorf("upserting vectors for document %d: %w", docID, err)
		if markErr := ix.store.MarkFailed(ctx, docID, upsertErr.Error()); markErr != nil {
			ix.logger.Error("failed to record upsert failure",
				"document_id", docID, "error", markErr)
		}
		return nil, upsertErr
	}

	if err := ix.store.MarkEmbedded(ctx, docID, ix.version); err != nil {
		return nil, err
	}

	ix.logger.Info("document indexed",
		"document_id", docID,
		"chunks", len(chunks),
		"version", ix.version,
		"rechunked", rechunk,
	)
	return &Result{DocumentID: docID, ChunkCount: len(chunks)}, nil
}

// buildChunks splits the document text and, for transcripts, anchors each
// chunk to segment timestamps. Vector ids are assigned here so the relational
// rows and the vector entries always agree.
func (ix *Indexer) buildChunks(doc *corpus.SourceDocument) []corpus.Chunk {
	var text string
	var segments []chunk.Segment
	if doc.Kind == corpus.KindTranscript && len(doc.Segments) > 0 {
		// Chunk the concatenated segment texts so word offsets line up with
		// the timeline.
		segments = make([]chunk.Segment, len(doc.Segments))
		parts := make([]string, len(doc.Segments))
		for i, seg := range doc.Segments {
			segments[i] = chunk.Segment{Text: seg.Text, StartSec: seg.StartSec, EndSec: seg.EndSec}
			parts[i] = seg.Text
		}
		// Space-joined so the last word of one segment never fuses with the
		// first word of the next; word counts stay aligned with the timeline.
		text = strings.Join(parts, " ")
	} else {
		text = doc.RawText
	}

	spans := ix.splitter.Split(text)
	if len(spans) == 0 {
		return nil
	}

	chunks := make([]corpus.Chunk, len(spans))
	var ranges []chunk.TimeRange
	if segments != nil {
		ranges = chunk.Anchor(spans, segments)
	}
	for i, sp := range spans {
		c := corpus.Chunk{
			DocumentID: doc.ID,
			Ordinal:    i,
			Text:       sp.Text,
			VectorID:   ix.vectorID(doc, i),
		}
		if ranges != nil && ranges[i].OK {
			start, end := ranges[i].StartSec, ranges[i].EndSec
			c.StartSec, c.EndSec = &start, &end
		}
		chunks[i] = c
	}
	return chunks
}

// vectorID derives a stable vector id from the document identity, chunk
// ordinal, and index version. Re-running indexing overwrites rather than
// duplicates.
func (ix *Indexer) vectorID(doc *corpus.SourceDocument, ordinal int) string {
	name := fmt.Sprintf("%s:%d:%d:v%d", doc.Kind, doc.ID, ordinal, ix.version)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
