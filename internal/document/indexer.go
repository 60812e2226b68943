package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

// Indexer chunks document text and writes the chunk set to a Store.
type Indexer struct {
	store     Store
	chunkSize int
	now       func() time.Time
	logger    *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithChunkSize sets the size used when Ingest is called with a
// non-positive chunk size.
func WithChunkSize(size int) IndexerOption {
	return func(ix *Indexer) {
		if size > 0 {
			ix.chunkSize = size
		}
	}
}

// WithClock overrides the time source used for chunk timestamps.
func WithClock(now func() time.Time) IndexerOption {
	return func(ix *Indexer) {
		ix.now = now
	}
}

func NewIndexer(store Store, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		store:     store,
		chunkSize: DefaultChunkSize,
		now:       time.Now,
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Ingest replaces the chunk set of documentID with chunks built from text.
// Text without any sentence produces, and stores, an empty set.
func (ix *Indexer) Ingest(ctx context.Context, documentID, text string, chunkSize int) ([]Chunk, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: document id is required", apperrors.ErrInvalidInput)
	}
	if chunkSize <= 0 {
		chunkSize = ix.chunkSize
	}

	start := time.Now()
	chunks := Build(documentID, text, chunkSize, ix.now())
	if err := ix.store.Put(ctx, documentID, chunks); err != nil {
		return nil, fmt.Errorf("ingesting %s: %w", documentID, err)
	}

	ix.logger.Info("document indexed",
		"document_id", documentID,
		"chunks", len(chunks),
		"chunk_size", chunkSize,
		"text_length", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return chunks, nil
}

// Build turns text into the chunk set of a document without storing it.
func Build(documentID, text string, chunkSize int, at time.Time) []Chunk {
	parts := SplitChunks(text, chunkSize)
	stamp := at.UTC().Format(time.RFC3339Nano)
	chunks := make([]Chunk, len(parts))
	for i, content := range parts {
		chunks[i] = Chunk{
			ID:      ChunkID(documentID, i),
			Content: content,
			Metadata: Metadata{
				Page:      PageFor(i),
				Section:   DetectSection(content),
				Timestamp: stamp,
			},
		}
	}
	return chunks
}
