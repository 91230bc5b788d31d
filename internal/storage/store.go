// Package storage persists embedded document chunks and answers
// owner-scoped cosine similarity queries over them.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// StoreOptions configures Store.
type StoreOptions struct {
	// Dimension every embedding must have. Zero disables the check.
	Dimension int
	// BatchSize is the number of chunks per write request.
	BatchSize int
	Logger    *slog.Logger
}

// Store is the vector store used by ingestion and retrieval. It validates
// input, splits writes into bounded batches and enforces the search contract
// on top of any VectorIndex.
type Store struct {
	index     VectorIndex
	dimension int
	batchSize int
	logger    *slog.Logger
}

// NewStore wraps index.
func NewStore(index VectorIndex, opts StoreOptions) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Store{
		index:     index,
		dimension: opts.Dimension,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
	}
}

// Dimension returns the configured embedding dimension.
func (s *Store) Dimension() int { return s.dimension }

// InsertChunks persists chunks in batches. Every chunk is validated before
// the first write. There is no cross-batch transaction: when a batch fails,
// earlier batches stay committed and the returned *WriteError names the
// failing batch.
func (s *Store) InsertChunks(ctx context.Context, chunks []*DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, c := range chunks {
		if c == nil {
			return fmt.Errorf("%w: chunk %d is nil", ErrInvalidChunk, i)
		}
		if c.OwnerID == "" || c.DocumentID == "" {
			return fmt.Errorf("%w: chunk %d has no owner or document", ErrInvalidChunk, i)
		}
		if s.dimension > 0 && len(c.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.dimension)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
	}

	for batch, start := 0, 0; start < len(chunks); batch, start = batch+1, start+s.batchSize {
		end := min(start+s.batchSize, len(chunks))
		if err := s.index.Upsert(ctx, chunks[start:end]); err != nil {
			s.logger.Error("chunk batch insert failed",
				"document_id", chunks[start].DocumentID, "batch", batch, "error", err)
			return &WriteError{Batch: batch, Offset: start, Err: err}
		}
		s.logger.Debug("inserted chunk batch",
			"document_id", chunks[start].DocumentID, "batch", batch, "chunks", end-start)
	}
	return nil
}

// SimilaritySearch returns up to q.TopK of the owner's chunks with similarity
// of at least q.Threshold, best first. An empty owner, a non-positive TopK or
// a document of another owner all yield an empty result rather than an error.
func (s *Store) SimilaritySearch(ctx context.Context, q SearchQuery) ([]ScoredChunk, error) {
	if q.OwnerID == "" || q.TopK <= 0 {
		return nil, nil
	}
	if s.dimension > 0 && len(q.Vector) != s.dimension {
		return nil, &QueryError{Err: fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(q.Vector), s.dimension)}
	}

	hits, err := s.index.Search(ctx, q)
	if err != nil {
		return nil, &QueryError{Err: err}
	}

	// re-check the scope; the index is trusted for speed, not for isolation
	scoped := hits[:0]
	for _, h := range hits {
		if h.Chunk == nil || h.Chunk.OwnerID != q.OwnerID {
			continue
		}
		if q.DocumentID != "" && h.Chunk.DocumentID != q.DocumentID {
			continue
		}
		if h.Similarity < q.Threshold {
			continue
		}
		scoped = append(scoped, h)
	}
	return rank(scoped, q.TopK), nil
}

// DeleteChunks removes every chunk of documentID. Deleting a document without
// chunks succeeds.
func (s *Store) DeleteChunks(ctx context.Context, documentID string) error {
	return s.DeleteOwnedChunks(ctx, "", documentID)
}

// DeleteOwnedChunks is DeleteChunks restricted to one owner's chunks.
func (s *Store) DeleteOwnedChunks(ctx context.Context, ownerID, documentID string) error {
	if documentID == "" {
		return fmt.Errorf("%w: document id is required", ErrInvalidChunk)
	}
	if err := s.index.DeleteDocument(ctx, ownerID, documentID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	s.logger.Debug("deleted chunks", "document_id", documentID, "owner_id", ownerID)
	return nil
}

// Count returns the owner's chunk count, optionally for one document.
func (s *Store) Count(ctx context.Context, ownerID, documentID string) (uint64, error) {
	if ownerID == "" {
		return 0, nil
	}
	return s.index.Count(ctx, ownerID, documentID)
}

// Health reports whether the backing index is reachable.
func (s *Store) Health(ctx context.Context) error {
	if err := s.index.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	return nil
}

// Close releases the backing index.
func (s *Store) Close() error {
	return s.index.Close()
}
