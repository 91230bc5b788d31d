package storage

import (
	"cmp"
	"context"
	"slices"
)

// VectorIndex is the persistence boundary behind Store. Implementations must
// never return a chunk owned by anyone other than the query's OwnerID, and
// must return hits with Similarity >= Threshold ordered as rank does.
type VectorIndex interface {
	// Upsert writes one batch of chunks.
	Upsert(ctx context.Context, chunks []*DocumentChunk) error
	Search(ctx context.Context, q SearchQuery) ([]ScoredChunk, error)
	// DeleteDocument removes all chunks of documentID. An empty ownerID
	// matches every owner.
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	// Count returns the number of chunks for ownerID, optionally narrowed to
	// documentID.
	Count(ctx context.Context, ownerID, documentID string) (uint64, error)
	Health(ctx context.Context) error
	Close() error
}

// rank orders hits by similarity descending, then chunk index ascending, then
// document ID, and keeps at most topK.
func rank(hits []ScoredChunk, topK int) []ScoredChunk {
	slices.SortStableFunc(hits, func(a, b ScoredChunk) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Chunk.ChunkIndex, b.Chunk.ChunkIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID)
	})
	if topK >= 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
