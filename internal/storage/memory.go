package storage

import (
	"context"
	"maps"
	"sync"

	"github.com/bull/legally-rag/internal/embedding"
)

// MemoryIndex is a brute-force, in-process VectorIndex. It suits tests and
// corpora small enough to scan on every query.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks map[string]*DocumentChunk
}

// NewMemoryIndex creates an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{chunks: make(map[string]*DocumentChunk)}
}

// Upsert stores copies of chunks, replacing any with the same ID.
func (m *MemoryIndex) Upsert(ctx context.Context, chunks []*DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = clone(c)
	}
	return nil
}

// Search scans every chunk of the owner.
func (m *MemoryIndex) Search(ctx context.Context, q SearchQuery) ([]ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.OwnerID == "" || q.TopK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []ScoredChunk
	for _, c := range m.chunks {
		if c.OwnerID != q.OwnerID {
			continue
		}
		if q.DocumentID != "" && c.DocumentID != q.DocumentID {
			continue
		}
		sim := embedding.Cosine(q.Vector, c.Embedding)
		if sim < q.Threshold {
			continue
		}
		hits = append(hits, ScoredChunk{Chunk: clone(c), Similarity: sim})
	}
	return rank(hits, q.TopK), nil
}

// DeleteDocument removes the document's chunks. Unknown documents are a no-op.
func (m *MemoryIndex) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.chunks {
		if c.DocumentID == documentID && (ownerID == "" || c.OwnerID == ownerID) {
			delete(m.chunks, id)
		}
	}
	return nil
}

// Count counts the owner's chunks, optionally for a single document.
func (m *MemoryIndex) Count(ctx context.Context, ownerID, documentID string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n uint64
	for _, c := range m.chunks {
		if c.OwnerID == ownerID && (documentID == "" || c.DocumentID == documentID) {
			n++
		}
	}
	return n, nil
}

// Health always succeeds.
func (m *MemoryIndex) Health(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

func clone(c *DocumentChunk) *DocumentChunk {
	out := *c
	out.Embedding = append([]float32(nil), c.Embedding...)
	out.Metadata = maps.Clone(c.Metadata)
	return &out
}
