package storage

// DocumentChunk is one embedded slice of a document. ChunkIndex is contiguous
// from 0 within a DocumentID and Embedding has the store's fixed dimension.
type DocumentChunk struct {
	ID         string // UUID, assigned on insert when empty
	DocumentID string
	OwnerID    string
	ChunkIndex uint32
	Content    string
	Embedding  []float32
	Metadata   map[string]any
}

// ScoredChunk is a search hit. Similarity is cosine similarity in [-1, 1].
type ScoredChunk struct {
	Chunk      *DocumentChunk
	Similarity float32
}

// SearchQuery scopes a similarity search. OwnerID is mandatory; DocumentID
// narrows the search to one document when set.
type SearchQuery struct {
	Vector     []float32
	OwnerID    string
	DocumentID string
	TopK       int
	Threshold  float32
}

// DefaultCollection is the Qdrant collection holding all chunks.
const DefaultCollection = "document_chunks"

// DefaultBatchSize caps how many chunks go into one write request.
const DefaultBatchSize = 10
