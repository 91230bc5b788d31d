// Package rag ties chunking, embedding and the vector store together into
// document ingestion and context retrieval for chat.
package rag

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bull/legally-rag/internal/chunker"
	"github.com/bull/legally-rag/internal/embedding"
	"github.com/bull/legally-rag/internal/storage"
)

// ErrInvalidInput is returned for missing document or owner IDs.
var ErrInvalidInput = errors.New("invalid input")

// Options tunes ingestion and retrieval.
type Options struct {
	ChunkSize        int
	Overlap          int
	MinContentLength int     // texts shorter than this, in characters, are not ingested
	MatchThreshold   float32 // minimum cosine similarity for retrieved chunks
	MaxChunks        int     // default number of chunks retrieved per query
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        chunker.DefaultChunkSize,
		Overlap:          chunker.DefaultOverlap,
		MinContentLength: 50,
		MatchThreshold:   0.3,
		MaxChunks:        5,
	}
}

// Orchestrator runs ingestion and retrieval.
type Orchestrator struct {
	chunker  *chunker.Chunker
	embedder embedding.Provider
	store    *storage.Store
	opts     Options
	logger   *slog.Logger
}

// New creates an Orchestrator. Invalid chunk parameters fail with
// chunker.ErrInvalidConfig before any work starts.
func New(embedder embedding.Provider, store *storage.Store, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	c, err := chunker.New(opts.ChunkSize, opts.Overlap)
	if err != nil {
		return nil, err
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultOptions().MaxChunks
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		chunker:  c,
		embedder: embedder,
		store:    store,
		opts:     opts,
		logger:   logger,
	}, nil
}

// IngestOptions modifies a single ingestion.
type IngestOptions struct {
	// Replace deletes the document's existing chunks first. Without it,
	// re-ingesting a document duplicates its chunks.
	Replace bool
	// Metadata is copied onto every chunk.
	Metadata map[string]any
}

// IngestResult describes one ingested document.
type IngestResult struct {
	DocumentID string
	Skipped    bool // text was below the minimum content length
	Chunks     int
}

// Ingest chunks, embeds and stores text as documentID owned by ownerID.
// Text shorter than the minimum content length is skipped without error.
// A failure part way leaves earlier batches stored; call again with Replace
// to start over.
func (o *Orchestrator) Ingest(ctx context.Context, documentID, ownerID, text string, opts IngestOptions) (*IngestResult, error) {
	if documentID == "" || ownerID == "" {
		return nil, fmt.Errorf("%w: document and owner are required", ErrInvalidInput)
	}
	result := &IngestResult{DocumentID: documentID}

	if utf8.RuneCountInString(strings.TrimSpace(text)) < o.opts.MinContentLength {
		o.logger.Debug("skipping short document", "document_id", documentID, "length", len(text))
		result.Skipped = true
		return result, nil
	}

	start := time.Now()
	if opts.Replace {
		if err := o.store.DeleteOwnedChunks(ctx, ownerID, documentID); err != nil {
			return nil, fmt.Errorf("replace: %w", err)
		}
	}

	pieces := o.chunker.Split(text)
	vectors, err := o.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	chunks := make([]*storage.DocumentChunk, len(pieces))
	for i, piece := range pieces {
		meta := maps.Clone(opts.Metadata)
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		meta["chunk_size"] = utf8.RuneCountInString(piece)

		chunks[i] = &storage.DocumentChunk{
			DocumentID: documentID,
			OwnerID:    ownerID,
			ChunkIndex: uint32(i),
			Content:    piece,
			Embedding:  vectors[i],
			Metadata:   meta,
		}
	}

	if err := o.store.InsertChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	result.Chunks = len(chunks)
	o.logger.Info("ingested document",
		"document_id", documentID, "owner_id", ownerID,
		"chunks", len(chunks), "duration", time.Since(start))
	return result, nil
}

// Document is one input to IngestAll.
type Document struct {
	ID       string
	OwnerID  string
	Text     string
	Replace  bool
	Metadata map[string]any
}

// FailedDocument names a document IngestAll could not ingest.
type FailedDocument struct {
	DocumentID string
	Reason     string
}

// IngestReport summarizes an IngestAll run.
type IngestReport struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    []FailedDocument
	Chunks    int
	Duration  time.Duration
}

// IngestAll ingests docs one after another. A failing document is recorded
// and does not stop the others; only context cancellation ends the run early.
func (o *Orchestrator) IngestAll(ctx context.Context, docs []Document) *IngestReport {
	start := time.Now()
	report := &IngestReport{Total: len(docs)}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, FailedDocument{DocumentID: doc.ID, Reason: err.Error()})
			continue
		}

		res, err := o.Ingest(ctx, doc.ID, doc.OwnerID, doc.Text, IngestOptions{
			Replace:  doc.Replace,
			Metadata: doc.Metadata,
		})
		if err != nil {
			o.logger.Warn("failed to ingest document", "document_id", doc.ID, "error", err)
			report.Failed = append(report.Failed, FailedDocument{DocumentID: doc.ID, Reason: err.Error()})
			continue
		}
		if res.Skipped {
			report.Skipped++
			continue
		}
		report.Succeeded++
		report.Chunks += res.Chunks
	}

	report.Duration = time.Since(start)
	o.logger.Info("ingestion complete",
		"succeeded", report.Succeeded,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"chunks", report.Chunks,
		"duration", report.Duration,
	)
	return report
}

// Search embeds query and returns matching chunks of the owner, best first.
// maxChunks <= 0 uses the configured default.
func (o *Orchestrator) Search(ctx context.Context, query, ownerID, documentID string, maxChunks int) ([]storage.ScoredChunk, error) {
	if ownerID == "" {
		return nil, nil
	}
	if maxChunks <= 0 {
		maxChunks = o.opts.MaxChunks
	}

	vec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return o.store.SimilaritySearch(ctx, storage.SearchQuery{
		Vector:     vec,
		OwnerID:    ownerID,
		DocumentID: documentID,
		TopK:       maxChunks,
		Threshold:  o.opts.MatchThreshold,
	})
}

// Retrieve returns the context block for query, or "" when no chunk clears
// the similarity threshold.
func (o *Orchestrator) Retrieve(ctx context.Context, query, ownerID, documentID string, maxChunks int) (string, error) {
	hits, err := o.Search(ctx, query, ownerID, documentID, maxChunks)
	if err != nil {
		return "", err
	}
	return FormatContext(hits), nil
}

// ContextFor is Retrieve for the chat path: a failure is logged and yields
// an empty context so the conversation can go on without augmentation.
func (o *Orchestrator) ContextFor(ctx context.Context, query, ownerID, documentID string) string {
	text, err := o.Retrieve(ctx, query, ownerID, documentID, 0)
	if err != nil {
		o.logger.Warn("context retrieval failed, continuing without it",
			"owner_id", ownerID, "document_id", documentID, "error", err)
		return ""
	}
	return text
}

// DeleteDocument removes the owner's chunks of documentID.
func (o *Orchestrator) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	if documentID == "" || ownerID == "" {
		return fmt.Errorf("%w: document and owner are required", ErrInvalidInput)
	}
	return o.store.DeleteOwnedChunks(ctx, ownerID, documentID)
}

// Status returns how many chunks the owner has stored, optionally for one document.
func (o *Orchestrator) Status(ctx context.Context, ownerID, documentID string) (uint64, error) {
	return o.store.Count(ctx, ownerID, documentID)
}

// FormatContext renders hits in document order. Relevance decides which
// chunks are included; the original chunk order decides how they read.
func FormatContext(hits []storage.ScoredChunk) string {
	if len(hits) == 0 {
		return ""
	}

	ordered := slices.Clone(hits)
	slices.SortStableFunc(ordered, func(a, b storage.ScoredChunk) int {
		if c := cmp.Compare(a.Chunk.ChunkIndex, b.Chunk.ChunkIndex); c != 0 {
			return c
		}
		return strings.Compare(a.Chunk.DocumentID, b.Chunk.DocumentID)
	})

	blocks := make([]string, len(ordered))
	for i, h := range ordered {
		blocks[i] = fmt.Sprintf("[Chunk %d, Relevance: %.1f%%]\n%s", i+1, h.Similarity*100, h.Chunk.Content)
	}
	return strings.Join(blocks, "\n\n")
}
