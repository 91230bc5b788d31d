package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// vectorName is the named vector holding chunk embeddings.
const vectorName = "content"

// QdrantConfig configures QdrantIndex.
type QdrantConfig struct {
	Host       string
	Port       int // gRPC port, usually 6334
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
}

// QdrantIndex is a VectorIndex backed by a Qdrant collection using cosine
// distance, with keyword indexes on owner and document for filtered search.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrantIndex connects to Qdrant, waits for it to become healthy and makes
// sure the collection exists. It fails with ErrStoreUnreachable when the
// server does not answer within the retry window.
func NewQdrantIndex(ctx context.Context, cfg QdrantConfig, logger *slog.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant: vector dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{
		client:     client,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		logger:     logger,
	}

	if err := idx.healthCheckWithRetry(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (q *QdrantIndex) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, newRetryBackoff(ctx))
}

// Health performs a single health check.
func (q *QdrantIndex) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return errors.New("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the collection and its payload indexes if the
// collection does not exist yet. An existing collection with a different
// vector size is rejected with ErrDimensionMismatch.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return q.checkDimension(ctx)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := q.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	q.logger.Info("created qdrant collection", "collection", q.collection, "dimension", q.dimension)
	return nil
}

func (q *QdrantIndex) checkDimension(ctx context.Context) error {
	info, err := q.client.GetCollectionInfo(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to get collection: %w", err)
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()[vectorName]
	if params == nil {
		return fmt.Errorf("collection %s has no %q vector", q.collection, vectorName)
	}
	if params.GetSize() != uint64(q.dimension) {
		return fmt.Errorf("%w: collection %s stores %d-dimensional vectors, want %d",
			ErrDimensionMismatch, q.collection, params.GetSize(), q.dimension)
	}
	return nil
}

// createPayloadIndexes indexes every field used in filters. Without them
// filtered search degrades to a full scan.
func (q *QdrantIndex) createPayloadIndexes(ctx context.Context) error {
	fields := map[string]qdrant.FieldType{
		"owner_id":    qdrant.FieldType_FieldTypeKeyword,
		"document_id": qdrant.FieldType_FieldTypeKeyword,
		"chunk_index": qdrant.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range fields {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Upsert writes chunks as one request, retrying transient failures.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []*DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload, err := chunkPayload(c)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		points[i] = &qdrant.PointStruct{
			Id: qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				vectorName: qdrant.NewVector(c.Embedding...),
			}),
			Payload: payload,
		}
	}

	return backoff.Retry(func() error {
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}, newRetryBackoff(ctx))
}

func chunkPayload(c *DocumentChunk) (map[string]*qdrant.Value, error) {
	fields := map[string]any{
		"document_id": c.DocumentID,
		"owner_id":    c.OwnerID,
		"chunk_index": int64(c.ChunkIndex),
		"content":     c.Content,
	}
	if len(c.Metadata) > 0 {
		fields["metadata"] = c.Metadata
	}
	payload, err := qdrant.TryValueMap(fields)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return payload, nil
}

// Search runs a filtered nearest-neighbour query scoped to the owner.
func (q *QdrantIndex) Search(ctx context.Context, sq SearchQuery) ([]ScoredChunk, error) {
	if sq.OwnerID == "" || sq.TopK <= 0 {
		return nil, nil
	}

	using := vectorName
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(sq.Vector...),
		Using:          &using,
		Filter:         scopeFilter(sq.OwnerID, sq.DocumentID),
		Limit:          qdrant.PtrOf(uint64(sq.TopK)),
		ScoreThreshold: qdrant.PtrOf(sq.Threshold),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, ScoredChunk{
			Chunk:      chunkFromPayload(r.GetId().GetUuid(), r.GetPayload()),
			Similarity: r.GetScore(),
		})
	}
	return rank(hits, sq.TopK), nil
}

// DeleteDocument deletes by filter, so deleting an empty document succeeds.
func (q *QdrantIndex) DeleteDocument(ctx context.Context, ownerID, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
	}
	if ownerID != "" {
		filter.Must = append(filter.Must, qdrant.NewMatch("owner_id", ownerID))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks of %s: %w", documentID, err)
	}
	return nil
}

// Count returns the exact number of matching points.
func (q *QdrantIndex) Count(ctx context.Context, ownerID, documentID string) (uint64, error) {
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         scopeFilter(ownerID, documentID),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

func scopeFilter(ownerID, documentID string) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatch("owner_id", ownerID)}
	if documentID != "" {
		must = append(must, qdrant.NewMatch("document_id", documentID))
	}
	return &qdrant.Filter{Must: must}
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value) *DocumentChunk {
	c := &DocumentChunk{
		ID:         id,
		DocumentID: payload["document_id"].GetStringValue(),
		OwnerID:    payload["owner_id"].GetStringValue(),
		ChunkIndex: uint32(payload["chunk_index"].GetIntegerValue()),
		Content:    payload["content"].GetStringValue(),
	}
	if meta := payload["metadata"].GetStructValue(); meta != nil {
		c.Metadata = make(map[string]any, len(meta.GetFields()))
		for k, v := range meta.GetFields() {
			c.Metadata[k] = fromValue(v)
		}
	}
	return c
}

// fromValue converts a payload value back into plain Go values.
func fromValue(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, f := range kind.StructValue.GetFields() {
			out[k] = fromValue(f)
		}
		return out
	case *qdrant.Value_ListValue:
		out := make([]any, 0, len(kind.ListValue.GetValues()))
		for _, item := range kind.ListValue.GetValues() {
			out = append(out, fromValue(item))
		}
		return out
	default:
		return nil
	}
}
