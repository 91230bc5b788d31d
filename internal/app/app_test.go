package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/legally-rag/internal/config"
	"github.com/bull/legally-rag/internal/rag"
)

func testConfig() *config.Config {
	return &config.Config{
		EmbeddingProvider:  config.EmbeddingLocal,
		EmbeddingDimension: 128,
		VectorStore:        config.StoreMemory,
		QdrantPort:         6334,
		ChunkSize:          500,
		ChunkOverlap:       100,
		MinContentLength:   50,
		MatchThreshold:     0.3,
		MaxChunks:          5,
		InsertBatchSize:    10,
	}
}

func TestNew_LocalStack(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Answers, "no generation key configured")
	assert.NotNil(t, a.Conversations)

	text := strings.Repeat("The security deposit must be refunded within thirty days of vacating. ", 10)
	res, err := a.RAG.Ingest(ctx, "lease", "user-1", text, rag.IngestOptions{})
	require.NoError(t, err)
	assert.Positive(t, res.Chunks)

	block, err := a.RAG.Retrieve(ctx, "when is the security deposit refunded within thirty days", "user-1", "", 0)
	require.NoError(t, err)
	assert.Contains(t, block, "security deposit")

	n, err := a.RAG.Status(ctx, "user-1", "lease")
	require.NoError(t, err)
	assert.Equal(t, uint64(res.Chunks), n)
}

func TestNew_WithGenerationKey(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationAPIKey = "test-key"
	cfg.GenerationBaseURL = "http://127.0.0.1:1"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Answers)
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "not a url"

	_, err := New(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "REDIS_URL")
}

func TestCacheNamespace(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "hashing:128", cacheNamespace(cfg))

	cfg.EmbeddingProvider = config.EmbeddingOpenAI
	cfg.EmbeddingModel = "text-embedding-3-small"
	assert.Equal(t, "text-embedding-3-small:128", cacheNamespace(cfg))
}
