//go:build integration

package embedding

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	Provider
	calls atomic.Int32
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.calls.Add(int32(len(texts)))
	return p.Provider.EmbedBatch(ctx, texts)
}

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCachedProvider_Integration(t *testing.T) {
	rdb := setupRedis(t)
	ctx := context.Background()

	next := &countingProvider{Provider: NewService(LocalLoader(16), 16, nil)}
	ns := "test:" + time.Now().Format("150405.000000")
	cached := NewCachedProvider(next, rdb, CacheConfig{TTL: time.Minute, Namespace: ns}, nil)

	first, err := cached.EmbedBatch(ctx, []string{"alpha clause", "beta clause"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())

	second, err := cached.EmbedBatch(ctx, []string{"beta clause", "gamma clause", "alpha clause"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), next.calls.Load(), "only gamma should miss")

	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])
}
