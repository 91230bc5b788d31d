package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheConfig configures CachedProvider.
type CacheConfig struct {
	TTL time.Duration
	// Namespace separates vectors of different models or dimensions.
	Namespace string
}

// DefaultCacheTTL is long because a model's output for a text never changes.
const DefaultCacheTTL = 24 * time.Hour

// CachedProvider stores vectors in Redis keyed by a hash of the text.
// Redis errors are logged and fall through to the wrapped provider.
type CachedProvider struct {
	next   Provider
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewCachedProvider wraps next. A nil rdb disables caching.
func NewCachedProvider(next Provider, rdb redis.Cmdable, cfg CacheConfig, logger *slog.Logger) *CachedProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	prefix := "emb:"
	if cfg.Namespace != "" {
		prefix += cfg.Namespace + ":"
	}
	return &CachedProvider{
		next:   next,
		rdb:    rdb,
		ttl:    cfg.TTL,
		prefix: prefix,
		logger: logger,
	}
}

// Dimension returns the wrapped provider's dimension.
func (c *CachedProvider) Dimension() int { return c.next.Dimension() }

// Embed returns the cached vector for text or computes and caches it.
func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch looks up all texts with one MGET and embeds only the misses.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if c.rdb == nil || len(texts) == 0 {
		return c.next.EmbedBatch(ctx, texts)
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = c.key(t)
	}

	out := make([][]float32, len(texts))
	var missIdx []int

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("embedding cache read failed", "error", err)
		values = nil
	}
	for i := range texts {
		if vec, ok := c.decode(values, i); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return out, nil
	}
	c.logger.Debug("embedding cache miss", "total", len(texts), "uncached", len(missIdx))

	missTexts := make([]string, len(missIdx))
	for j, i := range missIdx {
		missTexts[j] = texts[i]
	}
	fresh, err := c.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	pipe := c.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		data, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("embedding cache write failed", "error", err)
	}
	return out, nil
}

func (c *CachedProvider) decode(values []any, i int) ([]float32, bool) {
	if i >= len(values) || values[i] == nil {
		return nil, false
	}
	s, ok := values[i].(string)
	if !ok {
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(s), &vec); err != nil || len(vec) == 0 {
		return nil, false
	}
	if want := c.next.Dimension(); want > 0 && len(vec) != want {
		return nil, false
	}
	return vec, true
}

func (c *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}
