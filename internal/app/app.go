// Package app builds the service components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bull/legally-rag/internal/answer"
	"github.com/bull/legally-rag/internal/config"
	"github.com/bull/legally-rag/internal/conversation"
	"github.com/bull/legally-rag/internal/embedding"
	"github.com/bull/legally-rag/internal/generation"
	"github.com/bull/legally-rag/internal/rag"
	"github.com/bull/legally-rag/internal/storage"
)

// ErrGenerationDisabled is returned by features that need a chat model when
// no generation API key is configured.
var ErrGenerationDisabled = errors.New("generation is not configured: set GENERATION_API_KEY or OPENAI_API_KEY")

// App holds the wired components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Embeddings    *embedding.Service
	Store         *storage.Store
	RAG           *rag.Orchestrator
	Conversations conversation.Store
	Answers       *answer.Assembler // nil without a generation key

	redis *redis.Client
}

// New wires every component. Connections to Qdrant are made eagerly; the
// embedding backend is loaded on first use.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	a.Embeddings = embedding.NewService(embeddingLoader(cfg), cfg.EmbeddingDimension, logger)
	var provider embedding.Provider = a.Embeddings
	if cfg.RedisURL != "" {
		rdb, err := newRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		a.redis = rdb
		provider = embedding.NewCachedProvider(provider, rdb, embedding.CacheConfig{
			TTL:       cfg.EmbeddingCacheTTL,
			Namespace: cacheNamespace(cfg),
		}, logger)
	}

	index, err := newIndex(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = storage.NewStore(index, storage.StoreOptions{
		Dimension: cfg.EmbeddingDimension,
		BatchSize: cfg.InsertBatchSize,
		Logger:    logger,
	})

	a.RAG, err = rag.New(provider, a.Store, rag.Options{
		ChunkSize:        cfg.ChunkSize,
		Overlap:          cfg.ChunkOverlap,
		MinContentLength: cfg.MinContentLength,
		MatchThreshold:   float32(cfg.MatchThreshold),
		MaxChunks:        cfg.MaxChunks,
	}, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Conversations = conversation.NewMemoryStore()

	if cfg.GenerationAPIKey == "" {
		logger.Warn("no generation API key, chat and analysis are disabled")
		return a, nil
	}
	client, err := generation.NewOpenAIClient(generation.OpenAIConfig{
		APIKey:  cfg.GenerationAPIKey,
		BaseURL: cfg.GenerationBaseURL,
		Model:   cfg.ChatModel,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	a.Answers = answer.New(client, a.Conversations, answer.Options{IdleTimeout: cfg.StreamIdleTimeout}, logger)
	return a, nil
}

// Close releases network connections.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	return errors.Join(errs...)
}

func embeddingLoader(cfg *config.Config) embedding.Loader {
	if cfg.EmbeddingProvider == config.EmbeddingOpenAI {
		return embedding.OpenAILoader(embedding.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return embedding.LocalLoader(cfg.EmbeddingDimension)
}

// cacheNamespace keeps vectors from different models or dimensions apart.
func cacheNamespace(cfg *config.Config) string {
	model := "hashing"
	if cfg.EmbeddingProvider == config.EmbeddingOpenAI {
		model = cfg.EmbeddingModel
	}
	return fmt.Sprintf("%s:%d", model, cfg.EmbeddingDimension)
}

func newRedis(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		// cache errors fall through to the provider, so keep going
		logger.Warn("redis unreachable, embedding cache will miss", "error", err)
	}
	return rdb, nil
}

func newIndex(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.VectorIndex, error) {
	if cfg.VectorStore != config.StoreQdrant {
		return storage.NewMemoryIndex(), nil
	}
	idx, err := storage.NewQdrantIndex(ctx, storage.QdrantConfig{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		UseTLS:     cfg.QdrantAPIKey != "", // hosted clusters only accept keys over TLS
		Collection: cfg.QdrantCollection,
		Dimension:  cfg.EmbeddingDimension,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open qdrant index: %w", err)
	}
	return idx, nil
}
