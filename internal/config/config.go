// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bull/legally-rag/internal/chunker"
)

const (
	EmbeddingLocal  = "local"
	EmbeddingOpenAI = "openai"

	StoreMemory = "memory"
	StoreQdrant = "qdrant"
)

// Config holds every setting read from the environment.
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string

	EmbeddingProvider  string
	EmbeddingModel     string
	EmbeddingDimension int

	GenerationAPIKey  string
	GenerationBaseURL string
	ChatModel         string

	VectorStore      string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string

	RedisURL          string
	EmbeddingCacheTTL time.Duration

	ChunkSize        int
	ChunkOverlap     int
	MinContentLength int
	MatchThreshold   float64
	MaxChunks        int
	InsertBatchSize  int

	StreamIdleTimeout time.Duration

	Port       string
	ServerMode bool
	LogLevel   slog.Level
	// MCPOwnerID scopes MCP tool calls over stdio, where no user header exists.
	MCPOwnerID string

	GitHubToken string
}

// Load reads the environment, applies defaults and validates the result.
// Values that fail to parse are reported together, each naming its key.
func Load() (*Config, error) {
	var p parser
	cfg := &Config{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		EmbeddingProvider:  strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingLocal)),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimension: p.getInt("EMBEDDING_DIMENSION", 384),

		GenerationAPIKey:  getEnv("GENERATION_API_KEY", os.Getenv("OPENAI_API_KEY")),
		GenerationBaseURL: os.Getenv("GENERATION_BASE_URL"),
		ChatModel:         getEnv("CHAT_MODEL", "google/gemini-2.5-flash"),

		VectorStore:      strings.ToLower(getEnv("VECTOR_STORE", StoreMemory)),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       p.getInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "document_chunks"),

		RedisURL:          os.Getenv("REDIS_URL"),
		EmbeddingCacheTTL: p.getDuration("EMBEDDING_CACHE_TTL", 24*time.Hour),

		ChunkSize:        p.getInt("CHUNK_SIZE", chunker.DefaultChunkSize),
		ChunkOverlap:     p.getInt("CHUNK_OVERLAP", chunker.DefaultOverlap),
		MinContentLength: p.getInt("MIN_CONTENT_LENGTH", 50),
		MatchThreshold:   p.getFloat("MATCH_THRESHOLD", 0.3),
		MaxChunks:        p.getInt("MAX_CHUNKS", 5),
		InsertBatchSize:  p.getInt("INSERT_BATCH_SIZE", 10),

		StreamIdleTimeout: p.getDuration("STREAM_IDLE_TIMEOUT", 30*time.Second),

		Port:       getEnv("PORT", "8080"),
		ServerMode: p.getBool("SERVER_MODE", false),
		LogLevel:   p.getLevel("LOG_LEVEL", slog.LevelInfo),
		MCPOwnerID: getEnv("MCP_OWNER_ID", "local"),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	switch c.EmbeddingProvider {
	case EmbeddingLocal:
	case EmbeddingOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q", EmbeddingLocal, EmbeddingOpenAI, c.EmbeddingProvider))
	}
	if c.EmbeddingDimension <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.EmbeddingDimension))
	}

	switch c.VectorStore {
	case StoreMemory, StoreQdrant:
	default:
		errs = append(errs, fmt.Errorf("VECTOR_STORE must be %q or %q, got %q", StoreMemory, StoreQdrant, c.VectorStore))
	}
	if c.QdrantPort <= 0 || c.QdrantPort > 65535 {
		errs = append(errs, fmt.Errorf("QDRANT_PORT out of range: %d", c.QdrantPort))
	}

	if _, err := chunker.New(c.ChunkSize, c.ChunkOverlap); err != nil {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE/CHUNK_OVERLAP: %w", err))
	}
	if c.MinContentLength < 0 {
		errs = append(errs, fmt.Errorf("MIN_CONTENT_LENGTH must not be negative, got %d", c.MinContentLength))
	}
	if c.MatchThreshold < -1 || c.MatchThreshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be in [-1, 1], got %v", c.MatchThreshold))
	}
	if c.MaxChunks <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CHUNKS must be positive, got %d", c.MaxChunks))
	}
	if c.InsertBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("INSERT_BATCH_SIZE must be positive, got %d", c.InsertBatchSize))
	}
	if c.StreamIdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("STREAM_IDLE_TIMEOUT must be positive, got %s", c.StreamIdleTimeout))
	}
	return errors.Join(errs...)
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.LogLevel}))
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// parser collects parse failures so they are reported in one go.
type parser struct {
	errs []error
}

func (p *parser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (p *parser) getInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return i
}

func (p *parser) getFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return f
}

func (p *parser) getBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return b
}

func (p *parser) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return d
}

func (p *parser) getLevel(key string, defaultValue slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		p.fail(key, v, err)
		return defaultValue
	}
	return l
}
