package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultOpenAIModel is the embedding model used when none is configured.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute against tokens-per-minute limits.
	DefaultBatchSize = 100
)

// OpenAIConfig configures an OpenAI-compatible embeddings endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty means api.openai.com
	Model     string
	Dimension int // requested output size; text-embedding-3 models can shorten vectors
	BatchSize int
}

// OpenAIBackend embeds text through the OpenAI embeddings API.
// Requests are batched and retried with exponential backoff on HTTP 429.
type OpenAIBackend struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

// NewOpenAIBackend creates a backend without contacting the endpoint.
func NewOpenAIBackend(cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key not set")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are handled here so 429s back off consistently
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	return &OpenAIBackend{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// OpenAILoader returns a Loader that builds an OpenAIBackend and probes it
// once so bad credentials or a wrong dimension surface at load time.
func OpenAILoader(cfg OpenAIConfig) Loader {
	return func(ctx context.Context) (Backend, error) {
		b, err := NewOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
		probe, err := b.EmbedBatch(ctx, []string{"ping"})
		if err != nil {
			return nil, fmt.Errorf("probe embeddings endpoint: %w", err)
		}
		if len(probe) != 1 {
			return nil, fmt.Errorf("probe returned %d vectors", len(probe))
		}
		if len(probe[0]) != b.dimension {
			return nil, fmt.Errorf("endpoint returned %d-dimensional vectors, want %d", len(probe[0]), b.dimension)
		}
		return b, nil
	}
}

// Dimension returns the vector size requested from the endpoint.
func (b *OpenAIBackend) Dimension() int { return b.dimension }

// EmbedBatch embeds texts in batches of the configured size.
func (b *OpenAIBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += b.batchSize {
		end := min(i+b.batchSize, len(texts))

		vecs, err := b.embedWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vecs...)
	}
	return all, nil
}

func (b *OpenAIBackend) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32

	operation := func() error {
		resp, err := b.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:          openai.EmbeddingModel(b.model),
			Dimensions:     openai.Int(int64(b.dimension)),
			EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
		}

		// the API does not promise to keep input order
		vecs = make([][]float32, len(texts))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(texts) {
				return backoff.Permanent(fmt.Errorf("embedding index %d out of range", d.Index))
			}
			vecs[d.Index] = toFloat32(d.Embedding)
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(eb, ctx)); err != nil {
		return nil, err
	}
	return vecs, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
