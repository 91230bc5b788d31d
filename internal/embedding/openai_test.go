package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingsRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

// fakeEmbeddings serves /embeddings, answering data items in reverse order
// to check that the backend restores input order.
func fakeEmbeddings(t *testing.T, dim int, status *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if code := status.Swap(0); code != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}

		var req embeddingsRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, dim, req.Dimensions)

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(len(req.Input[i]))
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
}

func TestOpenAIBackend_BatchesAndKeepsOrder(t *testing.T) {
	var status atomic.Int32
	srv := fakeEmbeddings(t, 8, &status)
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Dimension: 8, BatchSize: 2})
	require.NoError(t, err)

	vecs, err := b.EmbedBatch(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
}

func TestOpenAIBackend_RetriesRateLimit(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusTooManyRequests)
	srv := fakeEmbeddings(t, 4, &status)
	defer srv.Close()

	b, err := NewOpenAIBackend(OpenAIConfig{APIKey: "test", BaseURL: srv.URL, Dimension: 4})
	require.NoError(t, err)

	vecs, err := b.EmbedBatch(context.Background(), []string{"rent"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
}

func TestOpenAILoader_FailsOnAuthError(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusUnauthorized)
	srv := fakeEmbeddings(t, 4, &status)
	defer srv.Close()

	svc := NewService(OpenAILoader(OpenAIConfig{APIKey: "bad", BaseURL: srv.URL, Dimension: 4}), 4, nil)
	err := svc.Ready(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	// the failed probe consumed the error status; the next call loads fine
	require.NoError(t, svc.Ready(context.Background()))
}

func TestNewOpenAIBackend_RequiresKey(t *testing.T) {
	_, err := NewOpenAIBackend(OpenAIConfig{Dimension: 4})
	assert.Error(t, err)
}
