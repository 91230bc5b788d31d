package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func sseServer(t *testing.T, deltas []string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for i, d := range deltas {
			chunk := map[string]any{
				"id":      "chatcmpl-1",
				"object":  "chat.completion.chunk",
				"created": 1,
				"model":   "test-model",
				"choices": []map[string]any{{
					"index":         0,
					"delta":         map[string]any{"role": "assistant", "content": d},
					"finish_reason": nil,
				}},
			}
			data, _ := json.Marshal(chunk)
			fmt.Fprintf(w, "data: %s\n\n", data)
			if i == 0 {
				// keep-alive style event without content
				fmt.Fprint(w, "data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"test-model\",\"choices\":[]}\n\n")
			}
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
}

func errorServer(status int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
	}))
}

func TestOpenAIClient_StreamsDeltas(t *testing.T) {
	var captured capturedRequest
	srv := sseServer(t, []string{"Under ", "Section 8, ", "you may"}, &captured)
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), &Request{
		SystemInstruction: "You are a legal assistant.",
		ContextBlock:      "[Chunk 1, Relevance: 80.0%]\nNotice period is 30 days.",
		Messages: []Message{
			{Role: RoleUser, Content: "Hi"},
			{Role: RoleAssistant, Content: "Hello"},
			{Role: RoleUser, Content: "What is my notice period?"},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	var got string
	for stream.Next() {
		got += stream.Delta()
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, "Under Section 8, you may", got)

	assert.Equal(t, "test-model", captured.Model)
	assert.True(t, captured.Stream)
	require.Len(t, captured.Messages, 5)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "system", captured.Messages[1].Role)
	assert.Contains(t, captured.Messages[1].Content, "<document_context>")
	assert.Contains(t, captured.Messages[1].Content, "Notice period is 30 days.")
	assert.Equal(t, "user", captured.Messages[2].Role)
	assert.Equal(t, "assistant", captured.Messages[3].Role)
	assert.Equal(t, "What is my notice period?", captured.Messages[4].Content)
}

func TestOpenAIClient_OmitsEmptyContext(t *testing.T) {
	var captured capturedRequest
	srv := sseServer(t, []string{"ok"}, &captured)
	defer srv.Close()

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), &Request{
		SystemInstruction: "instr",
		Messages:          []Message{{Role: RoleUser, Content: "q"}},
	})
	require.NoError(t, err)
	for stream.Next() {
	}
	require.NoError(t, stream.Close())

	require.Len(t, captured.Messages, 2)
	assert.Equal(t, DefaultModel, captured.Model)
}

func TestOpenAIClient_ClassifiesStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   error
		msg    string
	}{
		{http.StatusTooManyRequests, ErrRateLimited, "Rate limits exceeded. Please try again in a moment."},
		{http.StatusPaymentRequired, ErrQuotaExceeded, "Usage limits reached. Please add credits to continue."},
		{http.StatusInternalServerError, ErrFailed, "Failed to get AI response. Please try again."},
		{http.StatusUnauthorized, ErrFailed, "Failed to get AI response. Please try again."},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := errorServer(tc.status)
			defer srv.Close()

			client, err := NewOpenAIClient(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = client.Stream(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "q"}}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			var ge *Error
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tc.status, ge.StatusCode)
			assert.Equal(t, tc.msg, UserMessage(err))
			if tc.status != http.StatusUnauthorized {
				assert.Equal(t, tc.status, HTTPStatus(err))
			}
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))
	assert.ErrorIs(t, Classify(context.Canceled), context.Canceled)

	err := Classify(errors.New("connection refused"))
	assert.ErrorIs(t, err, ErrFailed)

	// already classified errors are kept as they are
	assert.Same(t, err, Classify(err))
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.Error(t, err)
}
