package generation

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// DefaultModel is the chat model requested when none is configured.
const DefaultModel = "google/gemini-2.5-flash"

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIClient streams chat completions.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a client. The SDK's own retries are disabled so
// that rate limits reach the user as a distinct error instead of a long stall.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("generation api key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	return &OpenAIClient{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Stream sends req and returns its delta stream. An HTTP error status is
// reported here, before any delta, as a classified *Error.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request) (Stream, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: buildMessages(req),
	})
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, Classify(err)
	}
	return &openAIStream{stream: stream}, nil
}

func buildMessages(req *Request) []openai.ChatCompletionMessageParamUnion {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+2)
	if req.SystemInstruction != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemInstruction))
	}
	if req.ContextBlock != "" {
		msgs = append(msgs, openai.SystemMessage(RenderContext(req.ContextBlock)))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	delta  string
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		s.delta = chunk.Choices[0].Delta.Content
		return true
	}
	return false
}

func (s *openAIStream) Delta() string { return s.delta }

func (s *openAIStream) Err() error { return Classify(s.stream.Err()) }

func (s *openAIStream) Close() error { return s.stream.Close() }
