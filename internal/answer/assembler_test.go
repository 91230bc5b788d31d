package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/legally-rag/internal/conversation"
	"github.com/bull/legally-rag/internal/generation"
)

// fakeStream emits deltas, then either ends, fails with err or hangs until
// its context is cancelled.
type fakeStream struct {
	ctx    context.Context
	deltas []string
	err    error
	hang   bool

	i      int
	cur    string
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next() bool {
	if s.i < len(s.deltas) {
		s.cur = s.deltas[s.i]
		s.i++
		return true
	}
	if s.hang {
		<-s.ctx.Done()
		s.err = s.ctx.Err()
	}
	return false
}

func (s *fakeStream) Delta() string { return s.cur }
func (s *fakeStream) Err() error    { return s.err }
func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeClient struct {
	mu        sync.Mutex
	requests  []*generation.Request
	startErr  error
	newStream func(ctx context.Context) *fakeStream
	last      *fakeStream
}

func (c *fakeClient) Stream(ctx context.Context, req *generation.Request) (generation.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.startErr != nil {
		return nil, c.startErr
	}
	s := c.newStream(ctx)
	s.ctx = ctx
	s.closed = make(chan struct{})
	c.last = s
	return s, nil
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func newConversation(t *testing.T, store *conversation.MemoryStore) string {
	t.Helper()
	c, err := store.Create(context.Background(), "alice", "Lease", "")
	require.NoError(t, err)
	return c.ID
}

func TestStream_DeliversDeltasAndPersistsOnDone(t *testing.T) {
	client := &fakeClient{newStream: func(context.Context) *fakeStream {
		return &fakeStream{deltas: []string{"The notice ", "period is ", "30 days."}}
	}}
	store := conversation.NewMemoryStore()
	convID := newConversation(t, store)
	a := New(client, store, Options{}, nil)

	events, err := a.Stream(context.Background(), Turn{
		OwnerID: "alice", ConversationID: convID, Question: "Notice period?",
	})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 4)
	assert.Equal(t, "The notice ", got[0].Text)
	assert.Equal(t, EventDelta, got[2].Kind)
	assert.Equal(t, EventDone, got[3].Kind)
	assert.Equal(t, "The notice period is 30 days.", got[3].Text)

	msgs, err := store.Messages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, generation.RoleUser, msgs[0].Role)
	assert.Equal(t, "Notice period?", msgs[0].Content)
	assert.Equal(t, generation.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "The notice period is 30 days.", msgs[1].Content)
}

func TestStream_StartErrorIsReturned(t *testing.T) {
	client := &fakeClient{startErr: &generation.Error{Kind: generation.ErrRateLimited, StatusCode: 429, Err: errors.New("429")}}
	a := New(client, nil, Options{}, nil)

	events, err := a.Stream(context.Background(), Turn{Question: "q"})
	assert.Nil(t, events)
	assert.ErrorIs(t, err, generation.ErrRateLimited)
}

func TestStream_MidStreamFailure(t *testing.T) {
	client := &fakeClient{newStream: func(context.Context) *fakeStream {
		return &fakeStream{deltas: []string{"partial"}, err: errors.New("connection reset")}
	}}
	store := conversation.NewMemoryStore()
	convID := newConversation(t, store)
	a := New(client, store, Options{}, nil)

	events, err := a.Stream(context.Background(), Turn{ConversationID: convID, Question: "q"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	last := got[1]
	assert.Equal(t, EventError, last.Kind)
	assert.ErrorIs(t, last.Err, generation.ErrFailed)
	assert.Equal(t, generation.UserMessage(last.Err), last.Text)

	msgs, err := store.Messages(context.Background(), convID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "failed answers are not persisted")
}

func TestStream_IdleTimeoutCompletes(t *testing.T) {
	client := &fakeClient{newStream: func(context.Context) *fakeStream {
		return &fakeStream{deltas: []string{"Section 106 ", "applies"}, hang: true}
	}}
	store := conversation.NewMemoryStore()
	convID := newConversation(t, store)
	a := New(client, store, Options{IdleTimeout: 50 * time.Millisecond}, nil)

	events, err := a.Stream(context.Background(), Turn{ConversationID: convID, Question: "q"})
	require.NoError(t, err)

	got := collect(t, events)
	require.NotEmpty(t, got)
	done := got[len(got)-1]
	assert.Equal(t, EventDone, done.Kind)
	assert.Equal(t, "Section 106 applies", done.Text)

	select {
	case <-client.last.closed:
	case <-time.After(time.Second):
		t.Fatal("upstream was not closed after idle timeout")
	}

	msgs, err := store.Messages(context.Background(), convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Section 106 applies", msgs[1].Content)
}

func TestStream_CancelDiscardsPartialAnswer(t *testing.T) {
	client := &fakeClient{newStream: func(context.Context) *fakeStream {
		return &fakeStream{deltas: []string{"first"}, hang: true}
	}}
	store := conversation.NewMemoryStore()
	convID := newConversation(t, store)
	a := New(client, store, Options{IdleTimeout: time.Minute}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.Stream(ctx, Turn{ConversationID: convID, Question: "q"})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, "first", first.Text)
	cancel()

	for ev := range events {
		assert.NotEqual(t, EventDone, ev.Kind)
	}

	select {
	case <-client.last.closed:
	case <-time.After(time.Second):
		t.Fatal("upstream was not closed after cancel")
	}

	msgs, err := store.Messages(context.Background(), convID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestBuildRequest(t *testing.T) {
	a := New(nil, nil, Options{}, nil)
	req := a.BuildRequest(Turn{
		History: []generation.Message{
			{Role: generation.RoleUser, Content: "Hi"},
			{Role: generation.RoleAssistant, Content: "Hello"},
		},
		Question:     "Is this clause valid?",
		Context:      "[Chunk 1, Relevance: 70.0%]\nclause text",
		DocumentName: "rental.pdf",
		Language:     "ta",
	})

	assert.True(t, strings.HasPrefix(req.SystemInstruction, DefaultSystemPrompt))
	assert.Contains(t, req.SystemInstruction, `"rental.pdf"`)
	assert.Contains(t, req.SystemInstruction, "Tamil")
	assert.Equal(t, "[Chunk 1, Relevance: 70.0%]\nclause text", req.ContextBlock)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, generation.Message{Role: generation.RoleUser, Content: "Is this clause valid?"}, req.Messages[2])

	plain := a.BuildRequest(Turn{Question: "q", Language: "en"})
	assert.Equal(t, DefaultSystemPrompt, plain.SystemInstruction)
	assert.Empty(t, plain.ContextBlock)
}

func TestAnalyze_TruncatesLongDocuments(t *testing.T) {
	client := &fakeClient{newStream: func(context.Context) *fakeStream {
		return &fakeStream{deltas: []string{"## Document type\nLease"}}
	}}
	a := New(client, nil, Options{MaxAnalysisTokens: 10}, nil)

	events, err := a.Analyze(context.Background(), AnalysisRequest{
		DocumentName: "lease.pdf",
		Text:         strings.Repeat("x", 100),
		Language:     "hi",
	})
	require.NoError(t, err)

	var answer string
	err = Consume(events, Handlers{OnDone: func(s string) { answer = s }})
	require.NoError(t, err)
	assert.Equal(t, "## Document type\nLease", answer)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Contains(t, req.SystemInstruction, "Hindi")
	assert.Contains(t, req.Messages[0].Content, "lease.pdf")
	assert.Contains(t, req.Messages[0].Content, strings.Repeat("x", 40))
	assert.NotContains(t, req.Messages[0].Content, strings.Repeat("x", 41))

	_, err = a.Analyze(context.Background(), AnalysisRequest{Text: "  "})
	assert.Error(t, err)
}

func TestConsume_Handlers(t *testing.T) {
	events := make(chan Event, 3)
	events <- Event{Kind: EventDelta, Text: "a"}
	events <- Event{Kind: EventDelta, Text: "b"}
	events <- Event{Kind: EventError, Text: "Rate limits exceeded.", Err: generation.ErrRateLimited}
	close(events)

	var deltas []string
	var shown string
	err := Consume(events, Handlers{
		OnDelta: func(s string) { deltas = append(deltas, s) },
		OnError: func(s string) { shown = s },
	})
	assert.ErrorIs(t, err, generation.ErrRateLimited)
	assert.Equal(t, []string{"a", "b"}, deltas)
	assert.Equal(t, "Rate limits exceeded.", shown)
}
