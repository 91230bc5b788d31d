// Package answer assembles chat prompts from history and retrieved context,
// drives the generation stream and delivers incremental output.
package answer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bull/legally-rag/internal/conversation"
	"github.com/bull/legally-rag/internal/generation"
)

const (
	// DefaultIdleTimeout ends a stream that stops producing deltas.
	DefaultIdleTimeout = 30 * time.Second

	// DefaultMaxAnalysisTokens bounds the document text sent for analysis.
	DefaultMaxAnalysisTokens = 16000
)

// EventKind distinguishes stream events.
type EventKind int

const (
	EventDelta EventKind = iota
	EventDone
	EventError
)

// Event is one item of an answer stream. A stream always ends with exactly
// one EventDone or EventError unless the caller cancels it.
//
// For EventDelta Text is the new fragment, for EventDone the whole answer and
// for EventError the message to show the user.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Turn is one user question in a conversation.
type Turn struct {
	OwnerID        string
	ConversationID string // answers are persisted here when set
	History        []generation.Message
	Question       string
	Context        string // retrieved excerpts, may be empty
	DocumentName   string
	Language       string // en, ta or hi
}

// Options configures an Assembler.
type Options struct {
	SystemPrompt      string
	IdleTimeout       time.Duration
	MaxAnalysisTokens int
}

// Assembler turns Turns into generation requests and streams the answers.
type Assembler struct {
	client        generation.Client
	conversations conversation.Store
	opts          Options
	logger        *slog.Logger
}

// New creates an Assembler. conversations may be nil, in which case nothing
// is persisted.
func New(client generation.Client, conversations conversation.Store, opts Options, logger *slog.Logger) *Assembler {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.MaxAnalysisTokens <= 0 {
		opts.MaxAnalysisTokens = DefaultMaxAnalysisTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		client:        client,
		conversations: conversations,
		opts:          opts,
		logger:        logger,
	}
}

// BuildRequest assembles the generation request for turn.
func (a *Assembler) BuildRequest(turn Turn) *generation.Request {
	msgs := make([]generation.Message, 0, len(turn.History)+1)
	msgs = append(msgs, turn.History...)
	if turn.Question != "" {
		msgs = append(msgs, generation.Message{Role: generation.RoleUser, Content: turn.Question})
	}
	return &generation.Request{
		SystemInstruction: systemInstruction(a.opts.SystemPrompt, turn.DocumentName, turn.Language),
		ContextBlock:      turn.Context,
		Messages:          msgs,
	}
}

// Stream starts answering turn. Errors before the first delta, such as rate
// limits, are returned directly. Cancelling ctx stops the upstream stream
// and closes the channel without persisting anything.
func (a *Assembler) Stream(ctx context.Context, turn Turn) (<-chan Event, error) {
	var persist func(context.Context, string) error
	if a.conversations != nil && turn.ConversationID != "" {
		persist = func(ctx context.Context, text string) error {
			if turn.Question != "" {
				if _, err := a.conversations.AddMessage(ctx, turn.ConversationID, generation.RoleUser, turn.Question); err != nil {
					return err
				}
			}
			_, err := a.conversations.AddMessage(ctx, turn.ConversationID, generation.RoleAssistant, text)
			return err
		}
	}
	return a.run(ctx, a.BuildRequest(turn), persist)
}

// AnalysisRequest asks for a structured analysis of one document.
type AnalysisRequest struct {
	DocumentName string
	Text         string
	Language     string
}

// Analyze streams a structured analysis of the document. Long documents are
// truncated to the configured token budget.
func (a *Assembler) Analyze(ctx context.Context, req AnalysisRequest) (<-chan Event, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("document text is empty")
	}
	text, cut := truncate(req.Text, a.opts.MaxAnalysisTokens)
	if cut {
		a.logger.Warn("truncating document for analysis",
			"document", req.DocumentName, "max_tokens", a.opts.MaxAnalysisTokens)
	}

	name := req.DocumentName
	if name == "" {
		name = "Untitled document"
	}
	genReq := &generation.Request{
		SystemInstruction: systemInstruction(analysisPrompt, "", req.Language),
		Messages: []generation.Message{{
			Role:    generation.RoleUser,
			Content: "Document name: " + name + "\n\nDocument content:\n" + text,
		}},
	}
	return a.run(ctx, genReq, nil)
}

func (a *Assembler) run(ctx context.Context, req *generation.Request, persist func(context.Context, string) error) (<-chan Event, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	upstream, err := a.client.Stream(streamCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan Event, 16)
	go a.pump(ctx, streamCtx, cancel, upstream, out, persist)
	return out, nil
}

// pump forwards deltas from upstream to out. The reader goroutine owns
// upstream; cancelling streamCtx is how pump makes it stop.
func (a *Assembler) pump(ctx, streamCtx context.Context, cancel context.CancelFunc,
	upstream generation.Stream, out chan<- Event, persist func(context.Context, string) error) {
	defer close(out)
	defer cancel()

	deltas := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(deltas)
		defer upstream.Close()
		for upstream.Next() {
			select {
			case deltas <- upstream.Delta():
			case <-streamCtx.Done():
				readErr <- streamCtx.Err()
				return
			}
		}
		readErr <- upstream.Err()
	}()

	send := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	finish := func(text string) {
		if persist != nil {
			if err := persist(context.WithoutCancel(ctx), text); err != nil {
				a.logger.Error("failed to persist answer", "error", err)
			}
		}
		send(Event{Kind: EventDone, Text: text})
	}

	var answer strings.Builder
	idle := time.NewTimer(a.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("answer stream cancelled", "received", answer.Len())
			return

		case delta, ok := <-deltas:
			if !ok {
				if err := <-readErr; err != nil {
					if ctx.Err() != nil {
						return
					}
					err = generation.Classify(err)
					a.logger.Warn("answer stream failed", "error", err)
					send(Event{Kind: EventError, Text: generation.UserMessage(err), Err: err})
					return
				}
				finish(answer.String())
				return
			}
			answer.WriteString(delta)
			if !send(Event{Kind: EventDelta, Text: delta}) {
				return
			}
			idle.Reset(a.opts.IdleTimeout)

		case <-idle.C:
			a.logger.Warn("answer stream idle, treating as complete",
				"timeout", a.opts.IdleTimeout, "received", answer.Len())
			cancel()
			finish(answer.String())
			return
		}
	}
}

// Handlers receives stream events in callback form.
type Handlers struct {
	OnDelta func(text string)
	OnDone  func(answer string)
	OnError func(message string)
}

// Consume drains events into h and returns the stream's error, if any.
// Nil handlers are skipped.
func Consume(events <-chan Event, h Handlers) error {
	for ev := range events {
		switch ev.Kind {
		case EventDelta:
			if h.OnDelta != nil {
				h.OnDelta(ev.Text)
			}
		case EventDone:
			if h.OnDone != nil {
				h.OnDone(ev.Text)
			}
		case EventError:
			if h.OnError != nil {
				h.OnError(ev.Text)
			}
			return ev.Err
		}
	}
	return nil
}
