// Package conversation is the persistence boundary for chat history.
package conversation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bull/legally-rag/internal/generation"
)

// ErrNotFound is returned for unknown conversations or ones owned by someone else.
var ErrNotFound = errors.New("conversation not found")

// Conversation is a chat thread, optionally about one document.
type Conversation struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	DocumentID string    `json:"document_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Message is a persisted conversation turn.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Role           generation.Role `json:"role"`
	Content        string          `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Store persists conversations and their messages.
type Store interface {
	Create(ctx context.Context, ownerID, title, documentID string) (*Conversation, error)
	// List returns the owner's conversations, most recently updated first.
	List(ctx context.Context, ownerID string) ([]*Conversation, error)
	Get(ctx context.Context, ownerID, id string) (*Conversation, error)
	AddMessage(ctx context.Context, conversationID string, role generation.Role, content string) (*Message, error)
	// Messages returns the conversation's messages, oldest first.
	Messages(ctx context.Context, conversationID string) ([]*Message, error)
	Delete(ctx context.Context, ownerID, id string) error
	UpdateTitle(ctx context.Context, ownerID, id, title string) error
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	messages      map[string][]*Message
	now           func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
		now:           time.Now,
	}
}

func (s *MemoryStore) Create(_ context.Context, ownerID, title, documentID string) (*Conversation, error) {
	if ownerID == "" {
		return nil, errors.New("owner is required")
	}
	now := s.now()
	c := &Conversation{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Title:      title,
		DocumentID: documentID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()

	out := *c
	return &out, nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Conversation
	for _, c := range s.conversations {
		if c.OwnerID == ownerID {
			cp := *c
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Conversation) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	out := *c
	return &out, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, conversationID string, role generation.Role, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	c.UpdatedAt = now

	out := *m
	return &out, nil
}

func (s *MemoryStore) Messages(_ context.Context, conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[conversationID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.conversations, id)
	delete(s.messages, id)
	return nil
}

func (s *MemoryStore) UpdateTitle(_ context.Context, ownerID, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.OwnerID != ownerID {
		return ErrNotFound
	}
	c.Title = title
	c.UpdatedAt = s.now()
	return nil
}

const maxTitleLength = 50

// GenerateTitle derives a conversation title from its first message:
// whitespace collapsed, cut at 50 characters with an ellipsis.
func GenerateTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) <= maxTitleLength {
		return title
	}
	return strings.TrimSpace(string(runes[:maxTitleLength])) + "..."
}
