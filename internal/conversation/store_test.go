package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/legally-rag/internal/generation"
)

func newClockedStore() *MemoryStore {
	s := NewMemoryStore()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := newClockedStore()
	ctx := context.Background()

	first, err := s.Create(ctx, "alice", "Lease questions", "lease")
	require.NoError(t, err)
	second, err := s.Create(ctx, "alice", "Will", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "bob", "Other", "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, first.ID, generation.RoleUser, "What is the notice period?")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, first.ID, generation.RoleAssistant, "Thirty days.")
	require.NoError(t, err)

	list, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID, "most recently updated first")
	assert.Equal(t, second.ID, list[1].ID)

	msgs, err := s.Messages(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, generation.RoleUser, msgs[0].Role)
	assert.Equal(t, "Thirty days.", msgs[1].Content)

	require.NoError(t, s.UpdateTitle(ctx, "alice", second.ID, "Renamed"))
	got, err := s.Get(ctx, "alice", second.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	require.NoError(t, s.Delete(ctx, "alice", first.ID))
	_, err = s.Messages(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_OwnerScoping(t *testing.T) {
	s := newClockedStore()
	ctx := context.Background()

	c, err := s.Create(ctx, "alice", "Private", "")
	require.NoError(t, err)

	_, err = s.Get(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "bob", c.ID), ErrNotFound)
	assert.ErrorIs(t, s.UpdateTitle(ctx, "bob", c.ID, "x"), ErrNotFound)

	_, err = s.AddMessage(ctx, "missing", generation.RoleUser, "hi")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerateTitle(t *testing.T) {
	assert.Equal(t, "Short question", GenerateTitle("  Short \n question "))
	assert.Equal(t, "New conversation", GenerateTitle("   "))

	long := strings.Repeat("word ", 20)
	title := GenerateTitle(long)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.LessOrEqual(t, len([]rune(title)), 53)

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, GenerateTitle(exact))
}
