package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/legally-rag/internal/embedding"
	"github.com/bull/legally-rag/internal/rag"
	"github.com/bull/legally-rag/internal/storage"
)

const leaseText = `# Rental Agreement

The tenant shall pay a security deposit equal to two months of rent.

## Refund

The landlord must refund the security deposit within thirty days after the tenant vacates the premises.`

func newTestIndex(t *testing.T) *rag.Orchestrator {
	t.Helper()
	svc := embedding.NewService(embedding.LocalLoader(embedding.DefaultLocalDimension), embedding.DefaultLocalDimension, nil)
	store := storage.NewStore(storage.NewMemoryIndex(), storage.StoreOptions{Dimension: embedding.DefaultLocalDimension})
	orch, err := rag.New(svc, store, rag.DefaultOptions(), nil)
	require.NoError(t, err)
	return orch
}

// connect starts an in-memory client session against a server for owner.
func connect(t *testing.T, index Index, owner string) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	server := NewServer(&Config{Index: index, DefaultOwner: owner})
	ct, st := mcp.NewInMemoryTransports()
	ss, err := server.MCPServer().Connect(ctx, st, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call[Out any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (Out, *mcp.CallToolResult) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)

	var out Out
	if !res.IsError {
		require.NotEmpty(t, res.Content)
		text, ok := res.Content[0].(*mcp.TextContent)
		require.True(t, ok)
		require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	}
	return out, res
}

func TestServer_ListsTools(t *testing.T) {
	cs := connect(t, newTestIndex(t), "user-1")

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_documents", "ingest_document", "delete_document", "get_document_status"}, names)
}

func TestServer_IngestSearchDelete(t *testing.T) {
	cs := connect(t, newTestIndex(t), "user-1")

	ingested, _ := call[IngestDocumentOutput](t, cs, "ingest_document", map[string]any{
		"document_id": "lease",
		"name":        "lease.md",
		"text":        leaseText,
		"format":      "markdown",
	})
	assert.Equal(t, "lease", ingested.DocumentID)
	assert.Equal(t, "Rental Agreement", ingested.Title)
	assert.False(t, ingested.Skipped)
	assert.Positive(t, ingested.Chunks)

	status, _ := call[StatusOutput](t, cs, "get_document_status", map[string]any{"document_id": "lease"})
	assert.True(t, status.Indexed)
	assert.Equal(t, uint64(ingested.Chunks), status.Chunks)

	found, _ := call[SearchDocumentsOutput](t, cs, "search_documents", map[string]any{
		"query": "refund the security deposit within thirty days",
	})
	require.NotEmpty(t, found.Results)
	assert.Equal(t, "lease", found.Results[0].DocumentID)
	assert.Contains(t, found.Context, "[Chunk ")
	assert.Contains(t, found.Context, "security deposit")

	deleted, _ := call[DeleteDocumentOutput](t, cs, "delete_document", map[string]any{"document_id": "lease"})
	assert.True(t, deleted.Deleted)

	status, _ = call[StatusOutput](t, cs, "get_document_status", map[string]any{"document_id": "lease"})
	assert.False(t, status.Indexed)

	empty, _ := call[SearchDocumentsOutput](t, cs, "search_documents", map[string]any{
		"query": "refund the security deposit within thirty days",
	})
	assert.Empty(t, empty.Results)
	assert.NotEmpty(t, empty.Message)
}

func TestServer_OwnerIsolation(t *testing.T) {
	index := newTestIndex(t)
	alice := connect(t, index, "alice")
	bob := connect(t, index, "bob")

	call[IngestDocumentOutput](t, alice, "ingest_document", map[string]any{"document_id": "lease", "text": leaseText})

	found, _ := call[SearchDocumentsOutput](t, bob, "search_documents", map[string]any{
		"query":       "security deposit refund thirty days",
		"document_id": "lease",
	})
	assert.Empty(t, found.Results)

	// bob cannot delete alice's document either
	call[DeleteDocumentOutput](t, bob, "delete_document", map[string]any{"document_id": "lease"})
	status, _ := call[StatusOutput](t, alice, "get_document_status", map[string]any{"document_id": "lease"})
	assert.True(t, status.Indexed)
}

func TestServer_ToolErrors(t *testing.T) {
	t.Run("no owner", func(t *testing.T) {
		cs := connect(t, newTestIndex(t), "")
		_, res := call[StatusOutput](t, cs, "get_document_status", map[string]any{})
		assert.True(t, res.IsError)
	})

	t.Run("unknown format", func(t *testing.T) {
		cs := connect(t, newTestIndex(t), "user-1")
		_, res := call[IngestDocumentOutput](t, cs, "ingest_document", map[string]any{"text": leaseText, "format": "pdf"})
		assert.True(t, res.IsError)
	})

	t.Run("index failure", func(t *testing.T) {
		cs := connect(t, failingIndex{}, "user-1")
		_, res := call[SearchDocumentsOutput](t, cs, "search_documents", map[string]any{"query": "deposit"})
		assert.True(t, res.IsError)
	})
}

func TestOwnerResolver(t *testing.T) {
	resolve := ownerResolver("local")

	id, err := resolve(&mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "local", id)

	req := &mcp.CallToolRequest{Extra: &mcp.RequestExtra{Header: http.Header{}}}
	req.Extra.Header.Set(OwnerHeader, "user-42")
	id, err = resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	_, err = ownerResolver("")(&mcp.CallToolRequest{})
	assert.ErrorIs(t, err, errNoOwner)
}

type failingIndex struct{}

var errDown = errors.New("index down")

func (failingIndex) Ingest(context.Context, string, string, string, rag.IngestOptions) (*rag.IngestResult, error) {
	return nil, errDown
}

func (failingIndex) Search(context.Context, string, string, string, int) ([]storage.ScoredChunk, error) {
	return nil, errDown
}

func (failingIndex) DeleteDocument(context.Context, string, string) error { return errDown }

func (failingIndex) Status(context.Context, string, string) (uint64, error) { return 0, errDown }

type healthFunc func(context.Context) error

func (f healthFunc) Health(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   int
		status string
	}{
		{"healthy", nil, http.StatusOK, "healthy"},
		{"unhealthy", errDown, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(healthFunc(func(context.Context) error { return tc.err }))
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tc.code, rec.Code)
			var body HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.status, body.Status)
		})
	}
}

func TestLandingHandler(t *testing.T) {
	h := NewLandingHandler()

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "/mcp"))

	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPHandler_ReadsOwnerHeader(t *testing.T) {
	index := newTestIndex(t)
	srv := httptest.NewServer(NewHTTPHandler(NewServer(&Config{Index: index}), nil))
	defer srv.Close()

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{
		Endpoint:   srv.URL,
		HTTPClient: &http.Client{Transport: headerTransport{owner: "user-7"}},
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	call[IngestDocumentOutput](t, cs, "ingest_document", map[string]any{"document_id": "lease", "text": leaseText})

	n, err := index.Status(ctx, "user-7", "lease")
	require.NoError(t, err)
	assert.Positive(t, n)
}

type headerTransport struct{ owner string }

func (h headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set(OwnerHeader, h.owner)
	return http.DefaultTransport.RoundTrip(r)
}
