package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/legally-rag/internal/rag"
	"github.com/bull/legally-rag/internal/storage"
)

// OwnerHeader carries the caller's user ID on HTTP transports.
const OwnerHeader = "X-User-ID"

// Index is the part of the retrieval orchestrator the tools use.
type Index interface {
	Ingest(ctx context.Context, documentID, ownerID, text string, opts rag.IngestOptions) (*rag.IngestResult, error)
	Search(ctx context.Context, query, ownerID, documentID string, maxChunks int) ([]storage.ScoredChunk, error)
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	Status(ctx context.Context, ownerID, documentID string) (uint64, error)
}

// Server wraps the MCP server with dependencies.
type Server struct {
	server *mcp.Server
	index  Index
}

// Config holds server dependencies.
type Config struct {
	Index Index
	// DefaultOwner is used when a request carries no OwnerHeader, which is
	// always the case over stdio.
	DefaultOwner string
	Logger       *slog.Logger
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "legally-rag",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, &mcp.ServerOptions{Logger: cfg.Logger})
	owners := ownerResolver(cfg.DefaultOwner)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over the caller's uploaded legal documents. Returns the most relevant excerpts and a ready-to-use context block.",
	}, makeSearchHandler(cfg.Index, owners))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ingest_document",
		Description: "Chunk, embed and index a document so it can be searched. Plain text and markdown are supported.",
	}, makeIngestHandler(cfg.Index, owners))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Remove every indexed chunk of a document.",
	}, makeDeleteHandler(cfg.Index, owners))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_document_status",
		Description: "Report how many chunks are indexed for one document or for all of the caller's documents.",
	}, makeStatusHandler(cfg.Index, owners))

	return &Server{
		server: server,
		index:  cfg.Index,
	}
}

// Run starts the server with stdio transport (blocks until client disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
