package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/legally-rag/internal/rag"
)

var errNoOwner = errors.New("caller identity missing: send the X-User-ID header")

type ownerFunc func(req *mcp.CallToolRequest) (string, error)

// ownerResolver prefers the HTTP header and falls back to fallback.
func ownerResolver(fallback string) ownerFunc {
	return func(req *mcp.CallToolRequest) (string, error) {
		if req != nil && req.Extra != nil && req.Extra.Header != nil {
			if id := req.Extra.Header.Get(OwnerHeader); id != "" {
				return id, nil
			}
		}
		if fallback == "" {
			return "", errNoOwner
		}
		return fallback, nil
	}
}

// makeSearchHandler creates the search_documents tool handler.
func makeSearchHandler(index Index, owner ownerFunc) func(
	context.Context, *mcp.CallToolRequest, SearchDocumentsInput,
) (*mcp.CallToolResult, SearchDocumentsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchDocumentsInput) (
		*mcp.CallToolResult, SearchDocumentsOutput, error,
	) {
		ownerID, err := owner(req)
		if err != nil {
			return nil, SearchDocumentsOutput{}, err
		}
		if input.Query == "" {
			return nil, SearchDocumentsOutput{}, errors.New("query is required")
		}

		hits, err := index.Search(ctx, input.Query, ownerID, input.DocumentID, input.MaxChunks)
		if err != nil {
			return nil, SearchDocumentsOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(hits) == 0 {
			return nil, SearchDocumentsOutput{
				Results: []SearchResult{},
				Message: "No matching excerpts found. Try different wording or upload the document first.",
			}, nil
		}

		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			results = append(results, SearchResult{
				DocumentID: h.Chunk.DocumentID,
				ChunkIndex: h.Chunk.ChunkIndex,
				Similarity: float64(h.Similarity),
				Content:    h.Chunk.Content,
			})
		}
		return nil, SearchDocumentsOutput{
			Context: rag.FormatContext(hits),
			Results: results,
		}, nil
	}
}

// makeIngestHandler creates the ingest_document tool handler.
func makeIngestHandler(index Index, owner ownerFunc) func(
	context.Context, *mcp.CallToolRequest, IngestDocumentInput,
) (*mcp.CallToolResult, IngestDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input IngestDocumentInput) (
		*mcp.CallToolResult, IngestDocumentOutput, error,
	) {
		ownerID, err := owner(req)
		if err != nil {
			return nil, IngestDocumentOutput{}, err
		}

		text, title, err := rag.PrepareText(input.Format, input.Text)
		if err != nil {
			return nil, IngestDocumentOutput{}, err
		}

		documentID := input.DocumentID
		if documentID == "" {
			documentID = uuid.NewString()
		}
		meta := map[string]any{}
		if input.Name != "" {
			meta["file_name"] = input.Name
		}
		if title != "" {
			meta["title"] = title
		}

		res, err := index.Ingest(ctx, documentID, ownerID, text, rag.IngestOptions{
			Replace:  input.Replace,
			Metadata: meta,
		})
		if err != nil {
			return nil, IngestDocumentOutput{}, fmt.Errorf("ingest failed: %w", err)
		}
		return nil, IngestDocumentOutput{
			DocumentID: res.DocumentID,
			Title:      title,
			Chunks:     res.Chunks,
			Skipped:    res.Skipped,
		}, nil
	}
}

// makeDeleteHandler creates the delete_document tool handler.
func makeDeleteHandler(index Index, owner ownerFunc) func(
	context.Context, *mcp.CallToolRequest, DeleteDocumentInput,
) (*mcp.CallToolResult, DeleteDocumentOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input DeleteDocumentInput) (
		*mcp.CallToolResult, DeleteDocumentOutput, error,
	) {
		ownerID, err := owner(req)
		if err != nil {
			return nil, DeleteDocumentOutput{}, err
		}
		if input.DocumentID == "" {
			return nil, DeleteDocumentOutput{}, errors.New("document_id is required")
		}
		if err := index.DeleteDocument(ctx, ownerID, input.DocumentID); err != nil {
			return nil, DeleteDocumentOutput{}, fmt.Errorf("delete failed: %w", err)
		}
		return nil, DeleteDocumentOutput{DocumentID: input.DocumentID, Deleted: true}, nil
	}
}

// makeStatusHandler creates the get_document_status tool handler.
func makeStatusHandler(index Index, owner ownerFunc) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		ownerID, err := owner(req)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		n, err := index.Status(ctx, ownerID, input.DocumentID)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("status failed: %w", err)
		}
		return nil, StatusOutput{
			DocumentID: input.DocumentID,
			Chunks:     n,
			Indexed:    n > 0,
		}, nil
	}
}
