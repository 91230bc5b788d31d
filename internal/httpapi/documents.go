package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/bull/legally-rag/internal/embedding"
	"github.com/bull/legally-rag/internal/rag"
	"github.com/bull/legally-rag/internal/storage"
)

type ingestRequest struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	Text       string `json:"text"`
	Format     string `json:"format"`
	Replace    bool   `json:"replace"`
}

type ingestResponse struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Chunks     int    `json:"chunks"`
	Skipped    bool   `json:"skipped"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req ingestRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	format := req.Format
	if format == "" && req.Name != "" {
		format = rag.FormatForName(req.Name)
	}

	text, title, err := rag.PrepareText(format, req.Text)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	documentID := req.DocumentID
	if documentID == "" {
		documentID = uuid.NewString()
	}
	meta := map[string]any{}
	if req.Name != "" {
		meta["file_name"] = req.Name
	}
	if title != "" {
		meta["title"] = title
	}

	res, err := s.index.Ingest(r.Context(), documentID, ownerID, text, rag.IngestOptions{
		Replace:  req.Replace,
		Metadata: meta,
	})
	if err != nil {
		s.logger.Error("ingest failed", "document_id", documentID, "owner_id", ownerID, "error", err)
		writeError(w, statusFor(err), "failed to ingest document")
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		DocumentID: res.DocumentID,
		Title:      title,
		Chunks:     res.Chunks,
		Skipped:    res.Skipped,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ownerID string) {
	documentID := r.PathValue("id")
	if err := s.index.DeleteDocument(r.Context(), ownerID, documentID); err != nil {
		s.logger.Error("delete failed", "document_id", documentID, "owner_id", ownerID, "error", err)
		writeError(w, statusFor(err), "failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	DocumentID string `json:"document_id,omitempty"`
	Chunks     uint64 `json:"chunks"`
	Indexed    bool   `json:"indexed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, ownerID string) {
	documentID := r.URL.Query().Get("document_id")
	n, err := s.index.Status(r.Context(), ownerID, documentID)
	if err != nil {
		writeError(w, statusFor(err), "failed to read index status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{DocumentID: documentID, Chunks: n, Indexed: n > 0})
}

type searchRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
	MaxChunks  int    `json:"max_chunks"`
}

type searchHit struct {
	DocumentID string         `json:"document_id"`
	ChunkIndex uint32         `json:"chunk_index"`
	Similarity float32        `json:"similarity"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type searchResponse struct {
	Context string      `json:"context"`
	Results []searchHit `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, ownerID string) {
	var req searchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := s.index.Search(r.Context(), req.Query, ownerID, req.DocumentID, req.MaxChunks)
	if err != nil {
		s.logger.Error("search failed", "owner_id", ownerID, "error", err)
		writeError(w, statusFor(err), "search failed")
		return
	}

	results := make([]searchHit, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchHit{
			DocumentID: h.Chunk.DocumentID,
			ChunkIndex: h.Chunk.ChunkIndex,
			Similarity: h.Similarity,
			Content:    h.Chunk.Content,
			Metadata:   h.Chunk.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, searchResponse{Context: rag.FormatContext(hits), Results: results})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, storage.ErrInvalidChunk):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrStoreUnreachable), errors.Is(err, embedding.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
