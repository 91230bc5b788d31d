// Package httpapi serves the REST and server-sent-events API used by the
// chat UI. Every /v1 route is scoped to the user in the X-User-ID header,
// which an authenticating proxy in front of the service is expected to set.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bull/legally-rag/internal/answer"
	"github.com/bull/legally-rag/internal/conversation"
	"github.com/bull/legally-rag/internal/rag"
	"github.com/bull/legally-rag/internal/storage"
)

// OwnerHeader identifies the calling user.
const OwnerHeader = "X-User-ID"

const maxBodyBytes = 10 << 20

// Index is the part of the retrieval orchestrator the API uses.
type Index interface {
	Ingest(ctx context.Context, documentID, ownerID, text string, opts rag.IngestOptions) (*rag.IngestResult, error)
	Search(ctx context.Context, query, ownerID, documentID string, maxChunks int) ([]storage.ScoredChunk, error)
	ContextFor(ctx context.Context, query, ownerID, documentID string) string
	DeleteDocument(ctx context.Context, ownerID, documentID string) error
	Status(ctx context.Context, ownerID, documentID string) (uint64, error)
}

// Answerer streams generated answers.
type Answerer interface {
	Stream(ctx context.Context, turn answer.Turn) (<-chan answer.Event, error)
	Analyze(ctx context.Context, req answer.AnalysisRequest) (<-chan answer.Event, error)
}

// Config holds the API dependencies. Answers may be nil, which disables the
// chat and analyze routes. Conversations may be nil, which disables the
// conversation routes.
type Config struct {
	Index         Index
	Answers       Answerer
	Conversations conversation.Store
	Logger        *slog.Logger
}

// Server routes API requests.
type Server struct {
	index         Index
	answers       Answerer
	conversations conversation.Store
	logger        *slog.Logger
	mux           *http.ServeMux
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		index:         cfg.Index,
		answers:       cfg.Answers,
		conversations: cfg.Conversations,
		logger:        cfg.Logger,
		mux:           http.NewServeMux(),
	}

	s.handle("POST /v1/documents", s.handleIngest)
	s.handle("DELETE /v1/documents/{id}", s.handleDelete)
	s.handle("GET /v1/status", s.handleStatus)
	s.handle("POST /v1/search", s.handleSearch)
	s.handle("POST /v1/chat", s.handleChat)
	s.handle("POST /v1/analyze", s.handleAnalyze)
	s.handle("POST /v1/conversations", s.handleCreateConversation)
	s.handle("GET /v1/conversations", s.handleListConversations)
	s.handle("GET /v1/conversations/{id}/messages", s.handleMessages)
	s.handle("PATCH /v1/conversations/{id}", s.handleRenameConversation)
	s.handle("DELETE /v1/conversations/{id}", s.handleDeleteConversation)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type ownedHandler func(w http.ResponseWriter, r *http.Request, ownerID string)

// handle registers h behind the owner check and request logging.
func (s *Server) handle(pattern string, h ownedHandler) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ownerID := r.Header.Get(OwnerHeader)
		if ownerID == "" {
			writeError(rec, http.StatusUnauthorized, "missing "+OwnerHeader+" header")
		} else {
			h(rec, r, ownerID)
		}

		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status,
			"owner_id", ownerID, "duration", time.Since(start))
	})
}

// statusRecorder remembers the response status for logging. It forwards
// Flush so streaming handlers keep working through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// readJSON decodes the request body into v, answering 400 itself on failure.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body is empty")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}
