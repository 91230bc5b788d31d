package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bull/legally-rag/internal/answer"
	"github.com/bull/legally-rag/internal/conversation"
	"github.com/bull/legally-rag/internal/generation"
)

type chatRequest struct {
	ConversationID string               `json:"conversation_id"`
	DocumentID     string               `json:"document_id"`
	DocumentName   string               `json:"document_name"`
	Language       string               `json:"language"`
	Messages       []generation.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, ownerID string) {
	if s.answers == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	var req chatRequest
	if !readJSON(w, r, &req) {
		return
	}
	n := len(req.Messages)
	if n == 0 || req.Messages[n-1].Role != generation.RoleUser || strings.TrimSpace(req.Messages[n-1].Content) == "" {
		writeError(w, http.StatusBadRequest, "messages must end with a user message")
		return
	}
	question := req.Messages[n-1].Content

	turn := answer.Turn{
		OwnerID:      ownerID,
		History:      req.Messages[:n-1],
		Question:     question,
		DocumentName: req.DocumentName,
		Language:     req.Language,
	}
	if req.ConversationID != "" {
		if s.conversations == nil {
			writeError(w, http.StatusBadRequest, "conversations are not enabled")
			return
		}
		if _, err := s.conversations.Get(r.Context(), ownerID, req.ConversationID); err != nil {
			if errors.Is(err, conversation.ErrNotFound) {
				writeError(w, http.StatusNotFound, "conversation not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load conversation")
			return
		}
		turn.ConversationID = req.ConversationID
	}

	turn.Context = s.index.ContextFor(r.Context(), question, ownerID, req.DocumentID)

	events, err := s.answers.Stream(r.Context(), turn)
	if err != nil {
		s.startFailed(w, err)
		return
	}
	s.streamEvents(w, r, events)
}

type analyzeRequest struct {
	DocumentName string `json:"document_name"`
	Text         string `json:"text"`
	Language     string `json:"language"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, ownerID string) {
	if s.answers == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
		return
	}
	var req analyzeRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	events, err := s.answers.Analyze(r.Context(), answer.AnalysisRequest{
		DocumentName: req.DocumentName,
		Text:         req.Text,
		Language:     req.Language,
	})
	if err != nil {
		s.startFailed(w, err)
		return
	}
	s.streamEvents(w, r, events)
}

// startFailed answers a generation error that happened before any output.
func (s *Server) startFailed(w http.ResponseWriter, err error) {
	s.logger.Error("generation failed to start", "error", err)
	writeError(w, generation.HTTPStatus(err), generation.UserMessage(err))
}

type deltaEvent struct {
	Delta string `json:"delta"`
}

// streamEvents relays events as server-sent events:
//
//	data: {"delta":"..."}
//	data: [DONE]
//
// A failure mid-stream is sent as an "error" event instead of [DONE].
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, events <-chan answer.Event) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		switch ev.Kind {
		case answer.EventDelta:
			data, _ := json.Marshal(deltaEvent{Delta: ev.Text})
			fmt.Fprintf(w, "data: %s\n\n", data)
		case answer.EventDone:
			fmt.Fprint(w, "data: [DONE]\n\n")
		case answer.EventError:
			data, _ := json.Marshal(errorResponse{Error: ev.Text})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
		}
		flusher.Flush()
	}

	if err := r.Context().Err(); err != nil {
		s.logger.Debug("client went away during stream", "error", err)
	}
}
