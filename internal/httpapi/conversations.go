package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bull/legally-rag/internal/conversation"
)

type createConversationRequest struct {
	Title        string `json:"title"`
	DocumentID   string `json:"document_id"`
	FirstMessage string `json:"first_message"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.conversationsEnabled(w) {
		return
	}
	var req createConversationRequest
	if !readJSON(w, r, &req) {
		return
	}
	title := req.Title
	if title == "" {
		title = conversation.GenerateTitle(req.FirstMessage)
	}

	c, err := s.conversations.Create(r.Context(), ownerID, title, req.DocumentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.conversationsEnabled(w) {
		return
	}
	list, err := s.conversations.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if list == nil {
		list = []*conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.conversationsEnabled(w) {
		return
	}
	id := r.PathValue("id")
	if _, err := s.conversations.Get(r.Context(), ownerID, id); err != nil {
		s.conversationError(w, err)
		return
	}
	msgs, err := s.conversations.Messages(r.Context(), id)
	if err != nil {
		s.conversationError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*conversation.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameConversation(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.conversationsEnabled(w) {
		return
	}
	var req renameRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.conversations.UpdateTitle(r.Context(), ownerID, r.PathValue("id"), req.Title); err != nil {
		s.conversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request, ownerID string) {
	if !s.conversationsEnabled(w) {
		return
	}
	if err := s.conversations.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		s.conversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) conversationsEnabled(w http.ResponseWriter) bool {
	if s.conversations == nil {
		writeError(w, http.StatusNotFound, "conversations are not enabled")
		return false
	}
	return true
}

func (s *Server) conversationError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "conversation store error")
}
