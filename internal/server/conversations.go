package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/raphaelgruber/kaiwa/internal/db"
	"github.com/raphaelgruber/kaiwa/internal/models"
)

const errNotFound = "Conversation not found"

type listResponse struct {
	Conversations []models.ConversationListItem `json:"conversations"`
}

type createRequest struct {
	Title string `json:"title"`
}

type updateRequest struct {
	Title    *string           `json:"title"`
	Messages *[]models.Message `json:"messages"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListConversations(r.Context())
	if err != nil {
		s.internalError(w, "Failed to fetch conversations", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Conversations: items})
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	// The body is optional; an empty one means the default title.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := s.store.CreateConversation(r.Context(), req.Title)
	if err != nil {
		s.internalError(w, "Failed to create conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.GetConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "Failed to fetch conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) updateConversation(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	conv, err := s.store.UpdateConversation(r.Context(), r.PathValue("id"), db.UpdateInput{
		Title:    req.Title,
		Messages: req.Messages,
	})
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, errNotFound)
	case errors.Is(err, models.ErrInvalidMessage):
		writeError(w, http.StatusBadRequest, "Invalid message")
	case err != nil:
		s.internalError(w, "Failed to update conversation", err)
	default:
		writeJSON(w, http.StatusOK, conv)
	}
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteConversation(r.Context(), r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	if err != nil {
		s.internalError(w, "Failed to delete conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Success: true})
}

// internalError logs the cause and answers with a fixed message.
func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
