package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/supportflow/supportflow/internal/knowledge"
	"github.com/supportflow/supportflow/internal/models"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// ChatResponse is the result payload of POST /v1/chat.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// Validate checks the request for required fields.
func (r ChatRequest) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("user_id is required")
	}
	if r.Text == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}

// chatHandler handles POST /v1/chat.
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("chatHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("chatHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("chatHandler validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	reply, err := s.handler.HandleMessage(r.Context(), req.UserID, req.Text)
	if err != nil {
		slog.Error("chatHandler message handling failed", "error", err, "user_id", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(ChatResponse{Reply: reply}))
}

// getSessionHandler handles GET /v1/sessions/{user_id}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	slog.Debug("getSessionHandler invoked", "user_id", userID)

	session, err := s.st.GetSession(userID)
	if err != nil {
		slog.Error("getSessionHandler store failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No session for user"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(session))
}

// deleteSessionHandler handles DELETE /v1/sessions/{user_id}. Deleting a
// session resets the user's flow state and chat history.
func (s *Server) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	slog.Debug("deleteSessionHandler invoked", "user_id", userID)

	if err := s.st.DeleteSession(userID); err != nil {
		slog.Error("deleteSessionHandler store failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete session"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Session deleted", nil))
}

// messagesHandler handles GET /v1/messages?user_id=...
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id query parameter is required"))
		return
	}
	slog.Debug("messagesHandler invoked", "user_id", userID)

	messages, err := s.st.GetMessages(userID)
	if err != nil {
		slog.Error("messagesHandler store failed", "error", err, "user_id", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load messages"))
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(messages))
}

// addKnowledgeHandler handles POST /v1/knowledge.
func (s *Server) addKnowledgeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("addKnowledgeHandler invoked")

	var doc knowledge.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		slog.Warn("addKnowledgeHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if strings.TrimSpace(doc.Content) == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("content is required"))
		return
	}

	id, err := s.index.Add(r.Context(), doc)
	if err != nil {
		slog.Error("addKnowledgeHandler index failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to index document"))
		return
	}

	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]string{"id": id}))
}
