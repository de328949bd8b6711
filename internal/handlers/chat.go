// Package handlers exposes the assistant's HTTP surface: the chat
// endpoint, session history management, and health reporting.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/orchestrator"
	"github.com/trackwise/assistant/internal/request"
	"github.com/trackwise/assistant/internal/session"
	"github.com/trackwise/assistant/internal/validation"
)

// defaultHistoryLimit bounds history reads when the client gives no limit
const defaultHistoryLimit = 50

// Pipeline runs one chat turn. Implemented by orchestrator.Pipeline.
type Pipeline interface {
	Handle(ctx context.Context, req *orchestrator.Request) *models.ChatResponse
}

// ChatHandler handles the conversational endpoints
type ChatHandler struct {
	pipeline Pipeline
	sessions session.Store
	logger   *zap.Logger
}

// NewChatHandler creates a chat handler
func NewChatHandler(pipeline Pipeline, sessions session.Store, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{pipeline: pipeline, sessions: sessions, logger: logger}
}

// RegisterRoutes registers the chat routes
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat", h.Chat).Methods("POST")
	r.HandleFunc("/chat/history/{session_id}", h.History).Methods("GET")
	r.HandleFunc("/chat/session/{session_id}", h.DeleteSession).Methods("DELETE")
}

// ChatRequest is the POST /chat body
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Query     string `json:"query" validate:"required"`
	// IdempotencyKey lets clients safely retry action-bearing queries
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Chat runs one query through the pipeline
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, models.ErrCodeAuth, "user not found in context")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeValidation, "invalid request body")
		return
	}

	if err := validation.Validate.Struct(&req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			writeError(w, http.StatusBadRequest, models.ErrCodeValidation,
				fmt.Sprintf("validation failed: %s", validationErrors[0].Error()))
			return
		}
		writeError(w, http.StatusBadRequest, models.ErrCodeValidation, "validation failed")
		return
	}

	resp := h.pipeline.Handle(r.Context(), &orchestrator.Request{
		User:           user,
		SessionID:      req.SessionID,
		Query:          req.Query,
		IdempotencyKey: req.IdempotencyKey,
	})

	setRateLimitHeaders(w, resp.RateLimit)
	writeJSON(w, httpStatusFor(resp), resp)
}

// HistoryResponse is the GET /chat/history/{session_id} body: the retained
// messages plus the session's conversational state
type HistoryResponse struct {
	SessionID     string               `json:"session_id"`
	ActiveProject string               `json:"active_project,omitempty"`
	LastIntent    models.IntentType    `json:"last_intent,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	LastActivity  time.Time            `json:"last_activity"`
	Messages      []models.ChatMessage `json:"messages"`
}

// History returns the retained messages of one session, newest last
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, models.ErrCodeAuth, "user not found in context")
		return
	}

	sessionID := mux.Vars(r)["session_id"]
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, models.ErrCodeSessionGone, "session not found")
			return
		}
		h.logger.Error("history_load_failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, models.ErrCodeInternal, "failed to load session")
		return
	}

	if sess.UserID != user.ID {
		writeError(w, http.StatusForbidden, models.ErrCodeAccessDenied, "session belongs to another user")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, models.ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages := sess.Messages
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID:     sess.ID,
		ActiveProject: sess.ActiveProject,
		LastIntent:    sess.LastIntent,
		CreatedAt:     sess.CreatedAt,
		LastActivity:  sess.LastActivity,
		Messages:      messages,
	})
}

// DeleteSession ends a conversation and discards its context
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, models.ErrCodeAuth, "user not found in context")
		return
	}

	sessionID := mux.Vars(r)["session_id"]
	sess, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, models.ErrCodeSessionGone, "session not found")
			return
		}
		h.logger.Error("session_load_failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, models.ErrCodeInternal, "failed to load session")
		return
	}
	if sess.UserID != user.ID {
		writeError(w, http.StatusForbidden, models.ErrCodeAccessDenied, "session belongs to another user")
		return
	}

	if err := h.sessions.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("session_delete_failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, models.ErrCodeInternal, "failed to delete session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": models.StatusOK, "session_id": sessionID})
}
