package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/rumenyi/agroassist/internal/api/middleware"
	"github.com/rumenyi/agroassist/internal/api/response"
	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/models"
)

// ChatService is the conversation surface the chat handlers depend on.
type ChatService interface {
	StartConversation(ctx context.Context, userID uuid.UUID, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error)
	PostMessage(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, content string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, limit int) ([]*models.Message, error)
}

// Chat serves the conversation endpoints.
type Chat struct {
	svc ChatService
}

// NewChat creates the chat handlers.
func NewChat(svc ChatService) *Chat {
	return &Chat{svc: svc}
}

// CreateConversation handles POST /api/v1/conversations.
func (h *Chat) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	// Body is optional; a malformed one is still a client error.
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}

	conv, err := h.svc.StartConversation(r.Context(), userID, req.Title)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create conversation", nil)
		return
	}

	response.Created(w, conv)
}

// GetConversation handles GET /api/v1/conversations/{conversationID}.
func (h *Chat) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid conversation id", nil)
		return
	}

	conv, err := h.svc.GetConversation(r.Context(), convID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to load conversation", nil)
		return
	}

	response.JSON(w, conv)
}

// PostMessage handles POST /api/v1/conversations/{conversationID}/messages.
// Returns 202: the assistant reply arrives asynchronously.
func (h *Chat) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid conversation id", nil)
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if req.Content == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "content is required", nil)
		return
	}

	msg, err := h.svc.PostMessage(r.Context(), convID, userID, req.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to post message", nil)
		return
	}

	response.Accepted(w, msg)
}

// ListMessages handles GET /api/v1/conversations/{conversationID}/messages.
func (h *Chat) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := mw.GetUserID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
		return
	}

	convID, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid conversation id", nil)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	msgs, err := h.svc.ListMessages(r.Context(), convID, userID, limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "CONVERSATION_NOT_FOUND", "Conversation not found", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to list messages", nil)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	response.JSON(w, msgs)
}
