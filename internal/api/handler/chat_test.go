package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/rumenyi/agroassist/internal/api/middleware"
	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/models"
)

// --- mock ChatService ---

type mockChatService struct {
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]*models.Message
}

func newMockChatService() *mockChatService {
	return &mockChatService{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]*models.Message),
	}
}

func (m *mockChatService) StartConversation(_ context.Context, userID uuid.UUID, title string) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	m.conversations[conv.ID] = conv
	return conv, nil
}

func (m *mockChatService) GetConversation(_ context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	conv, ok := m.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (m *mockChatService) PostMessage(_ context.Context, conversationID, userID uuid.UUID, content string) (*models.Message, error) {
	if _, err := m.GetConversation(context.Background(), conversationID, userID); err != nil {
		return nil, err
	}
	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           models.MessageRoleUser,
		Content:        content,
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)
	return msg, nil
}

func (m *mockChatService) ListMessages(_ context.Context, conversationID, userID uuid.UUID, limit int) ([]*models.Message, error) {
	if _, err := m.GetConversation(context.Background(), conversationID, userID); err != nil {
		return nil, err
	}
	return m.messages[conversationID], nil
}

// --- helpers ---

func newChatRouter(svc ChatService) http.Handler {
	h := NewChat(svc)
	r := chi.NewRouter()
	r.Post("/conversations", h.CreateConversation)
	r.Get("/conversations/{conversationID}", h.GetConversation)
	r.Post("/conversations/{conversationID}/messages", h.PostMessage)
	r.Get("/conversations/{conversationID}/messages", h.ListMessages)
	return r
}

// --- tests ---

func TestCreateConversation_WithTitle(t *testing.T) {
	router := newChatRouter(newMockChatService())
	rec := httptest.NewRecorder()

	body := []byte(`{"title":"Mildiou sur tomates"}`)
	router.ServeHTTP(rec, authedReq(http.MethodPost, "/conversations", body, uuid.New()))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data models.Conversation `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Title != "Mildiou sur tomates" {
		t.Errorf("unexpected title: %q", env.Data.Title)
	}
}

func TestCreateConversation_EmptyBody(t *testing.T) {
	router := newChatRouter(newMockChatService())
	rec := httptest.NewRecorder()

	r := httptest.NewRequest(http.MethodPost, "/conversations", nil)
	r = r.WithContext(mw.SetUserID(r.Context(), uuid.New()))
	router.ServeHTTP(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for empty body, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateConversation_MalformedBody(t *testing.T) {
	router := newChatRouter(newMockChatService())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedReq(http.MethodPost, "/conversations", []byte("{bad"), uuid.New()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	router := newChatRouter(newMockChatService())
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedReq(http.MethodGet, "/conversations/"+uuid.NewString(), nil, uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeErrCode(t, rec); code != "CONVERSATION_NOT_FOUND" {
		t.Errorf("expected CONVERSATION_NOT_FOUND, got %s", code)
	}
}

func TestPostMessage_Accepted(t *testing.T) {
	svc := newMockChatService()
	userID := uuid.New()
	conv, _ := svc.StartConversation(context.Background(), userID, "")

	router := newChatRouter(svc)
	rec := httptest.NewRecorder()

	body := []byte(`{"content":"Comment traiter le mildiou ?"}`)
	router.ServeHTTP(rec, authedReq(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body, userID))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data models.Message `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Role != models.MessageRoleUser {
		t.Errorf("expected user role, got %s", env.Data.Role)
	}
}

func TestPostMessage_EmptyContent(t *testing.T) {
	svc := newMockChatService()
	userID := uuid.New()
	conv, _ := svc.StartConversation(context.Background(), userID, "")

	router := newChatRouter(svc)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedReq(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages",
		[]byte(`{"content":""}`), userID))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPostMessage_WrongOwnerIsNotFound(t *testing.T) {
	svc := newMockChatService()
	conv, _ := svc.StartConversation(context.Background(), uuid.New(), "")

	router := newChatRouter(svc)
	rec := httptest.NewRecorder()

	body := []byte(`{"content":"bonjour"}`)
	router.ServeHTTP(rec, authedReq(http.MethodPost, "/conversations/"+conv.ID.String()+"/messages", body, uuid.New()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListMessages_ReturnsHistory(t *testing.T) {
	svc := newMockChatService()
	userID := uuid.New()
	conv, _ := svc.StartConversation(context.Background(), userID, "")
	svc.PostMessage(context.Background(), conv.ID, userID, "premier")
	svc.PostMessage(context.Background(), conv.ID, userID, "deuxième")

	router := newChatRouter(svc)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, authedReq(http.MethodGet, "/conversations/"+conv.ID.String()+"/messages", nil, userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env struct {
		Data []models.Message `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(env.Data))
	}
	if env.Data[0].Content != "premier" {
		t.Errorf("unexpected first message: %q", env.Data[0].Content)
	}
}
