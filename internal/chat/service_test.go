package chat

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rumenyi/agroassist/internal/store"
	"github.com/rumenyi/agroassist/pkg/models"
)

// --- mocks ---

type mockStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID][]*models.Message
}

func newMockStore() *mockStore {
	return &mockStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID][]*models.Message),
	}
}

func (s *mockStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *conv
	s.conversations[conv.ID] = &cp
	return nil
}

func (s *mockStore) GetConversation(_ context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok || conv.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *conv
	return &cp, nil
}

func (s *mockStore) CreateMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *msg
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], &cp)
	return nil
}

func (s *mockStore) ListRecentMessages(_ context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *mockStore) messageCount(conversationID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[conversationID])
}

func (s *mockStore) lastMessage(t *testing.T, conversationID uuid.UUID) models.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if len(msgs) == 0 {
		t.Fatal("no messages in conversation")
	}
	return *msgs[len(msgs)-1]
}

type mockGenerator struct {
	mu      sync.Mutex
	history []models.Message
	replyFn func(history []models.Message) (string, error)
}

func (g *mockGenerator) GenerateChat(_ context.Context, history []models.Message) (string, error) {
	g.mu.Lock()
	g.history = history
	fn := g.replyFn
	g.mu.Unlock()
	if fn != nil {
		return fn(history)
	}
	return "réponse de l'assistant", nil
}

func (g *mockGenerator) capturedHistory() []models.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history
}

// --- helpers ---

func waitForMessages(t *testing.T, st *mockStore, conversationID uuid.UUID, count int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if st.messageCount(conversationID) >= count {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d messages, got %d", count, st.messageCount(conversationID))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func startConversation(t *testing.T, svc *Service, userID uuid.UUID) *models.Conversation {
	t.Helper()
	conv, err := svc.StartConversation(context.Background(), userID, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return conv
}

// --- tests ---

func TestPostMessage_ReturnsUserMessageImmediately(t *testing.T) {
	st := newMockStore()
	gen := &mockGenerator{
		replyFn: func(_ []models.Message) (string, error) {
			time.Sleep(100 * time.Millisecond)
			return "slow reply", nil
		},
	}
	svc := NewService(st, gen, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	start := time.Now()
	msg, err := svc.PostMessage(context.Background(), conv.ID, userID, "bonjour")
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Role != models.MessageRoleUser {
		t.Errorf("expected role user, got %s", msg.Role)
	}
	if msg.Content != "bonjour" {
		t.Errorf("unexpected content: %q", msg.Content)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("PostMessage should return immediately, took %v", elapsed)
	}
}

func TestPostMessage_AssistantReplyStored(t *testing.T) {
	st := newMockStore()
	gen := &mockGenerator{}
	svc := NewService(st, gen, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	if _, err := svc.PostMessage(context.Background(), conv.ID, userID, "comment traiter le mildiou?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForMessages(t, st, conv.ID, 2)

	reply := st.lastMessage(t, conv.ID)
	if reply.Role != models.MessageRoleAssistant {
		t.Errorf("expected assistant reply, got role %s", reply.Role)
	}
	if reply.Content != "réponse de l'assistant" {
		t.Errorf("unexpected reply content: %q", reply.Content)
	}
}

func TestPostMessage_HistoryWindowCapped(t *testing.T) {
	st := newMockStore()
	gen := &mockGenerator{}
	svc := NewService(st, gen, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	// Pre-seed more history than the window.
	for i := 0; i < 8; i++ {
		st.CreateMessage(context.Background(), &models.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			Role:           models.MessageRoleUser,
			Content:        "ancien message",
		})
	}

	if _, err := svc.PostMessage(context.Background(), conv.ID, userID, "dernier"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForMessages(t, st, conv.ID, 10)

	history := gen.capturedHistory()
	if len(history) != historyWindow {
		t.Errorf("expected history of %d messages, got %d", historyWindow, len(history))
	}
	if history[len(history)-1].Content != "dernier" {
		t.Errorf("history must end with the latest user message, got %q", history[len(history)-1].Content)
	}
}

func TestPostMessage_GenerationFailureRecordedAsSystemMessage(t *testing.T) {
	st := newMockStore()
	gen := &mockGenerator{
		replyFn: func(_ []models.Message) (string, error) {
			return "", context.DeadlineExceeded
		},
	}
	svc := NewService(st, gen, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	if _, err := svc.PostMessage(context.Background(), conv.ID, userID, "bonjour"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForMessages(t, st, conv.ID, 2)

	sysMsg := st.lastMessage(t, conv.ID)
	if sysMsg.Role != models.MessageRoleSystem {
		t.Errorf("expected system message on failure, got role %s", sysMsg.Role)
	}
	if !strings.HasPrefix(sysMsg.Content, "Error generating response:") {
		t.Errorf("unexpected system message content: %q", sysMsg.Content)
	}
}

func TestPostMessage_GenerationPanicRecorded(t *testing.T) {
	st := newMockStore()
	gen := &mockGenerator{
		replyFn: func(_ []models.Message) (string, error) {
			panic("simulated panic")
		},
	}
	svc := NewService(st, gen, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	if _, err := svc.PostMessage(context.Background(), conv.ID, userID, "bonjour"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitForMessages(t, st, conv.ID, 2)

	sysMsg := st.lastMessage(t, conv.ID)
	if sysMsg.Role != models.MessageRoleSystem {
		t.Errorf("expected system message after panic, got role %s", sysMsg.Role)
	}
}

func TestPostMessage_UnknownConversation(t *testing.T) {
	svc := NewService(newMockStore(), &mockGenerator{}, 5*time.Second)

	_, err := svc.PostMessage(context.Background(), uuid.New(), uuid.New(), "bonjour")
	if err == nil {
		t.Fatal("expected error for unknown conversation")
	}
}

func TestPostMessage_WrongOwner(t *testing.T) {
	st := newMockStore()
	svc := NewService(st, &mockGenerator{}, 5*time.Second)
	conv := startConversation(t, svc, uuid.New())

	_, err := svc.PostMessage(context.Background(), conv.ID, uuid.New(), "bonjour")
	if err == nil {
		t.Fatal("expected error for foreign conversation")
	}
}

func TestListMessages_ScopedToOwner(t *testing.T) {
	st := newMockStore()
	svc := NewService(st, &mockGenerator{}, 5*time.Second)
	userID := uuid.New()
	conv := startConversation(t, svc, userID)

	if _, err := svc.ListMessages(context.Background(), conv.ID, uuid.New(), 10); err == nil {
		t.Fatal("expected error for foreign conversation")
	}

	msgs, err := svc.ListMessages(context.Background(), conv.ID, userID, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty conversation, got %d messages", len(msgs))
	}
}
