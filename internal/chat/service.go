// Package chat runs the conversational assistant: user messages are stored
// synchronously, assistant replies are generated in the background.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rumenyi/agroassist/pkg/models"
)

// historyWindow is how many recent messages are sent as context for the next
// reply.
const historyWindow = 5

// Store is the subset of the data layer the chat service needs.
type Store interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error)
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListRecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]*models.Message, error)
}

// Generator produces the next assistant reply from conversation history.
type Generator interface {
	GenerateChat(ctx context.Context, history []models.Message) (string, error)
}

// Service owns conversations and messages.
type Service struct {
	store        Store
	llm          Generator
	replyTimeout time.Duration
}

// NewService creates a chat service. replyTimeout bounds each generation call.
func NewService(st Store, llm Generator, replyTimeout time.Duration) *Service {
	if replyTimeout <= 0 {
		replyTimeout = 60 * time.Second
	}
	return &Service{store: st, llm: llm, replyTimeout: replyTimeout}
}

// StartConversation creates an empty conversation for the user.
func (s *Service) StartConversation(ctx context.Context, userID uuid.UUID, title string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the conversation if the user owns it.
func (s *Service) GetConversation(ctx context.Context, id uuid.UUID, userID uuid.UUID) (*models.Conversation, error) {
	return s.store.GetConversation(ctx, id, userID)
}

// ListMessages returns up to limit recent messages in chronological order,
// scoped to the owning user.
func (s *Service) ListMessages(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, limit int) ([]*models.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.store.ListRecentMessages(ctx, conversationID, limit)
}

// PostMessage stores the user's message and returns it immediately. The
// assistant reply is generated in the background; clients pick it up by
// re-reading the conversation. A generation failure is recorded as a system
// message so the conversation never silently loses a turn.
func (s *Service) PostMessage(ctx context.Context, conversationID uuid.UUID, userID uuid.UUID, content string) (*models.Message, error) {
	if _, err := s.store.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           models.MessageRoleUser,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	go s.reply(conversationID)

	return msg, nil
}

// reply generates and stores the assistant's next turn.
func (s *Service) reply(conversationID uuid.UUID) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic generating chat reply", "error", r, "conversation_id", conversationID)
			s.record(ctx, conversationID, models.MessageRoleSystem,
				fmt.Sprintf("Error generating response: panic: %v", r))
		}
	}()

	recent, err := s.store.ListRecentMessages(ctx, conversationID, historyWindow)
	if err != nil {
		slog.Error("loading chat history", "error", err, "conversation_id", conversationID)
		s.record(ctx, conversationID, models.MessageRoleSystem,
			fmt.Sprintf("Error generating response: %v", err))
		return
	}

	history := make([]models.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, *m)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.replyTimeout)
	defer cancel()

	text, err := s.llm.GenerateChat(callCtx, history)
	if err != nil {
		slog.Warn("chat generation failed", "error", err, "conversation_id", conversationID)
		s.record(ctx, conversationID, models.MessageRoleSystem,
			fmt.Sprintf("Error generating response: %v", err))
		return
	}

	s.record(ctx, conversationID, models.MessageRoleAssistant, text)
}

func (s *Service) record(ctx context.Context, conversationID uuid.UUID, role, content string) {
	err := s.store.CreateMessage(ctx, &models.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		slog.Error("storing chat message", "error", err, "conversation_id", conversationID, "role", role)
	}
}
