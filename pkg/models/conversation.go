package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleSystem    = "system"
)

// Conversation is a chat thread between a user and the assistant.
type Conversation struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	UserID    uuid.UUID `db:"user_id"    json:"user_id"`
	Title     string    `db:"title"      json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Message is a single turn in a conversation. Assistant replies are generated
// asynchronously; generation failures are recorded as system messages.
type Message struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	ConversationID uuid.UUID `db:"conversation_id" json:"conversation_id"`
	Role           string    `db:"role"            json:"role"`
	Content        string    `db:"content"         json:"content"`
	CreatedAt      time.Time `db:"created_at"      json:"created_at"`
}
