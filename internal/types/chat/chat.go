package chat

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID          uuid.UUID `json:"id" db:"id"`
	GroupID     uuid.UUID `json:"group_id" db:"group_id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Content     string    `json:"content" db:"content"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Wire events. Action discriminates; the rest of the payload depends on it.
const (
	ActionMessageCreated = "message_created"
	ActionMessageDeleted = "message_deleted"
	ActionTyping         = "typing"
)

type Event struct {
	Action      string     `json:"action"`
	MessageID   *uuid.UUID `json:"message_id,omitempty"`
	UserID      uuid.UUID  `json:"user_id,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Content     string     `json:"content,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// InboundPayload is what clients send over the socket.
type InboundPayload struct {
	Action    string `json:"action"`
	Content   string `json:"content"`
	MessageID string `json:"message_id"`
}
