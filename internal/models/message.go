package models

import (
	"time"

	"github.com/lib/pq"
)

// Message is an immutable entry in a conversation.
type Message struct {
	ID             string         `db:"id" json:"id"`
	ConversationID string         `db:"conversation_id" json:"conversation_id"`
	SenderID       string         `db:"sender_id" json:"sender_id"`
	Content        string         `db:"content" json:"content"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	ReadBy         pq.StringArray `db:"read_by" json:"read_by"`
	Sender         *Sender        `db:"-" json:"sender,omitempty"`
}

// Sender is the display identity attached to a message.
type Sender struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// MessageEvent is pushed to live subscribers over websockets.
type MessageEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message,omitempty"`
}
