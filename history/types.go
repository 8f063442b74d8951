package history

import (
	"errors"
	"time"
)

// ErrConversationNotFound is returned when a requested conversation cannot be found.
var ErrConversationNotFound = errors.New("history: conversation not found")

// ErrUnauthorized is returned when a user asks for a conversation they do not own.
// Conversations that do not exist are reported the same way so callers cannot probe ids.
var ErrUnauthorized = errors.New("history: conversation not owned by user")

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the stored roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Conversation is an owned thread of messages.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single immutable entry in a conversation.
type Message struct {
	ID             int64
	ConversationID string
	Role           Role
	Text           string
	// Source names the provider that produced an assistant message.
	Source    string
	CreatedAt time.Time
}

// ConversationMetadata holds summary information about a conversation.
type ConversationMetadata struct {
	Conversation
	MessageCount int
	LastMessage  string
}
