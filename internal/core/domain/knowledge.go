package domain

import "time"

// Document is a knowledge base entry used to answer questions before
// a ticket is opened.
type Document struct {
	ID        int64     `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Category  string    `json:"category,omitempty" db:"category"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ChatRole is the author of a chat message sent to the language model.
type ChatRole string

const (
	ChatSystem    ChatRole = "system"
	ChatUser      ChatRole = "user"
	ChatAssistant ChatRole = "assistant"
)

// ChatMessage is one message of a language model prompt.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
