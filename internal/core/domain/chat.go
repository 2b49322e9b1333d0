package domain

import "time"

// ChatRole identifies the author of a chat turn.
type ChatRole string

// Chat roles.
const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleMemory    ChatRole = "memory"
)

// ChatTurn is one entry of the conversation history.
type ChatTurn struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
