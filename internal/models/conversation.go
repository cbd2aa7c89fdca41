package models

import "time"

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryTurns is the number of recent turns used as LLM context.
const HistoryTurns = 5

// Turn is one stored message in a chatbot's conversation log.
type Turn struct {
	ID        string    `json:"id"`
	ChatbotID string    `json:"chatbot_id"`
	SenderID  string    `json:"sender_id"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
