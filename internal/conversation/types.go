package conversation

import "errors"

// Role tags the author of a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultSystemPrompt seeds every new conversation.
const DefaultSystemPrompt = "You are a helpful AI assistant. Be concise and friendly in your responses."

// DefaultMaxTurns bounds a conversation after each append-and-trim cycle.
const DefaultMaxTurns = 10

var ErrInvalidInput = errors.New("no message provided")

// Turn is a single chat message. The JSON shape matches the chat completions wire format.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
