// Package types holds the provider-neutral request and response shapes used
// by every model backend.
package types

// Roles used in Message.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single plain-text conversation message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}
