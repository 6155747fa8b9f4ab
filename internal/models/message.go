package models

import "time"

// Message is a community chat message. Embedding is nil when embedding
// generation failed; such messages are kept but never matched by search.
type Message struct {
	ID        string
	AuthorID  string
	Text      string
	Embedding []float32
	CreatedAt time.Time
}

// Profile carries the display data of a community member.
type Profile struct {
	ID       string
	Nickname string
}

// Conversation roles understood by the completion client.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one entry of a conversation with the assistant.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
