package models

import "time"

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleError Role = "error"
)

// ChatEntry is one line of the chat transcript.
type ChatEntry struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Copied    bool      `json:"copied"`
}

// KnowledgeBase is a backend document index known to this instance.
type KnowledgeBase struct {
	Name    string `json:"name"`
	Current bool   `json:"current"`
}
