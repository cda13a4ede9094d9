package model

import "time"

type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusClosed ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	return s == ConversationStatusOpen || s == ConversationStatusClosed
}

type Conversation struct {
	ID            int64              `json:"id"`
	UUID          string             `json:"uuid"`
	Title         string             `json:"title"`
	Status        ConversationStatus `json:"status"`
	Source        string             `json:"source"`
	LastMessage   string             `json:"last_message,omitempty"`
	LastMessageAt time.Time          `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Source struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Tag         string    `json:"tag"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Agent struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Enabled  bool   `json:"enabled"`
}
