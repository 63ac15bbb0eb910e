package domain

import (
	"time"
)

// User is the stored account.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Avatar       string
	IsOnline     bool
	LastSeen     time.Time
	CreatedAt    time.Time
}

// Identity returns the profile snapshot a connection binds to.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.Username, Avatar: u.Avatar}
}

// Identity is the denormalized profile captured when a connection
// authenticates.
type Identity struct {
	ID          string
	DisplayName string
	Avatar      string
}

const MessageTypeText = "text"

// Message is a persisted direct message.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Content    string
	Type       string
	IsRead     bool
	ReadAt     *time.Time
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Peer        User
	LastMessage Message
	UnreadCount int
}
