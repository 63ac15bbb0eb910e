package domain

import (
	"context"
)

// UserRepository handles the persistent identity.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	// CreateUser fails with ErrEmailTaken when the email is already registered.
	CreateUser(ctx context.Context, u *User) error
	// UpdateOnlineStatus flips is_online and stamps last_seen.
	UpdateOnlineStatus(ctx context.Context, id string, online bool) error
	// ListUsers returns every user, online first then most recently seen.
	ListUsers(ctx context.Context) ([]User, error)
	// SearchUsers matches username or email case-insensitively, excluding
	// the caller. At most limit rows.
	SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]User, error)
	// GetUsersByIDs skips ids that do not exist.
	GetUsersByIDs(ctx context.Context, ids []string) ([]User, error)
}

// MessageRepository handles persistence of direct messages.
type MessageRepository interface {
	// CreateMessage fills in ID, CreatedAt and UpdatedAt.
	CreateMessage(ctx context.Context, msg *Message) error
	// SetRead marks the message read when readerID is its receiver and it
	// is still unread. Reports whether a row changed.
	SetRead(ctx context.Context, messageID, readerID string) (bool, error)
	// GetConversation pages the messages between two users, newest first.
	GetConversation(ctx context.Context, userA, userB string, page, limit int) ([]Message, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)
	// SoftDelete hides a message; only its sender may do so.
	SoftDelete(ctx context.Context, messageID, senderID string) (bool, error)
}
