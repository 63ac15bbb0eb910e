package contracts

import (
	"context"
	"time"
)

// PresenceStore mirrors local presence into a shared TTL keyed store so
// other processes can answer "who is online".
type PresenceStore interface {
	// SetOnline records connID as the user's socket for ttl.
	SetOnline(ctx context.Context, userID, connID string, ttl time.Duration) error
	// ClearIfOwner deletes the entry only while it still holds connID.
	ClearIfOwner(ctx context.Context, userID, connID string) error
	// Refresh rewrites the entries for owners (user id to connection id)
	// with a fresh ttl, restoring any that were lost.
	Refresh(ctx context.Context, owners map[string]string, ttl time.Duration) error
	OnlineUsers(ctx context.Context) ([]string, error)
}
