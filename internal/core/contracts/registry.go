package contracts

import (
	"context"

	"github.com/arefin-aareef/talksy/internal/core/domain"
)

// Directory is the process wide presence map from user id to the live
// connection currently serving that user, plus auxiliary room memberships.
type Directory interface {
	// Register binds userID to h, replacing any previous handle.
	Register(userID string, h Handle)
	// Unregister removes the entry only while it still points at h and
	// reports whether it did.
	Unregister(userID string, h Handle) bool
	Lookup(userID string) (Handle, bool)
	ListAll() []string
	// Snapshot copies the registered handles for fan-out.
	Snapshot() []Handle
	JoinRoom(roomID string, h Handle)
	LeaveRoom(roomID string, h Handle)
	LeaveAll(h Handle)
	RoomMembers(roomID string) []Handle
}

// Handle represents the minimal interface the core needs to push events to
// an individual live connection.
type Handle interface {
	// ID is the transport assigned connection id.
	ID() string
	UserID() string
	Identity() domain.Identity
	Send(ctx context.Context, data []byte) error
	Close()
}
