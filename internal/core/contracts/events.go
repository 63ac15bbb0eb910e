package contracts

import (
	"context"
	"time"
)

// MessageEvent is the analytics record emitted for every persisted message.
type MessageEvent struct {
	MessageID  string    `json:"messageId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	UserConnected    = "connected"
	UserDisconnected = "disconnected"
)

type UserEvent struct {
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	ConnID    string    `json:"connId"`
	Timestamp time.Time `json:"timestamp"`
}

// EventPublisher writes to the durable event log. Callers treat it as best
// effort.
type EventPublisher interface {
	PublishMessage(ctx context.Context, ev MessageEvent) error
	PublishUserEvent(ctx context.Context, ev UserEvent) error
	Close() error
}
