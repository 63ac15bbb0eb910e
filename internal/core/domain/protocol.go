package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Inbound events.
const (
	EventSendMessage = "send-message"
	EventMarkAsRead  = "mark-as-read"
	EventTypingStart = "typing-start"
	EventTypingStop  = "typing-stop"
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
)

// Outbound events.
const (
	EventAck             = "ack"
	EventNewMessage      = "new-message"
	EventMessageAccepted = "message-accepted"
	EventUserOnline      = "user-online"
	EventUserOffline     = "user-offline"
	EventUserTyping      = "user-typing"
	EventUserStopTyping  = "user-stop-typing"
)

// Envelope is the frame shape in both directions. Ack carries the client's
// request id verbatim (number or string) and is only set on replies.
type Envelope struct {
	Event string          `json:"event"`
	Ack   json.RawMessage `json:"ack,omitempty"`
	Data  any             `json:"data,omitempty"`
}

// Ack is the per-request reply: {success: true, ...} or {error: "..."}.
type Ack struct {
	Success   bool   `json:"success,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func OK() Ack { return Ack{Success: true} }

type SendMessageRequest struct {
	ReceiverID          string `json:"receiverId"`
	Content             string `json:"content"`
	ClientCorrelationID string `json:"clientCorrelationId,omitempty"`
	// TempID is the field name older clients use for the correlation id.
	TempID string `json:"tempId,omitempty"`
}

func (r SendMessageRequest) CorrelationID() string {
	if r.ClientCorrelationID != "" {
		return r.ClientCorrelationID
	}
	return r.TempID
}

// Normalized trims the content the way the store keeps it.
func (r SendMessageRequest) Normalized() SendMessageRequest {
	r.ReceiverID = strings.TrimSpace(r.ReceiverID)
	r.Content = strings.TrimSpace(r.Content)
	return r
}

type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

type TypingRequest struct {
	ReceiverID string `json:"receiverId"`
}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

// PeerRef identifies a participant inside message events.
type PeerRef struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type NewMessageEvent struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    PeerRef   `json:"sender"`
	Receiver  PeerRef   `json:"receiver"`
	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
}

type MessageAcceptedEvent struct {
	ID                  string    `json:"id"`
	Content             string    `json:"content"`
	Receiver            PeerRef   `json:"receiver"`
	CreatedAt           time.Time `json:"createdAt"`
	ClientCorrelationID string    `json:"clientCorrelationId,omitempty"`
}

type UserOnlineEvent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

type UserOfflineEvent struct {
	UserID string `json:"userId"`
}

type UserTypingEvent struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type UserStopTypingEvent struct {
	UserID string `json:"userId"`
}
