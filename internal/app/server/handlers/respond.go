package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/domain"
	"github.com/arefin-aareef/talksy/pkg/logging"
)

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Username  string    `json:"username"`
	Avatar    string    `json:"avatar,omitempty"`
	IsOnline  bool      `json:"isOnline"`
	LastSeen  time.Time `json:"lastSeen,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUser(u *domain.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Avatar:    u.Avatar,
		IsOnline:  u.IsOnline,
		LastSeen:  u.LastSeen,
		CreatedAt: u.CreatedAt,
	}
}

// toPublicUser leaves the email out for listings of other people.
func toPublicUser(u *domain.User) userResponse {
	r := toUser(u)
	r.Email = ""
	return r
}

func toUsers(users []domain.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toPublicUser(&users[i]))
	}
	return out
}

type messageResponse struct {
	ID         string     `json:"id"`
	SenderID   string     `json:"senderId"`
	ReceiverID string     `json:"receiverId"`
	Content    string     `json:"content"`
	Type       string     `json:"messageType"`
	IsRead     bool       `json:"isRead"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func toMessage(m *domain.Message) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		Type:       m.Type,
		IsRead:     m.IsRead,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}

type conversationResponse struct {
	User        userResponse    `json:"user"`
	LastMessage messageResponse `json:"lastMessage"`
	UnreadCount int             `json:"unreadCount"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error onto a status code. Only taxonomy
// messages reach the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeMessage(w, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, domain.ErrInvalidPayload):
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
	case errors.Is(err, domain.ErrInvalidMessageID):
		writeMessage(w, http.StatusBadRequest, "Invalid message ID")
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrUserNotFound):
		writeMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, domain.ErrMessageNotFound):
		writeMessage(w, http.StatusNotFound, "Message not found")
	case errors.Is(err, domain.ErrEmailTaken):
		writeMessage(w, http.StatusConflict, "User with this email already exists")
	case errors.Is(err, domain.ErrSendFailed):
		writeMessage(w, http.StatusInternalServerError, "Failed to send message")
	default:
		logging.FromContext(r.Context()).ErrorContext(r.Context(), op+" - failed", logging.Err(err))
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.ErrInvalidPayload
	}
	return nil
}
