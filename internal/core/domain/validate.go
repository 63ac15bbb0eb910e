package domain

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxContentLength  = 1000
	MinUsernameLength = 2
	MaxUsernameLength = 50
	MinPasswordLength = 6
)

// ValidateUserID reports whether id is a well formed identity reference.
func ValidateUserID(field, id string) error {
	if err := uuid.Validate(id); err != nil {
		if field == "receiverId" {
			return invalid(field, "Invalid receiver ID")
		}
		return invalid(field, "Invalid user ID")
	}
	return nil
}

// Validate checks a normalized send intent.
func (r SendMessageRequest) Validate() error {
	if err := ValidateUserID("receiverId", r.ReceiverID); err != nil {
		return err
	}
	if r.Content == "" {
		return invalid("content", "Message content is required")
	}
	if utf8.RuneCountInString(r.Content) > MaxContentLength {
		return invalid("content", "Message cannot exceed %d characters", MaxContentLength)
	}
	return nil
}

func (r MarkReadRequest) Validate() error {
	if err := uuid.Validate(r.MessageID); err != nil {
		return invalid("messageId", "Invalid message ID")
	}
	return nil
}

func (r TypingRequest) Validate() error {
	return ValidateUserID("receiverId", r.ReceiverID)
}

func (r RoomRequest) Validate() error {
	if strings.TrimSpace(r.RoomID) == "" {
		return invalid("roomId", "Room ID is required")
	}
	return nil
}

// RegisterRequest is the account creation payload.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r RegisterRequest) Normalized() RegisterRequest {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Username = strings.TrimSpace(r.Username)
	return r
}

func (r RegisterRequest) Validate() error {
	if _, err := mail.ParseAddress(r.Email); err != nil || strings.ContainsAny(r.Email, "<> ") {
		return invalid("email", "Please enter a valid email")
	}
	n := utf8.RuneCountInString(r.Username)
	if n < MinUsernameLength {
		return invalid("username", "Username must be at least %d characters long", MinUsernameLength)
	}
	if n > MaxUsernameLength {
		return invalid("username", "Username cannot exceed %d characters", MaxUsernameLength)
	}
	if len(r.Password) < MinPasswordLength {
		return invalid("password", "Password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Normalized() LoginRequest {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r
}

func (r LoginRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return invalid("email", "Email and password are required")
	}
	return nil
}
