package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidation         = errors.New("validation failed")
	ErrSendFailed         = errors.New("send message failed")
	ErrMarkReadFailed     = errors.New("mark as read failed")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrInvalidUserID      = errors.New("invalid user id")
	ErrInvalidMessageID   = errors.New("invalid message id")
	ErrUserNotFound       = errors.New("user not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConnectionClosed   = errors.New("connection closed")
)

// ValidationError carries a client facing reason and matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ErrorAck translates an error into the acknowledgment the client sees.
// Collaborator errors never reach the transport verbatim.
func ErrorAck(err error) Ack {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return Ack{Error: ve.Reason}
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrUnauthenticated):
		return Ack{Error: "Unauthorized"}
	case errors.Is(err, ErrSendFailed):
		return Ack{Error: "Failed to send message"}
	case errors.Is(err, ErrMarkReadFailed):
		return Ack{Error: "Failed to mark message as read"}
	case errors.Is(err, ErrUnknownEvent):
		return Ack{Error: "Unknown event"}
	case errors.Is(err, ErrInvalidPayload):
		return Ack{Error: "Invalid payload"}
	default:
		return Ack{Error: "Internal error"}
	}
}
