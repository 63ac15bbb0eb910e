package domain

import (
	"errors"
	"strings"
	"testing"
)

const testReceiver = "6f1c1f4e-2c57-4a46-9a9e-2f3f6b0b9d10"

func TestSendMessageRequestValidate(t *testing.T) {
	tests := []struct {
		name   string
		req    SendMessageRequest
		reason string
	}{
		{"ok", SendMessageRequest{ReceiverID: testReceiver, Content: "hi"}, ""},
		{"bad receiver", SendMessageRequest{ReceiverID: "bob", Content: "hi"}, "Invalid receiver ID"},
		{"blank content", SendMessageRequest{ReceiverID: testReceiver, Content: "   "}, "Message content is required"},
		{"at limit", SendMessageRequest{ReceiverID: testReceiver, Content: strings.Repeat("é", MaxContentLength)}, ""},
		{"too long", SendMessageRequest{ReceiverID: testReceiver, Content: strings.Repeat("a", MaxContentLength+1)}, "Message cannot exceed 1000 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Normalized().Validate()
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if got := ErrorAck(err).Error; got != tt.reason {
				t.Errorf("ack error = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestCorrelationIDFallsBackToTempID(t *testing.T) {
	r := SendMessageRequest{TempID: "t1"}
	if got := r.CorrelationID(); got != "t1" {
		t.Errorf("CorrelationID() = %q, want t1", got)
	}
	r.ClientCorrelationID = "c1"
	if got := r.CorrelationID(); got != "c1" {
		t.Errorf("CorrelationID() = %q, want c1", got)
	}
}

func TestRegisterRequestValidate(t *testing.T) {
	ok := RegisterRequest{Email: " Alice@Example.com ", Username: "alice", Password: "secret1"}.Normalized()
	if ok.Email != "alice@example.com" {
		t.Errorf("email not normalized: %q", ok.Email)
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []RegisterRequest{
		{Email: "nope", Username: "alice", Password: "secret1"},
		{Email: "a@b.co", Username: "a", Password: "secret1"},
		{Email: "a@b.co", Username: strings.Repeat("x", 51), Password: "secret1"},
		{Email: "a@b.co", Username: "alice", Password: "123"},
	}
	for _, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrValidation) {
			t.Errorf("Validate(%+v) = %v, want validation error", r, err)
		}
	}
}

func TestErrorAckHidesCollaboratorErrors(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnauthorized, "Unauthorized"},
		{errors.Join(ErrSendFailed, errors.New("pq: connection refused")), "Failed to send message"},
		{ErrMarkReadFailed, "Failed to mark message as read"},
		{errors.New("boom"), "Internal error"},
	}
	for _, tt := range tests {
		if got := ErrorAck(tt.err); got.Error != tt.want || got.Success {
			t.Errorf("ErrorAck(%v) = %+v, want error %q", tt.err, got, tt.want)
		}
	}
}

func TestRoomRequestValidate(t *testing.T) {
	if err := (RoomRequest{RoomID: " "}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("blank room accepted: %v", err)
	}
	if err := (RoomRequest{RoomID: "general"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
