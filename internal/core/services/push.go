package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/arefin-aareef/talksy/internal/core/contracts"
	"github.com/arefin-aareef/talksy/internal/core/domain"
)

// Frame encodes an outbound event.
func Frame(event string, data any) ([]byte, error) {
	return json.Marshal(domain.Envelope{Event: event, Data: data})
}

// push hands frame to h, giving up after timeout.
func push(ctx context.Context, h contracts.Handle, timeout time.Duration, frame []byte) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.Send(ctx, frame)
}
