package ws

import (
	"encoding/json"
	"strings"

	"github.com/arefin-aareef/talksy/internal/core/domain"

	"github.com/tidwall/gjson"
)

// inbound is a decoded client frame. Data is the raw JSON of the data field.
type inbound struct {
	Event string
	Ack   json.RawMessage
	Data  []byte
}

// decodeFrame peeks event, ack and data without a full unmarshal. The ack
// id is recovered even when the rest of the frame is unusable so the client
// still gets its reply.
func decodeFrame(frame []byte) (inbound, error) {
	var in inbound
	if !gjson.ValidBytes(frame) {
		return in, domain.ErrInvalidPayload
	}
	root := gjson.ParseBytes(frame)
	if !root.IsObject() {
		return in, domain.ErrInvalidPayload
	}
	if ack := root.Get("ack"); ack.Type == gjson.Number || ack.Type == gjson.String {
		in.Ack = json.RawMessage(ack.Raw)
	}
	ev := root.Get("event")
	if ev.Type != gjson.String || strings.TrimSpace(ev.Str) == "" {
		return in, domain.ErrInvalidPayload
	}
	in.Event = ev.Str
	data := root.Get("data")
	switch {
	case !data.Exists() || data.Type == gjson.Null:
		in.Data = []byte("{}")
	case data.IsObject():
		in.Data = []byte(data.Raw)
	default:
		return in, domain.ErrInvalidPayload
	}
	return in, nil
}

// decodeData unmarshals the data object of a frame into T.
func decodeData[T any](in inbound) (T, error) {
	var v T
	if err := json.Unmarshal(in.Data, &v); err != nil {
		return v, domain.ErrInvalidPayload
	}
	return v, nil
}

// encodeAck builds the reply frame for an inbound request id.
func encodeAck(id json.RawMessage, ack domain.Ack) ([]byte, error) {
	return json.Marshal(domain.Envelope{Event: domain.EventAck, Ack: id, Data: ack})
}
