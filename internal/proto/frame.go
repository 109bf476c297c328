package proto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire format for the per-room chat socket. Chat frames carry no "type"
// discriminator on this wire; only seen acknowledgments do.

const TypeSeen = "seen"

// ErrMalformedFrame marks an inbound frame that failed to parse or validate.
// Such frames are dropped by the session; they never terminate it.
var ErrMalformedFrame = errors.New("malformed frame")

// ChatSend is the client-to-server chat payload.
type ChatSend struct {
	Message   string `json:"message"`
	TempToken string `json:"temp_token,omitempty"`
}

// ChatEvent is a server-confirmed message broadcast to the room. TempToken is
// echoed back so the sender can correlate its optimistic entry; RoomID lets
// the backend push events for conversations other than the socket's own.
type ChatEvent struct {
	ID         string `json:"id"`
	Message    string `json:"message"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
	TempToken  string `json:"temp_token,omitempty"`
	RoomID     string `json:"room_id,omitempty"`
}

// SeenEvent acknowledges that a message was read. Same shape in both directions.
type SeenEvent struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
}

// InboundFrame is a client-to-server frame as the backend sees it.
type InboundFrame struct {
	Chat *ChatSend
	Seen *SeenEvent
}

// DecodeInbound classifies raw data arriving from a chat client.
func DecodeInbound(data []byte) (InboundFrame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if probe.Type == TypeSeen {
		var seen SeenEvent
		if err := json.Unmarshal(data, &seen); err != nil {
			return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if seen.MessageID == "" {
			return InboundFrame{}, fmt.Errorf("%w: seen without message_id", ErrMalformedFrame)
		}
		return InboundFrame{Seen: &seen}, nil
	}
	if probe.Type != "" {
		return InboundFrame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, probe.Type)
	}

	var chat ChatSend
	if err := json.Unmarshal(data, &chat); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return InboundFrame{Chat: &chat}, nil
}

// Frame is a decoded server-to-client frame; exactly one field is non-nil.
type Frame struct {
	Chat *ChatEvent
	Seen *SeenEvent
}

// DecodeFrame classifies raw socket data into a typed frame.
func DecodeFrame(data []byte) (Frame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if probe.Type == TypeSeen {
		var seen SeenEvent
		if err := json.Unmarshal(data, &seen); err != nil {
			return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		if seen.MessageID == "" {
			return Frame{}, fmt.Errorf("%w: seen without message_id", ErrMalformedFrame)
		}
		return Frame{Seen: &seen}, nil
	}
	if probe.Type != "" {
		return Frame{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, probe.Type)
	}

	var chat ChatEvent
	if err := json.Unmarshal(data, &chat); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if chat.ID == "" {
		return Frame{}, fmt.Errorf("%w: chat event without id", ErrMalformedFrame)
	}
	return Frame{Chat: &chat}, nil
}
