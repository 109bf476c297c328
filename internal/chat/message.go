package chat

import "time"

// RoomKind distinguishes project-wide rooms from two-party private chats.
type RoomKind string

const (
	RoomProject RoomKind = "PROJECT"
	RoomPrivate RoomKind = "PRIVATE"
)

// DeliveryState tracks a message through the optimistic send path.
type DeliveryState int

const (
	// DeliveryPending means the message exists only locally; its ID is a temp token.
	DeliveryPending DeliveryState = iota
	// DeliveryConfirmed means the server assigned the permanent ID.
	DeliveryConfirmed
	// DeliveryFailed means the transmit errored; the entry stays visible.
	DeliveryFailed
)

func (s DeliveryState) String() string {
	switch s {
	case DeliveryPending:
		return "pending"
	case DeliveryConfirmed:
		return "confirmed"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UserRef identifies a chat participant.
type UserRef struct {
	ID   int64
	Name string
}

// Message is one timeline entry. While pending, ID holds the client-generated
// temp token; confirmation discards the token and the server ID becomes the
// permanent identity.
type Message struct {
	ID        string
	Sender    UserRef
	Content   string
	Timestamp time.Time
	State     DeliveryState
	Seen      bool // read receipt, only meaningful on the viewer's own messages
}

// MessageSummary is the directory's view of a room's latest message.
type MessageSummary struct {
	ID        string
	Content   string
	Sender    UserRef
	Timestamp time.Time
}

// Room is a conversation context. A PRIVATE room is unique per unordered
// participant pair; rooms persist for the whole session.
type Room struct {
	ID           string
	Kind         RoomKind
	Name         string
	Participants []UserRef
	LastMessage  *MessageSummary
	Unread       bool
}

// SeenMarker records the last message this viewer acknowledged in a room.
type SeenMarker struct {
	RoomID            string
	LastSeenMessageID string
}
