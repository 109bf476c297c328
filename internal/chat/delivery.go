package chat

// DeliveryTracker emits seen acknowledgments for foreign messages the viewer
// has on screen and records read receipts on the viewer's own messages.
type DeliveryTracker struct {
	viewer  int64
	conn    *Conn
	markers map[string]SeenMarker // room id -> last acknowledged
}

// NewDeliveryTracker builds a tracker for the given viewer over the session's
// connection.
func NewDeliveryTracker(viewer int64, conn *Conn) *DeliveryTracker {
	return &DeliveryTracker{
		viewer:  viewer,
		conn:    conn,
		markers: make(map[string]SeenMarker),
	}
}

// OnArrival acknowledges a message that just landed in the active room,
// unless the viewer authored it. Fire and forget over the live socket.
func (d *DeliveryTracker) OnArrival(roomID string, active bool, m Message) {
	if !active || m.Sender.ID == d.viewer {
		return
	}
	d.conn.SendSeen(m.ID)
	d.markers[roomID] = SeenMarker{RoomID: roomID, LastSeenMessageID: m.ID}
}

// OnSeenEvent annotates the viewer's message with a read receipt. Receipts
// for messages the viewer did not author, or that are unknown, are ignored.
// Delivery state and ordering are untouched.
func (d *DeliveryTracker) OnSeenEvent(tl *Timeline, messageID string) bool {
	m, ok := tl.Get(messageID)
	if !ok || m.Sender.ID != d.viewer {
		return false
	}
	return tl.MarkSeen(messageID)
}

// Marker returns the viewer's last acknowledgment for a room.
func (d *DeliveryTracker) Marker(roomID string) (SeenMarker, bool) {
	m, ok := d.markers[roomID]
	return m, ok
}
