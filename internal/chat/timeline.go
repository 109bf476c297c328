package chat

// Timeline is the ordered message sequence for the currently open room.
// Confirmed entries keep strict arrival order; the only in-place mutation is
// swapping a pending entry for its confirmed counterpart.
type Timeline struct {
	entries []Message
	byID    map[string]int // confirmed server id -> index
	pending map[string]int // temp token -> index
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{
		byID:    make(map[string]int),
		pending: make(map[string]int),
	}
}

// LoadHistory replaces the timeline with server-supplied history. The backend
// serves history newest-first, so entries are reversed into chronological
// order. Optimistic entries from a previous room are discarded.
func (t *Timeline) LoadHistory(history []Message) {
	t.entries = make([]Message, 0, len(history))
	t.byID = make(map[string]int, len(history))
	t.pending = make(map[string]int)

	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		m.State = DeliveryConfirmed
		if _, dup := t.byID[m.ID]; dup {
			continue
		}
		t.byID[m.ID] = len(t.entries)
		t.entries = append(t.entries, m)
	}
}

// AppendPending adds an optimistic entry keyed by the temp token in m.ID.
func (t *Timeline) AppendPending(m Message) {
	m.State = DeliveryPending
	t.pending[m.ID] = len(t.entries)
	t.entries = append(t.entries, m)
}

// ReconcileOrAppend applies a confirmed message. A matching temp token
// replaces the pending entry at its original position; a server ID already
// present is redelivery and is ignored; anything else appends at the tail in
// arrival order. Reports whether the timeline changed.
func (t *Timeline) ReconcileOrAppend(tempToken string, m Message) bool {
	if _, dup := t.byID[m.ID]; dup {
		return false
	}
	m.State = DeliveryConfirmed

	if tempToken != "" {
		if idx, ok := t.pending[tempToken]; ok {
			delete(t.pending, tempToken)
			t.byID[m.ID] = idx
			t.entries[idx] = m
			return true
		}
	}

	t.byID[m.ID] = len(t.entries)
	t.entries = append(t.entries, m)
	return true
}

// MarkFailed flags the pending entry for tempToken after a transmit error.
// The entry stays visible and keeps its token mapping: if the server did
// receive the frame, a late confirmation still reconciles in place.
func (t *Timeline) MarkFailed(tempToken string) bool {
	idx, ok := t.pending[tempToken]
	if !ok {
		return false
	}
	t.entries[idx].State = DeliveryFailed
	return true
}

// MarkSeen annotates the confirmed entry with a read receipt.
func (t *Timeline) MarkSeen(id string) bool {
	idx, ok := t.byID[id]
	if !ok {
		return false
	}
	t.entries[idx].Seen = true
	return true
}

// Get returns the confirmed entry with the given server ID.
func (t *Timeline) Get(id string) (Message, bool) {
	idx, ok := t.byID[id]
	if !ok {
		return Message{}, false
	}
	return t.entries[idx], true
}

// GetPending returns the optimistic entry for a temp token.
func (t *Timeline) GetPending(tempToken string) (Message, bool) {
	idx, ok := t.pending[tempToken]
	if !ok {
		return Message{}, false
	}
	return t.entries[idx], true
}

// Messages returns a copy of the entries in display order.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// Last returns the most recent entry.
func (t *Timeline) Last() (Message, bool) {
	if len(t.entries) == 0 {
		return Message{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Len reports the number of entries.
func (t *Timeline) Len() int { return len(t.entries) }
