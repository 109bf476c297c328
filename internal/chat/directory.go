package chat

import (
	"sort"
	"time"
)

// Directory holds every room known to the session, keyed by ID. Two sources
// mutate it, REST responses and socket events, and both go through Upsert,
// UpdateLastMessage and ClearUnread so neither can silently overwrite the other.
type Directory struct {
	rooms  map[string]*Room
	active string
}

// NewDirectory returns an empty directory with no active room.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]*Room)}
}

// Upsert adds or replaces a room record, last write wins by ID. A locally
// raised unread flag survives a REST refresh that does not know about it.
func (d *Directory) Upsert(r Room) {
	if existing, ok := d.rooms[r.ID]; ok {
		r.Unread = r.Unread || existing.Unread
	}
	if r.ID == d.active {
		r.Unread = false
	}
	cp := r
	d.rooms[r.ID] = &cp
}

// SetActive marks a room as the open conversation and clears its unread flag.
func (d *Directory) SetActive(roomID string) {
	d.active = roomID
	d.ClearUnread(roomID)
}

// Active returns the ID of the open room, empty if none.
func (d *Directory) Active() string { return d.active }

// Get returns a copy of the room with the given ID.
func (d *Directory) Get(id string) (Room, bool) {
	r, ok := d.rooms[id]
	if !ok {
		return Room{}, false
	}
	return *r, true
}

// List returns rooms sorted by most recent activity, newest first. Rooms that
// have never seen a message sort last. Ties break on ID for determinism.
func (d *Directory) List() []Room {
	out := make([]Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := lastActivity(out[i]), lastActivity(out[j])
		if ti.Equal(tj) {
			return out[i].ID < out[j].ID
		}
		return ti.After(tj)
	})
	return out
}

func lastActivity(r Room) time.Time {
	if r.LastMessage == nil {
		return time.Time{}
	}
	return r.LastMessage.Timestamp
}

// UpdateLastMessage records the newest confirmed message for a room,
// registering a shell room if the socket learned about it before REST did.
// The unread flag is raised only for rooms other than the active one.
func (d *Directory) UpdateLastMessage(roomID string, s MessageSummary) {
	r, ok := d.rooms[roomID]
	if !ok {
		r = &Room{ID: roomID}
		d.rooms[roomID] = r
	}
	cp := s
	r.LastMessage = &cp
	if roomID != d.active {
		r.Unread = true
	}
}

// ClearUnread drops the unread flag, invoked when a room becomes active.
func (d *Directory) ClearUnread(roomID string) {
	if r, ok := d.rooms[roomID]; ok {
		r.Unread = false
	}
}

// FindPrivate returns the existing two-party room whose participant set
// matches exactly, independent of order. Used before asking the backend to
// create a room so the same pair never gets a duplicate.
func (d *Directory) FindPrivate(participantIDs []int64) (Room, bool) {
	want := make(map[int64]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		want[id] = struct{}{}
	}

	for _, r := range d.rooms {
		if r.Kind != RoomPrivate || len(r.Participants) != len(want) {
			continue
		}
		match := true
		for _, p := range r.Participants {
			if _, ok := want[p.ID]; !ok {
				match = false
				break
			}
		}
		if match {
			return *r, true
		}
	}
	return Room{}, false
}

// Len reports the number of known rooms.
func (d *Directory) Len() int { return len(d.rooms) }
