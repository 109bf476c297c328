package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Fetcher supplies the room list and per-room history from the REST backend.
// History is served newest-first; the timeline reverses it on load.
type Fetcher interface {
	Rooms(ctx context.Context) ([]Room, error)
	History(ctx context.Context, roomID string) ([]Message, error)
	CreatePrivateRoom(ctx context.Context, participantIDs []int64) (Room, error)
}

// UpdateKind classifies session updates pushed to the UI.
type UpdateKind int

const (
	// UpdateRooms signals that the directory changed; re-read Rooms().
	UpdateRooms UpdateKind = iota
	// UpdateHistory signals that the active timeline was replaced.
	UpdateHistory
	// UpdateMessage carries an appended, reconciled or pending entry.
	UpdateMessage
	// UpdateMessageFailed carries an entry whose transmit errored.
	UpdateMessageFailed
	// UpdateReceipt carries the viewer's message after a read receipt landed.
	UpdateReceipt
	// UpdateConnState signals a connection lifecycle transition.
	UpdateConnState
)

// Update is one observable session change.
type Update struct {
	Kind    UpdateKind
	RoomID  string
	Message Message
	State   State
}

// Options tunes session behavior.
type Options struct {
	// ReconnectDelay is the fixed wait between reconnect attempts. Attempts
	// repeat indefinitely while the room stays bound; there is no cap and no
	// backoff growth. Defaults to 3s.
	ReconnectDelay time.Duration
}

const defaultReconnectDelay = 3 * time.Second

// Session drives one viewer's chat state: the room directory, the active
// timeline, the single live connection and seen tracking. Every component
// mutation happens on the Run goroutine; public methods post commands onto
// the queue and wait for the loop to execute them, so callers see a
// synchronous API while handlers stay single-threaded.
type Session struct {
	viewer  UserRef
	fetcher Fetcher
	log     *zerolog.Logger

	conn     *Conn
	timeline *Timeline
	dir      *Directory
	tracker  *DeliveryTracker

	queue     chan loopEvent
	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wires a session for the given viewer. The dialer receives room
// IDs and must resolve them to the correct workspace host itself.
func NewSession(viewer UserRef, fetcher Fetcher, dialer Dialer, opts Options, logger *zerolog.Logger) *Session {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}

	s := &Session{
		viewer:   viewer,
		fetcher:  fetcher,
		log:      logger,
		timeline: NewTimeline(),
		dir:      NewDirectory(),
		queue:    make(chan loopEvent, 64),
		updates:  make(chan Update, 64),
		done:     make(chan struct{}),
	}
	s.conn = newConn(dialer, s.queue, s.done, opts.ReconnectDelay, logger)
	s.tracker = NewDeliveryTracker(viewer.ID, s.conn)
	return s
}

// Run processes queued events until ctx is cancelled or Close is called.
// Frames from one socket are handled strictly in receipt order.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.Close()
			s.conn.Teardown()
			return
		case <-s.done:
			s.conn.Teardown()
			return
		case ev := <-s.queue:
			s.dispatch(ev)
		}
	}
}

// Close stops the session loop. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Updates exposes the session's change feed. Slow consumers lose updates
// rather than stalling dispatch.
func (s *Session) Updates() <-chan Update { return s.updates }

// RefreshRooms reloads the directory from the REST backend. The fetch runs on
// the caller's goroutine; its error surfaces here with no automatic retry.
func (s *Session) RefreshRooms(ctx context.Context) error {
	rooms, err := s.fetcher.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("fetch rooms: %w", err)
	}
	return s.post(func() {
		for _, r := range rooms {
			s.dir.Upsert(r)
		}
		s.emit(Update{Kind: UpdateRooms})
	})
}

// OpenRoom makes roomID the active conversation: history is fetched first,
// then the timeline is replaced and the connection rebound. A fetch error is
// returned to the caller and leaves the previous room fully intact.
func (s *Session) OpenRoom(ctx context.Context, roomID string) error {
	history, err := s.fetcher.History(ctx, roomID)
	if err != nil {
		return fmt.Errorf("fetch history for room %s: %w", roomID, err)
	}
	return s.post(func() {
		s.dir.SetActive(roomID)
		s.timeline.LoadHistory(history)
		s.conn.Open(roomID)
		s.emit(Update{Kind: UpdateHistory, RoomID: roomID})
		s.emit(Update{Kind: UpdateRooms, RoomID: roomID})
		s.emit(Update{Kind: UpdateConnState, RoomID: roomID, State: s.conn.State()})
	})
}

// Send posts content to the active room optimistically: a pending entry with
// a fresh temp token lands in the timeline before the frame goes out. While
// the socket is not open, ErrNotConnected is returned and nothing is queued.
func (s *Session) Send(content string) error {
	var sendErr error
	err := s.post(func() {
		if s.conn.RoomID() == "" {
			sendErr = ErrNoActiveRoom
			return
		}
		if s.conn.State() != StateOpen {
			sendErr = ErrNotConnected
			return
		}

		token := "temp-" + uuid.NewString()
		m := Message{
			ID:        token,
			Sender:    s.viewer,
			Content:   content,
			Timestamp: time.Now(),
			State:     DeliveryPending,
		}
		s.timeline.AppendPending(m)
		s.emit(Update{Kind: UpdateMessage, RoomID: s.conn.RoomID(), Message: m})
		sendErr = s.conn.Send(content, token)
	})
	if err != nil {
		return err
	}
	return sendErr
}

// StartPrivateChat returns the room ID for a private conversation with peer,
// reusing an existing pair room before asking the backend to create one. The
// backend create is itself idempotent per participant set.
func (s *Session) StartPrivateChat(ctx context.Context, peer UserRef) (string, error) {
	participants := []int64{s.viewer.ID, peer.ID}

	var existing string
	if err := s.post(func() {
		if r, ok := s.dir.FindPrivate(participants); ok {
			existing = r.ID
		}
	}); err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	room, err := s.fetcher.CreatePrivateRoom(ctx, participants)
	if err != nil {
		return "", fmt.Errorf("create private room: %w", err)
	}
	if err := s.post(func() {
		s.dir.Upsert(room)
		s.emit(Update{Kind: UpdateRooms, RoomID: room.ID})
	}); err != nil {
		return "", err
	}
	return room.ID, nil
}

// Rooms returns the directory snapshot in display order.
func (s *Session) Rooms() []Room {
	var out []Room
	_ = s.post(func() { out = s.dir.List() })
	return out
}

// Messages returns the active timeline snapshot.
func (s *Session) Messages() []Message {
	var out []Message
	_ = s.post(func() { out = s.timeline.Messages() })
	return out
}

// ActiveRoom returns the ID of the open room, empty if none.
func (s *Session) ActiveRoom() string {
	var out string
	_ = s.post(func() { out = s.dir.Active() })
	return out
}

// ConnState returns the connection lifecycle phase.
func (s *Session) ConnState() State {
	state := StateDisconnected
	_ = s.post(func() { state = s.conn.State() })
	return state
}

// post runs fn on the session loop and waits for it to complete.
func (s *Session) post(fn func()) error {
	ran := make(chan struct{})
	ev := loopEvent{kind: evCommand, cmd: func() {
		fn()
		close(ran)
	}}

	select {
	case s.queue <- ev:
	case <-s.done:
		return ErrSessionClosed
	}
	select {
	case <-ran:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) dispatch(ev loopEvent) {
	switch ev.kind {
	case evCommand:
		ev.cmd()
	case evDialed:
		if s.conn.handleDialed(ev.gen, ev.sock, ev.cancel) {
			s.emit(Update{Kind: UpdateConnState, RoomID: s.conn.RoomID(), State: s.conn.State()})
		}
	case evDialFailed:
		if s.conn.handleDialFailed(ev.gen, ev.err) {
			s.emit(Update{Kind: UpdateConnState, RoomID: s.conn.RoomID(), State: s.conn.State()})
		}
	case evClosed:
		if s.conn.handleClosed(ev.gen, ev.err) {
			s.emit(Update{Kind: UpdateConnState, RoomID: s.conn.RoomID(), State: s.conn.State()})
		}
	case evRetry:
		if s.conn.handleRetry(ev.gen) {
			s.emit(Update{Kind: UpdateConnState, RoomID: s.conn.RoomID(), State: s.conn.State()})
		}
	case evSendFailed:
		s.handleSendFailed(ev)
	case evFrame:
		if ev.gen != s.conn.Generation() {
			// Socket from a previous room binding; its events must not leak
			// into the current timeline.
			return
		}
		s.handleFrame(ev.frame)
	}
}

func (s *Session) handleSendFailed(ev loopEvent) {
	if ev.gen != s.conn.Generation() {
		return
	}
	s.log.Warn().Err(ev.err).Str("temp_token", ev.token).Msg("message transmit failed")
	if s.timeline.MarkFailed(ev.token) {
		if m, ok := s.timeline.GetPending(ev.token); ok {
			s.emit(Update{Kind: UpdateMessageFailed, RoomID: s.conn.RoomID(), Message: m})
		}
	}
}

func (s *Session) handleFrame(f proto.Frame) {
	switch {
	case f.Seen != nil:
		if s.tracker.OnSeenEvent(s.timeline, f.Seen.MessageID) {
			if m, ok := s.timeline.Get(f.Seen.MessageID); ok {
				s.emit(Update{Kind: UpdateReceipt, RoomID: s.conn.RoomID(), Message: m})
			}
		}
	case f.Chat != nil:
		s.handleChat(f.Chat)
	}
}

func (s *Session) handleChat(f *proto.ChatEvent) {
	ts, err := time.Parse(time.RFC3339Nano, f.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	m := Message{
		ID:        f.ID,
		Sender:    UserRef{ID: f.SenderID, Name: f.SenderName},
		Content:   f.Message,
		Timestamp: ts,
		State:     DeliveryConfirmed,
	}

	roomID := f.RoomID
	if roomID == "" {
		roomID = s.conn.RoomID()
	}
	active := roomID == s.conn.RoomID()

	if active {
		if !s.timeline.ReconcileOrAppend(f.TempToken, m) {
			// Redelivery of a confirmed message; at-least-once is expected.
			return
		}
		s.emit(Update{Kind: UpdateMessage, RoomID: roomID, Message: m})
		s.tracker.OnArrival(roomID, true, m)
	}

	s.dir.UpdateLastMessage(roomID, MessageSummary{
		ID:        m.ID,
		Content:   m.Content,
		Sender:    m.Sender,
		Timestamp: m.Timestamp,
	})
	s.emit(Update{Kind: UpdateRooms, RoomID: roomID})
}

func (s *Session) emit(u Update) {
	select {
	case s.updates <- u:
	default:
		// Drop if slow consumer.
	}
}
