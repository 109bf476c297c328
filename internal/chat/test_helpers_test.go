package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
)

// wsTestServer accepts sockets on /ws/chat/{room}/, counts dials per room,
// captures inbound frames and lets tests broadcast or kill connections.
type wsTestServer struct {
	t  *testing.T
	ts *httptest.Server

	mu    sync.Mutex
	conns map[string][]*websocket.Conn
	dials map[string]int

	inbound chan inboundFrame
}

type inboundFrame struct {
	room string
	data []byte
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{
		t:       t,
		conns:   make(map[string][]*websocket.Conn),
		dials:   make(map[string]int),
		inbound: make(chan inboundFrame, 64),
	}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.ts.Close)
	return s
}

func (s *wsTestServer) wsURL() string {
	return strings.Replace(s.ts.URL, "http", "ws", 1)
}

func (s *wsTestServer) handle(w http.ResponseWriter, r *http.Request) {
	room := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.dials[room]++
	s.conns[room] = append(s.conns[room], conn)
	s.mu.Unlock()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		s.inbound <- inboundFrame{room: room, data: data}
	}
}

func (s *wsTestServer) broadcast(room string, v any) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[room]...)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = wsjson.Write(ctx, conn, v)
	}
}

func (s *wsTestServer) broadcastRaw(room string, data []byte) {
	s.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns[room]...)
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Write(ctx, websocket.MessageText, data)
	}
}

// killRoom closes every socket of a room abnormally, as a crashed backend would.
func (s *wsTestServer) killRoom(room string) {
	s.mu.Lock()
	conns := s.conns[room]
	s.conns[room] = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusInternalError, "test kill")
	}
}

func (s *wsTestServer) dialCount(room string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials[room]
}

// nextInbound waits for a frame the client sent to the given room.
func (s *wsTestServer) nextInbound(room string) []byte {
	s.t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-s.inbound:
			if f.room == room {
				return f.data
			}
		case <-deadline:
			s.t.Fatalf("timed out waiting for inbound frame on room %s", room)
			return nil
		}
	}
}

// fakeFetcher is an in-memory REST collaborator.
type fakeFetcher struct {
	mu      sync.Mutex
	rooms   []Room
	history map[string][]Message
	histErr map[string]error
	created []Room
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		history: make(map[string][]Message),
		histErr: make(map[string]error),
	}
}

func (f *fakeFetcher) Rooms(context.Context) ([]Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Room(nil), f.rooms...), nil
}

func (f *fakeFetcher) History(_ context.Context, roomID string) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.histErr[roomID]; err != nil {
		return nil, err
	}
	return append([]Message(nil), f.history[roomID]...), nil
}

func (f *fakeFetcher) CreatePrivateRoom(_ context.Context, participantIDs []int64) (Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	refs := make([]UserRef, 0, len(participantIDs))
	for _, id := range participantIDs {
		refs = append(refs, UserRef{ID: id})
	}
	room := Room{
		ID:           fmt.Sprintf("p-created-%d", len(f.created)+1),
		Kind:         RoomPrivate,
		Participants: refs,
	}
	f.created = append(f.created, room)
	return room, nil
}

func (f *fakeFetcher) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func startSession(t *testing.T, viewer UserRef, fetcher Fetcher, baseURL string, delay time.Duration) *Session {
	t.Helper()
	logger := zerolog.Nop()
	s := NewSession(viewer, fetcher, URLDialer{BaseURL: baseURL}, Options{ReconnectDelay: delay}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		s.Close()
	})
	return s
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	waitFor(t, func() bool { return s.ConnState() == want }, "state "+want.String())
}
