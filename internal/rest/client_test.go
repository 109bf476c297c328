package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func TestRoomsDecodesPayload(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat-rooms/" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":"r1","room_type":"PROJECT","name":"Apollo","participants":[{"id":1,"full_name":"Alice"}],
			 "last_message":{"id":"9","content":"hi","sender_id":1,"sender_name":"Alice","timestamp":"2026-01-02T10:00:00Z"}},
			{"id":"p1","room_type":"PRIVATE","participants":[{"id":1,"full_name":"Alice"},{"id":2,"full_name":"Bob"}],"last_message":null}
		]`))
	}))
	defer ts.Close()

	client := New(ts.URL, "tok-123", nopLogger())
	rooms, err := client.Rooms(context.Background())
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %d", len(rooms))
	}
	if rooms[0].Kind != chat.RoomProject || rooms[0].LastMessage == nil || rooms[0].LastMessage.ID != "9" {
		t.Fatalf("unexpected first room: %+v", rooms[0])
	}
	if rooms[1].Kind != chat.RoomPrivate || rooms[1].LastMessage != nil || len(rooms[1].Participants) != 2 {
		t.Fatalf("unexpected second room: %+v", rooms[1])
	}
}

func TestHistoryKeepsServerOrder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat-rooms/r1/messages/" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// Newest first, as the backend serves it.
		_, _ = w.Write([]byte(`[
			{"id":"3","content":"third","sender":2,"sender_name":"Bob","timestamp":"2026-01-02T10:02:00Z"},
			{"id":"2","content":"second","sender":1,"sender_name":"Alice","timestamp":"2026-01-02T10:01:00Z"},
			{"id":"1","content":"first","sender":2,"sender_name":"Bob","timestamp":"2026-01-02T10:00:00Z"}
		]`))
	}))
	defer ts.Close()

	client := New(ts.URL, "", nopLogger())
	msgs, err := client.History(context.Background(), "r1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	// The client must not reorder; reversal is the timeline's job.
	want := []string{"3", "2", "1"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
	if msgs[0].Sender.Name != "Bob" || msgs[0].State != chat.DeliveryConfirmed {
		t.Fatalf("unexpected mapping: %+v", msgs[0])
	}
}

func TestCreatePrivateRoomPostsParticipants(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/private-chat/" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Participants []int64 `json:"participants"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if len(body.Participants) != 2 || body.Participants[0] != 1 || body.Participants[1] != 2 {
			t.Fatalf("unexpected participants: %v", body.Participants)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"p1","room_type":"PRIVATE","participants":[{"id":1},{"id":2}]}`))
	}))
	defer ts.Close()

	client := New(ts.URL, "", nopLogger())
	room, err := client.CreatePrivateRoom(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("create private room: %v", err)
	}
	if room.ID != "p1" || room.Kind != chat.RoomPrivate {
		t.Fatalf("unexpected room: %+v", room)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	client := New(ts.URL, "", nopLogger())
	if _, err := client.History(context.Background(), "r1"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if _, err := client.Rooms(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if _, err := client.CreatePrivateRoom(context.Background(), []int64{1, 2}); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
