package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/chat"
)

// Client talks to the workspace REST API on behalf of one authenticated user.
// It implements chat.Fetcher. Errors surface to the caller as-is; there is no
// retry layer here.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   *zerolog.Logger
}

// New builds a client for the given base URL. An empty token skips the
// Authorization header (cookie-based deployments).
func New(baseURL, token string, logger *zerolog.Logger) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 15 * time.Second},
		log:   logger,
	}
}

type userPayload struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type summaryPayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
}

type roomPayload struct {
	ID           string          `json:"id"`
	RoomType     string          `json:"room_type"`
	Name         string          `json:"name"`
	Participants []userPayload   `json:"participants"`
	LastMessage  *summaryPayload `json:"last_message"`
}

type messagePayload struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Sender     int64  `json:"sender"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
}

// Rooms fetches the viewer's full room list.
func (c *Client) Rooms(ctx context.Context) ([]chat.Room, error) {
	var payload []roomPayload
	if err := c.get(ctx, "/api/chat-rooms/", &payload); err != nil {
		return nil, err
	}
	rooms := make([]chat.Room, 0, len(payload))
	for _, p := range payload {
		rooms = append(rooms, p.toRoom())
	}
	return rooms, nil
}

// History fetches a room's messages in the order the backend serves them:
// newest first. The timeline reverses them on load.
func (c *Client) History(ctx context.Context, roomID string) ([]chat.Message, error) {
	var payload []messagePayload
	if err := c.get(ctx, "/api/chat-rooms/"+roomID+"/messages/", &payload); err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(payload))
	for _, p := range payload {
		msgs = append(msgs, chat.Message{
			ID:        p.ID,
			Sender:    chat.UserRef{ID: p.Sender, Name: p.SenderName},
			Content:   p.Content,
			Timestamp: parseTime(p.Timestamp),
			State:     chat.DeliveryConfirmed,
		})
	}
	return msgs, nil
}

// CreatePrivateRoom asks the backend for a two-party room. The endpoint is
// idempotent per participant set: an existing pair room comes back unchanged.
func (c *Client) CreatePrivateRoom(ctx context.Context, participantIDs []int64) (chat.Room, error) {
	body, err := json.Marshal(map[string][]int64{"participants": participantIDs})
	if err != nil {
		return chat.Room{}, fmt.Errorf("marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/private-chat/", bytes.NewReader(body))
	if err != nil {
		return chat.Room{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return chat.Room{}, fmt.Errorf("create private room: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return chat.Room{}, fmt.Errorf("create private room: unexpected status %d", resp.StatusCode)
	}

	var payload roomPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return chat.Room{}, fmt.Errorf("decode private room: %w", err)
	}
	return payload.toRoom(), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	c.log.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("api request")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (p roomPayload) toRoom() chat.Room {
	room := chat.Room{
		ID:   p.ID,
		Kind: chat.RoomKind(p.RoomType),
		Name: p.Name,
	}
	for _, u := range p.Participants {
		room.Participants = append(room.Participants, chat.UserRef{ID: u.ID, Name: u.FullName})
	}
	if p.LastMessage != nil {
		room.LastMessage = &chat.MessageSummary{
			ID:        p.LastMessage.ID,
			Content:   p.LastMessage.Content,
			Sender:    chat.UserRef{ID: p.LastMessage.SenderID, Name: p.LastMessage.SenderName},
			Timestamp: parseTime(p.LastMessage.Timestamp),
		}
	}
	return room
}

func parseTime(s string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
