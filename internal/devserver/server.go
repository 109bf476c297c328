package devserver

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// Server is a stand-in chat backend for local development and integration
// tests: the production REST surface plus a per-room socket that assigns
// server IDs, echoes temp tokens back and rebroadcasts seen acknowledgments.
// It trusts the caller's identity (query params); transport authorization is
// the production deployment's concern, not this stub's.
type Server struct {
	store *Store
	log   *zerolog.Logger

	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{} // room id -> subscribers
}

type subscriber struct {
	userID int64
	send   chan any
}

// New builds a server over the given store.
func New(store *Store, logger *zerolog.Logger) *Server {
	return &Server{
		store: store,
		log:   logger,
		subs:  make(map[string]map[*subscriber]struct{}),
	}
}

// Handler returns the HTTP surface.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/chat-rooms/", s.listRooms)
	r.GET("/api/chat-rooms/:id/messages/", s.history)
	r.POST("/api/private-chat/", s.createPrivateRoom)
	r.GET("/ws/chat/:id/", s.serveWS)

	return r
}

type userResponse struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type summaryResponse struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SenderID   int64  `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
}

type roomResponse struct {
	ID           string           `json:"id"`
	RoomType     string           `json:"room_type"`
	Name         string           `json:"name"`
	Participants []userResponse   `json:"participants"`
	LastMessage  *summaryResponse `json:"last_message"`
}

type messageResponse struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	Sender     int64  `json:"sender"`
	SenderName string `json:"sender_name"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) listRooms(c *gin.Context) {
	rooms, err := s.store.Rooms(c.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list rooms")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, r := range rooms {
		resp := toRoomResponse(r)
		if latest, err := s.store.History(c.Request.Context(), r.ID, 1); err == nil && len(latest) > 0 {
			m := latest[0]
			resp.LastMessage = &summaryResponse{
				ID:         m.ID,
				Content:    m.Content,
				SenderID:   m.SenderID,
				SenderName: m.SenderName,
				Timestamp:  m.Timestamp.Format(time.RFC3339Nano),
			}
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) history(c *gin.Context) {
	msgs, err := s.store.History(c.Request.Context(), c.Param("id"), 100)
	if err != nil {
		s.log.Error().Err(err).Msg("history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:         m.ID,
			Content:    m.Content,
			Sender:     m.SenderID,
			SenderName: m.SenderName,
			Timestamp:  m.Timestamp.Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, out)
}

type createPrivateRequest struct {
	Participants []int64 `json:"participants" binding:"required,min=2,max=2"`
}

func (s *Server) createPrivateRoom(c *gin.Context) {
	var req createPrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participants must list exactly two users"})
		return
	}

	ctx := c.Request.Context()
	if existing, ok, err := s.store.FindPrivateRoom(ctx, req.Participants); err != nil {
		s.log.Error().Err(err).Msg("find private room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	} else if ok {
		c.JSON(http.StatusOK, toRoomResponse(existing))
		return
	}

	participants := make([]ParticipantRecord, 0, len(req.Participants))
	for _, id := range req.Participants {
		participants = append(participants, ParticipantRecord{UserID: id})
	}
	room, err := s.store.CreateRoom(ctx, "PRIVATE", "", participants)
	if err != nil {
		s.log.Error().Err(err).Msg("create private room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusCreated, toRoomResponse(room))
}

func toRoomResponse(r RoomRecord) roomResponse {
	resp := roomResponse{
		ID:           r.ID,
		RoomType:     r.RoomType,
		Name:         r.Name,
		Participants: make([]userResponse, 0, len(r.Participants)),
	}
	for _, p := range r.Participants {
		resp.Participants = append(resp.Participants, userResponse{ID: p.UserID, FullName: p.FullName})
	}
	return resp
}

func (s *Server) serveWS(c *gin.Context) {
	roomID := c.Param("id")
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	userName := c.Query("user_name")

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("ws accept")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	sub := &subscriber{userID: userID, send: make(chan any, 16)}
	s.register(roomID, sub)
	defer s.unregister(roomID, sub)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go func() {
		for {
			select {
			case v := <-sub.send:
				if err := wsjson.Write(ctx, conn, v); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.handleInbound(ctx, roomID, userID, userName, data)
	}
}

func (s *Server) handleInbound(ctx context.Context, roomID string, userID int64, userName string, data []byte) {
	frame, err := proto.DecodeInbound(data)
	if err != nil {
		s.log.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed inbound")
		return
	}

	switch {
	case frame.Seen != nil:
		if err := s.store.MarkSeen(ctx, frame.Seen.MessageID, userID); err != nil {
			s.log.Error().Err(err).Msg("mark seen")
			return
		}
		s.broadcast(roomID, proto.SeenEvent{Type: proto.TypeSeen, MessageID: frame.Seen.MessageID})

	case frame.Chat != nil:
		if frame.Chat.Message == "" {
			return
		}
		m, err := s.store.SaveMessage(ctx, roomID, userID, userName, frame.Chat.Message)
		if err != nil {
			s.log.Error().Err(err).Msg("save message")
			return
		}
		s.broadcast(roomID, proto.ChatEvent{
			ID:         m.ID,
			Message:    m.Content,
			SenderID:   m.SenderID,
			SenderName: m.SenderName,
			Timestamp:  m.Timestamp.Format(time.RFC3339Nano),
			TempToken:  frame.Chat.TempToken,
			RoomID:     roomID,
		})
	}
}

func (s *Server) register(roomID string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[*subscriber]struct{})
	}
	s.subs[roomID][sub] = struct{}{}
}

func (s *Server) unregister(roomID string, sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs[roomID], sub)
}

func (s *Server) broadcast(roomID string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[roomID] {
		select {
		case sub.send <- v:
		default:
			// Drop if slow consumer.
		}
	}
}
