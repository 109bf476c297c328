package chat

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-client/internal/proto"
)

// State is the connection lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
	StateReconnectWait
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnectWait:
		return "reconnect_wait"
	default:
		return "unknown"
	}
}

// Dialer resolves a room ID to a socket and dials it. Host resolution
// (tenant workspace, credentials) is the caller's responsibility; the core
// only consumes an already-authorized transport.
type Dialer interface {
	Dial(ctx context.Context, roomID string) (*websocket.Conn, error)
}

// URLDialer dials <base>/ws/chat/<room_id>/ with optional headers.
type URLDialer struct {
	BaseURL string
	Header  http.Header
}

func (d URLDialer) Dial(ctx context.Context, roomID string) (*websocket.Conn, error) {
	u := strings.TrimRight(d.BaseURL, "/") + "/ws/chat/" + roomID + "/"
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: d.Header})
	return conn, err
}

const writeTimeout = 10 * time.Second

type loopEventKind int

const (
	evCommand loopEventKind = iota
	evDialed
	evDialFailed
	evClosed
	evRetry
	evFrame
	evSendFailed
)

// loopEvent is the single currency of the session dispatch loop: connection
// lifecycle results, decoded frames and posted commands all arrive through it.
type loopEvent struct {
	kind   loopEventKind
	gen    uint64
	sock   *websocket.Conn
	cancel context.CancelFunc
	frame  proto.Frame
	token  string
	err    error
	cmd    func()
}

// Conn owns the one live socket, bound to at most one room at a time. All
// methods and handle* callbacks run on the session loop goroutine; only the
// dial/read goroutines run elsewhere, and they report back through the queue.
//
// gen identifies a room binding. It bumps on Open and Teardown, never on
// reconnect attempts within a binding, so every event from a socket that
// belongs to a previous binding is recognized and dropped.
type Conn struct {
	dialer         Dialer
	queue          chan<- loopEvent
	done           <-chan struct{}
	log            *zerolog.Logger
	reconnectDelay time.Duration

	state      State
	roomID     string
	gen        uint64
	sock       *websocket.Conn
	stopRead   context.CancelFunc
	retryTimer *time.Timer
}

func newConn(dialer Dialer, queue chan<- loopEvent, done <-chan struct{}, delay time.Duration, logger *zerolog.Logger) *Conn {
	return &Conn{
		dialer:         dialer,
		queue:          queue,
		done:           done,
		log:            logger,
		reconnectDelay: delay,
		state:          StateDisconnected,
	}
}

// State returns the current lifecycle phase.
func (c *Conn) State() State { return c.state }

// RoomID returns the room this connection is bound to, empty when unbound.
func (c *Conn) RoomID() string { return c.roomID }

// Generation returns the current binding generation.
func (c *Conn) Generation() uint64 { return c.gen }

// Open binds the connection to roomID. Any prior socket is torn down first
// with its reconnect path suppressed; then a fresh dial starts.
func (c *Conn) Open(roomID string) {
	c.Teardown()
	c.roomID = roomID
	c.state = StateConnecting
	go c.dial(c.gen, roomID)
}

// Teardown intentionally closes the current socket, cancels any pending
// reconnect timer and unbinds the room. No reconnect follows.
func (c *Conn) Teardown() {
	c.gen++
	c.cancelRetry()
	if c.stopRead != nil {
		c.stopRead()
		c.stopRead = nil
	}
	if c.sock != nil {
		sock := c.sock
		c.sock = nil
		go sock.Close(websocket.StatusNormalClosure, "closing")
	}
	c.roomID = ""
	c.state = StateDisconnected
}

// Send transmits a chat frame for the active room. The write runs off-loop so
// a stalled socket cannot block dispatch; a write error comes back as a
// send-failure event carrying the temp token.
func (c *Conn) Send(content, tempToken string) error {
	if c.state != StateOpen || c.sock == nil {
		return ErrNotConnected
	}
	sock, gen := c.sock, c.gen
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := wsjson.Write(ctx, sock, proto.ChatSend{Message: content, TempToken: tempToken}); err != nil {
			c.post(loopEvent{kind: evSendFailed, gen: gen, token: tempToken, err: err})
		}
	}()
	return nil
}

// SendSeen emits a read acknowledgment. Best effort: the backend records
// receipts idempotently, so a lost ack is at worst a missing receipt and is
// never retried.
func (c *Conn) SendSeen(messageID string) {
	if c.state != StateOpen || c.sock == nil {
		return
	}
	sock := c.sock
	logger := c.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := wsjson.Write(ctx, sock, proto.SeenEvent{Type: proto.TypeSeen, MessageID: messageID}); err != nil {
			logger.Debug().Err(err).Str("message_id", messageID).Msg("seen ack dropped")
		}
	}()
}

func (c *Conn) dial(gen uint64, roomID string) {
	ctx, cancel := context.WithCancel(context.Background())
	sock, err := c.dialer.Dial(ctx, roomID)
	if err != nil {
		cancel()
		c.post(loopEvent{kind: evDialFailed, gen: gen, err: err})
		return
	}
	c.post(loopEvent{kind: evDialed, gen: gen, sock: sock, cancel: cancel})
	c.readLoop(ctx, gen, roomID, sock)
}

func (c *Conn) readLoop(ctx context.Context, gen uint64, roomID string, sock *websocket.Conn) {
	for {
		_, data, err := sock.Read(ctx)
		if err != nil {
			c.post(loopEvent{kind: evClosed, gen: gen, err: err})
			return
		}
		frame, err := proto.DecodeFrame(data)
		if err != nil {
			c.log.Warn().Err(err).Str("room_id", roomID).Msg("dropping malformed frame")
			continue
		}
		c.post(loopEvent{kind: evFrame, gen: gen, frame: frame})
	}
}

func (c *Conn) post(ev loopEvent) {
	select {
	case c.queue <- ev:
	case <-c.done:
	}
}

// handleDialed installs the established socket. Reports whether the event
// belonged to the current binding.
func (c *Conn) handleDialed(gen uint64, sock *websocket.Conn, cancel context.CancelFunc) bool {
	if gen != c.gen {
		cancel()
		go sock.Close(websocket.StatusNormalClosure, "superseded")
		return false
	}
	c.sock = sock
	c.stopRead = cancel
	c.state = StateOpen
	c.cancelRetry()
	c.log.Debug().Str("room_id", c.roomID).Msg("socket open")
	return true
}

// handleDialFailed treats an establishment failure like an abnormal closure:
// same reconnect loop, no attempt cap.
func (c *Conn) handleDialFailed(gen uint64, err error) bool {
	if gen != c.gen {
		return false
	}
	c.scheduleRetry(err)
	return true
}

// handleClosed reacts to the read loop ending. An intentional teardown has
// already bumped the generation, so only abnormal closures reach the retry.
func (c *Conn) handleClosed(gen uint64, err error) bool {
	if gen != c.gen {
		return false
	}
	if c.stopRead != nil {
		c.stopRead()
		c.stopRead = nil
	}
	c.sock = nil
	c.scheduleRetry(err)
	return true
}

// handleRetry re-dials the bound room when the reconnect timer fires.
func (c *Conn) handleRetry(gen uint64) bool {
	if gen != c.gen || c.state != StateReconnectWait {
		return false
	}
	c.retryTimer = nil
	c.state = StateConnecting
	go c.dial(c.gen, c.roomID)
	return true
}

func (c *Conn) scheduleRetry(cause error) {
	c.state = StateReconnectWait
	c.log.Warn().Err(cause).Str("room_id", c.roomID).Dur("delay", c.reconnectDelay).Msg("connection lost, reconnecting")

	c.cancelRetry()
	gen := c.gen
	c.retryTimer = time.AfterFunc(c.reconnectDelay, func() {
		c.post(loopEvent{kind: evRetry, gen: gen})
	})
}

func (c *Conn) cancelRetry() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}
