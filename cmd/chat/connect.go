package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/chat"
	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
	"github.com/vovakirdan/wirechat-client/internal/rest"
)

func newConnectCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open an interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootstrap := log.New("info")
			cfg, path, err := config.Load(bootstrap, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("api", cfg.APIBaseURL).Msg("starting chat client")

			return runConnect(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&overrides.APIBaseURL, "api", "", "REST base URL")
	cmd.Flags().StringVar(&overrides.WSBaseURL, "ws", "", "WebSocket base URL")
	cmd.Flags().StringVar(&overrides.Token, "token", "", "bearer token")
	cmd.Flags().Int64Var(&overrides.UserID, "user-id", 0, "viewer user id")
	cmd.Flags().StringVar(&overrides.UserName, "user-name", "", "viewer display name")
	cmd.Flags().DurationVar(&overrides.ReconnectDelay, "reconnect-delay", 0, "delay between reconnect attempts")
	return cmd
}

// wsDialer resolves room sockets against the configured workspace host.
// Without a bearer token it falls back to query-param identity, which is what
// the devserver stub trusts.
type wsDialer struct {
	base   string
	token  string
	userID int64
	name   string
}

func (d wsDialer) Dial(ctx context.Context, roomID string) (*websocket.Conn, error) {
	u := strings.TrimRight(d.base, "/") + "/ws/chat/" + roomID + "/"

	var header http.Header
	if d.token != "" {
		header = http.Header{"Authorization": {"Bearer " + d.token}}
	} else {
		q := url.Values{}
		q.Set("user_id", strconv.FormatInt(d.userID, 10))
		q.Set("user_name", d.name)
		u += "?" + q.Encode()
	}

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header})
	return conn, err
}

func runConnect(parent context.Context, cfg config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	viewer := chat.UserRef{ID: cfg.UserID, Name: cfg.UserName}
	fetcher := rest.New(cfg.APIBaseURL, cfg.Token, logger)
	dialer := wsDialer{base: cfg.WSBaseURL, token: cfg.Token, userID: cfg.UserID, name: cfg.UserName}

	session := chat.NewSession(viewer, fetcher, dialer, chat.Options{ReconnectDelay: cfg.ReconnectDelay}, logger)
	go session.Run(ctx)
	defer session.Close()

	go printUpdates(ctx, session, viewer)

	if err := session.RefreshRooms(ctx); err != nil {
		return err
	}
	rooms := session.Rooms()
	printRooms(rooms)
	if len(rooms) > 0 {
		if err := session.OpenRoom(ctx, rooms[0].ID); err != nil {
			return err
		}
	}

	fmt.Println("Type a message and press Enter to send.")
	fmt.Println("Commands: /rooms, /open <room-id>, /dm <user-id> [name], /quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := handleLine(ctx, session, line); done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, session *chat.Session, line string) bool {
	text := strings.TrimSpace(line)
	if text == "" {
		return false
	}

	switch {
	case text == "/quit":
		return true

	case text == "/rooms":
		printRooms(session.Rooms())

	case strings.HasPrefix(text, "/open "):
		roomID := strings.TrimSpace(strings.TrimPrefix(text, "/open "))
		if err := session.OpenRoom(ctx, roomID); err != nil {
			fmt.Printf("! open failed: %v\n", err)
		}

	case strings.HasPrefix(text, "/dm "):
		fields := strings.Fields(strings.TrimPrefix(text, "/dm "))
		if len(fields) == 0 {
			fmt.Println("! usage: /dm <user-id> [name]")
			return false
		}
		peerID, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			fmt.Printf("! bad user id: %v\n", err)
			return false
		}
		peer := chat.UserRef{ID: peerID}
		if len(fields) > 1 {
			peer.Name = strings.Join(fields[1:], " ")
		}
		roomID, err := session.StartPrivateChat(ctx, peer)
		if err != nil {
			fmt.Printf("! dm failed: %v\n", err)
			return false
		}
		if err := session.OpenRoom(ctx, roomID); err != nil {
			fmt.Printf("! open failed: %v\n", err)
		}

	default:
		if err := session.Send(text); err != nil {
			fmt.Printf("! send failed: %v\n", err)
		}
	}
	return false
}

func printRooms(rooms []chat.Room) {
	if len(rooms) == 0 {
		fmt.Println("No chat rooms available.")
		return
	}
	for _, r := range rooms {
		marker := " "
		if r.Unread {
			marker = "*"
		}
		last := ""
		if r.LastMessage != nil {
			last = fmt.Sprintf("  %s: %s", r.LastMessage.Sender.Name, r.LastMessage.Content)
		}
		name := r.Name
		if name == "" {
			name = string(r.Kind)
		}
		fmt.Printf("%s [%s] %s%s\n", marker, r.ID, name, last)
	}
}

func printUpdates(ctx context.Context, session *chat.Session, viewer chat.UserRef) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-session.Updates():
			if !ok {
				return
			}
			switch u.Kind {
			case chat.UpdateMessage:
				name := u.Message.Sender.Name
				if u.Message.Sender.ID == viewer.ID {
					name = "you"
				}
				suffix := ""
				if u.Message.State == chat.DeliveryPending {
					suffix = " (sending...)"
				}
				fmt.Printf("[%s] %s: %s%s\n", u.RoomID, name, u.Message.Content, suffix)
			case chat.UpdateMessageFailed:
				fmt.Printf("! message failed to send: %s\n", u.Message.Content)
			case chat.UpdateReceipt:
				fmt.Printf("  (seen) %s\n", u.Message.Content)
			case chat.UpdateConnState:
				switch u.State {
				case chat.StateReconnectWait:
					fmt.Println("  ...connection lost, reconnecting...")
				case chat.StateOpen:
					fmt.Printf("  connected to room %s\n", u.RoomID)
				}
			}
		}
	}
}
