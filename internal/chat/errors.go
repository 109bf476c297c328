package chat

import "errors"

var (
	// ErrNotConnected is returned by Send while the socket is not open.
	// The message is not queued; the caller decides how to handle it.
	ErrNotConnected = errors.New("not connected")

	// ErrSessionClosed is returned when the session loop has stopped.
	ErrSessionClosed = errors.New("session closed")

	// ErrNoActiveRoom is returned by Send before any room was opened.
	ErrNoActiveRoom = errors.New("no active room")
)
