package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the stub backend's message store. It exists so the client can be
// exercised end to end without the production deployment; history and room
// records survive client reconnects, which is exactly what the session's
// recovery path needs to be tested against.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite-backed store. Use ":memory:" for tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		room_type TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS room_participants (
		room_id TEXT NOT NULL REFERENCES rooms(id),
		user_id INTEGER NOT NULL,
		full_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (room_id, user_id)
	);
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		sender_id INTEGER NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS message_seen (
		message_id TEXT NOT NULL REFERENCES messages(id),
		user_id INTEGER NOT NULL,
		PRIMARY KEY (message_id, user_id)
	);`
	_, err := db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RoomRecord mirrors the REST room payload.
type RoomRecord struct {
	ID           string
	RoomType     string
	Name         string
	Participants []ParticipantRecord
}

// ParticipantRecord is one member of a room.
type ParticipantRecord struct {
	UserID   int64
	FullName string
}

// MessageRecord is one stored message.
type MessageRecord struct {
	ID         string
	RoomID     string
	SenderID   int64
	SenderName string
	Content    string
	Timestamp  time.Time
}

// CreateRoom inserts a room with its participants.
func (s *Store) CreateRoom(ctx context.Context, roomType, name string, participants []ParticipantRecord) (RoomRecord, error) {
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RoomRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (id, room_type, name) VALUES (?, ?, ?)`,
		id, roomType, name,
	); err != nil {
		return RoomRecord{}, fmt.Errorf("insert room: %w", err)
	}
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id, full_name) VALUES (?, ?, ?)`,
			id, p.UserID, p.FullName,
		); err != nil {
			return RoomRecord{}, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return RoomRecord{}, fmt.Errorf("commit: %w", err)
	}

	return RoomRecord{ID: id, RoomType: roomType, Name: name, Participants: participants}, nil
}

// FindPrivateRoom returns the PRIVATE room whose participant set matches
// exactly, making room creation idempotent per pair.
func (s *Store) FindPrivateRoom(ctx context.Context, participantIDs []int64) (RoomRecord, bool, error) {
	rooms, err := s.Rooms(ctx)
	if err != nil {
		return RoomRecord{}, false, err
	}

	want := make(map[int64]struct{}, len(participantIDs))
	for _, id := range participantIDs {
		want[id] = struct{}{}
	}

	for _, r := range rooms {
		if r.RoomType != "PRIVATE" || len(r.Participants) != len(want) {
			continue
		}
		match := true
		for _, p := range r.Participants {
			if _, ok := want[p.UserID]; !ok {
				match = false
				break
			}
		}
		if match {
			return r, true, nil
		}
	}
	return RoomRecord{}, false, nil
}

// Rooms lists every room with its participants.
func (s *Store) Rooms(ctx context.Context) ([]RoomRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, room_type, name FROM rooms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	defer rows.Close()

	var rooms []RoomRecord
	for rows.Next() {
		var r RoomRecord
		if err := rows.Scan(&r.ID, &r.RoomType, &r.Name); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	for i := range rooms {
		participants, err := s.participants(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].Participants = participants
	}
	return rooms, nil
}

func (s *Store) participants(ctx context.Context, roomID string) ([]ParticipantRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, full_name FROM room_participants WHERE room_id = ? ORDER BY user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var out []ParticipantRecord
	for rows.Next() {
		var p ParticipantRecord
		if err := rows.Scan(&p.UserID, &p.FullName); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveMessage stores a message with a fresh server ID and timestamp.
func (s *Store) SaveMessage(ctx context.Context, roomID string, senderID int64, senderName, content string) (MessageRecord, error) {
	m := MessageRecord{
		ID:         uuid.NewString(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, sender_name, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.SenderID, m.SenderName, m.Content, m.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return MessageRecord{}, fmt.Errorf("insert message: %w", err)
	}
	return m, nil
}

// History returns a room's messages newest-first, matching the production API.
func (s *Store) History(ctx context.Context, roomID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, sender_name, content, timestamp
		 FROM messages WHERE room_id = ?
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		var ts string
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkSeen records a read receipt. Repeat calls are no-ops, so clients may
// re-acknowledge after a reconnect without side effects.
func (s *Store) MarkSeen(ctx context.Context, messageID string, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_seen (message_id, user_id) VALUES (?, ?)`,
		messageID, userID)
	if err != nil {
		return fmt.Errorf("insert seen: %w", err)
	}
	return nil
}
