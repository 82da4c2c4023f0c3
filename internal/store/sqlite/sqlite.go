package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/roombot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_log (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room       TEXT NOT NULL,
	username   TEXT NOT NULL,
	action     TEXT NOT NULL,
	data       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chat_log_room_user ON chat_log (room, username, id);
`

// SQLiteStore implements store.LogStore for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (creating if necessary) the chat-log database at dbPath.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// InsertLogEntry appends one chat-log row.
func (s *SQLiteStore) InsertLogEntry(ctx context.Context, room, username, action, data string) error {
	query := `
		INSERT INTO chat_log (room, username, action, data)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, room, username, action, data); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}
	return nil
}

// GetLastLogEntry returns the most recent row for a user in a room.
func (s *SQLiteStore) GetLastLogEntry(ctx context.Context, room, username string) (*store.LogEntry, error) {
	query := `
		SELECT id, room, username, action, data, created_at
		FROM chat_log
		WHERE room = ? AND username = ?
		ORDER BY id DESC
		LIMIT 1
	`
	var e store.LogEntry
	err := s.db.QueryRowContext(ctx, query, room, username).Scan(
		&e.ID, &e.Room, &e.Username, &e.Action, &e.Data, &e.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get last log entry: %w", err)
	}
	return &e, nil
}
