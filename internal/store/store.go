package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a query matches no rows.
var ErrNotFound = errors.New("not found")

// LogEntry is one persisted chat-log row.
type LogEntry struct {
	ID        int64
	Room      string
	Username  string
	Action    string
	Data      string
	CreatedAt time.Time
}

// Log actions recorded by the runtime.
const (
	ActionMessage = "msg"
	ActionWhisper = "whisper"
	ActionJoin    = "join"
	ActionLeave   = "leave"
)

// LogStore persists chat-log rows. The dispatch core only inserts; modules
// also query through the handle they receive in their context bundle.
type LogStore interface {
	InsertLogEntry(ctx context.Context, room, username, action, data string) error
	GetLastLogEntry(ctx context.Context, room, username string) (*LogEntry, error)
	Close() error
}
