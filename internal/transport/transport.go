// Package transport defines the contract with the chat service's realtime
// connection. The wire protocol itself lives in implementations; the runtime
// only sees a stream of typed events plus send/whisper/color operations.
package transport

import (
	"context"

	"github.com/vovakirdan/roombot/internal/presence"
)

// EventKind discriminates inbound events.
type EventKind int

const (
	// EventConnect signals the connection is established and usable.
	EventConnect EventKind = iota
	// EventDisconnect signals the connection dropped. No further events follow.
	EventDisconnect
	// EventChat is a room-visible chat message.
	EventChat
	// EventWhisper is a private message to the agent.
	EventWhisper
	// EventRoster is a full roster snapshot pushed by the service.
	EventRoster
	// EventOnlineState reflects the service's view of the room being reachable.
	EventOnlineState
)

// Event is one inbound occurrence on the connection.
type Event struct {
	Kind EventKind
	// User is the sender for chat/whisper events.
	User string
	// Text is the message body for chat/whisper events.
	Text string
	// Historical marks a replayed backlog message delivered on join.
	Historical bool
	// Online carries the state for EventOnlineState.
	Online bool
	// Roster carries the snapshot for EventRoster, in delivery order.
	Roster []presence.UserSnapshot
	// Err carries the failure reason for EventDisconnect, when known.
	Err error
}

// Conn is a live room connection.
type Conn interface {
	// Events returns the inbound event stream. The channel is closed after
	// EventDisconnect is delivered.
	Events() <-chan Event
	// Send posts a room-visible message.
	Send(ctx context.Context, text string) error
	// Whisper sends a private message to one user.
	Whisper(ctx context.Context, user, text string) error
	// SetColor changes the agent's display color (six hex digits).
	SetColor(ctx context.Context, hex string) error
	// Close tears the connection down.
	Close() error
}

// Dialer opens a room connection using a room-scoped session token.
type Dialer interface {
	Dial(ctx context.Context, room, token string) (Conn, error)
}
