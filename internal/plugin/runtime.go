package plugin

import (
	"github.com/vovakirdan/roombot/internal/presence"
	"github.com/vovakirdan/roombot/internal/store"
)

// Runtime is the running agent as commands and module hooks see it. The
// concrete implementation lives in the bot package; loaded units only ever
// hold this capability surface.
type Runtime interface {
	Room() string
	Master() string
	// Send queues a room-visible message.
	Send(text string)
	// Whisper sends a private message, bypassing the outbound queue.
	Whisper(user, text string)
	Presence() *presence.Set
	Registry() *Registry
}

// Invocation carries everything a command handler can reach for one call.
type Invocation struct {
	// ID correlates log lines produced while handling this invocation.
	ID string
	// Message is the raw inbound text.
	Message string
	// Head is the command token including the prefix; Tail is everything
	// after it; Args are the whitespace-split tail tokens.
	Head string
	Tail string
	Args []string
	// Sender is the invoking username. User is the sender's current presence
	// record, nil when the sender is not in the tracked roster.
	Sender string
	User   *presence.UserSnapshot
	Room   string
	// Whispered is set when the command arrived as a whisper.
	Whispered bool
	// Send posts to the room; Whisper answers the sender privately; Reply
	// picks one of the two based on how the command arrived.
	Send    func(text string)
	Whisper func(text string)
	Reply   func(text string)
	Store   store.LogStore
	Runtime Runtime
}
