// Package bot is the session/dispatch runtime: it drains the transport's
// event stream, feeds roster snapshots to the presence set, dispatches
// command invocations, and funnels replies through the outbound queue.
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/config"
	"github.com/vovakirdan/roombot/internal/log"
	"github.com/vovakirdan/roombot/internal/outbound"
	"github.com/vovakirdan/roombot/internal/plugin"
	"github.com/vovakirdan/roombot/internal/presence"
	"github.com/vovakirdan/roombot/internal/session"
	"github.com/vovakirdan/roombot/internal/store"
	"github.com/vovakirdan/roombot/internal/transport"
)

// Bot owns one room's runtime state. It implements plugin.Runtime, which is
// the only surface loaded modules ever hold.
type Bot struct {
	id     string
	logger *zerolog.Logger
	clk    clock.Clock

	sess  *session.Session
	reg   *plugin.Registry
	pres  *presence.Set
	queue *outbound.Queue
	store store.LogStore

	room   string
	master string
	prefix string

	mu   sync.Mutex
	conn transport.Conn
}

// New wires the runtime together and loads the built-in core module plus any
// plugin directory configured.
func New(cfg config.Config, sess *session.Session, st store.LogStore, clk clock.Clock, logger *zerolog.Logger) *Bot {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	b := &Bot{
		id:     uuid.NewString(),
		logger: logger,
		clk:    clk,
		sess:   sess,
		store:  st,
		room:   cfg.Room,
		master: cfg.Master,
		prefix: cfg.CommandPrefix,
	}
	if b.prefix == "" {
		b.prefix = "!"
	}

	b.pres = presence.NewSet()
	b.queue = outbound.New(clk, cfg.MinSendInterval, nil, log.Component(logger, "outbound"))
	b.reg = plugin.NewRegistry(log.Component(logger, "registry"), cfg.ProtocolRevision)
	b.reg.Attach(b, st, cfg.Room, cfg.Modules)
	b.reg.Load(plugin.CoreModule())
	if cfg.PluginDir != "" {
		n := b.reg.LoadDir(cfg.PluginDir)
		logger.Info().Int("modules", n).Str("dir", cfg.PluginDir).Msg("plugins loaded")
	}
	return b
}

// Room implements plugin.Runtime.
func (b *Bot) Room() string { return b.room }

// Master implements plugin.Runtime.
func (b *Bot) Master() string { return b.master }

// Presence implements plugin.Runtime.
func (b *Bot) Presence() *presence.Set { return b.pres }

// Registry implements plugin.Runtime.
func (b *Bot) Registry() *plugin.Registry { return b.reg }

// Send queues a room-visible message on the paced outbound queue.
func (b *Bot) Send(text string) {
	b.queue.Push(text)
}

// Whisper sends a private message directly, bypassing the queue. Whispers are
// rare one-off notices; a dropped whisper while disconnected is acceptable.
func (b *Bot) Whisper(user, text string) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		b.logger.Debug().Str("user", user).Msg("dropping whisper, not connected")
		return
	}
	if err := conn.Whisper(context.Background(), user, text); err != nil {
		b.logger.Warn().Err(err).Str("user", user).Msg("whisper failed")
	}
}

// Run connects the session and processes inbound events until the context is
// canceled or the transport drops. Failures before the loop starts are fatal
// to startup; there is no retry policy here.
func (b *Bot) Run(ctx context.Context) error {
	conn, err := b.sess.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	b.queue.SetSender(func(text string) error {
		return conn.Send(context.Background(), text)
	})

	defer func() {
		b.queue.SetConnected(false)
		if err := b.sess.Close(); err != nil {
			b.logger.Warn().Err(err).Msg("closing session")
		}
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-conn.Events():
			if !ok {
				return nil
			}
			b.handleEvent(ctx, ev)
			if ev.Kind == transport.EventDisconnect {
				return ev.Err
			}
		}
	}
}

// handleEvent routes one inbound event. Events for the room are processed to
// completion, one at a time, in delivery order.
func (b *Bot) handleEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnect:
		b.logger.Info().Str("room", b.room).Msg("transport connected")
		b.queue.SetConnected(true)
	case transport.EventDisconnect:
		b.logger.Warn().Err(ev.Err).Msg("transport disconnected")
		b.queue.SetConnected(false)
	case transport.EventOnlineState:
		b.queue.SetConnected(ev.Online)
	case transport.EventRoster:
		b.handleRoster(ctx, ev.Roster)
	case transport.EventChat, transport.EventWhisper:
		b.handleMessage(ctx, ev)
	}
}

// handleRoster applies a snapshot and records membership churn.
func (b *Bot) handleRoster(ctx context.Context, roster []presence.UserSnapshot) {
	diff := b.pres.Update(roster)
	if diff.Initial {
		b.logger.Info().Int("users", len(diff.Roster)).Msg("roster seeded")
		b.reg.EmitAll(plugin.HookJoin, nil)
		return
	}
	for _, u := range diff.Added {
		b.logPresence(ctx, u.Username, store.ActionJoin)
	}
	for _, u := range diff.Removed {
		b.logPresence(ctx, u.Username, store.ActionLeave)
	}
	for _, ch := range diff.Changed {
		b.logger.Debug().Str("user", ch.New.Username).Msg("user record changed")
	}
}

func (b *Bot) logPresence(ctx context.Context, username, action string) {
	if b.store == nil {
		return
	}
	if err := b.store.InsertLogEntry(ctx, b.room, username, action, ""); err != nil {
		b.logger.Warn().Err(err).Str("user", username).Msg("failed to record presence change")
	}
}

// Status is a point-in-time snapshot for the operational endpoint.
type Status struct {
	ID         string `json:"id"`
	Room       string `json:"room"`
	State      string `json:"state"`
	Users      int    `json:"users"`
	Modules    int    `json:"modules"`
	Commands   int    `json:"commands"`
	QueueDepth int    `json:"queue_depth"`
}

// Status reports the runtime's current shape.
func (b *Bot) Status() Status {
	return Status{
		ID:         b.id,
		Room:       b.room,
		State:      b.sess.State().String(),
		Users:      b.pres.Len(),
		Modules:    len(b.reg.Modules()),
		Commands:   b.reg.CommandCount(),
		QueueDepth: b.queue.Len(),
	}
}
