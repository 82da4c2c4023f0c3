package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vovakirdan/roombot/internal/plugin"
	"github.com/vovakirdan/roombot/internal/presence"
	"github.com/vovakirdan/roombot/internal/store"
	"github.com/vovakirdan/roombot/internal/transport"
)

// handleMessage records a live chat/whisper row and runs the dispatch
// pipeline on it. Historical-replay echoes are ignored entirely.
func (b *Bot) handleMessage(ctx context.Context, ev transport.Event) {
	if ev.Historical {
		return
	}

	action := store.ActionMessage
	if ev.Kind == transport.EventWhisper {
		action = store.ActionWhisper
	}
	if b.store != nil {
		if err := b.store.InsertLogEntry(ctx, b.room, ev.User, action, ev.Text); err != nil {
			b.logger.Warn().Err(err).Str("user", ev.User).Msg("failed to record message")
		}
	}

	b.dispatch(ev)
}

// dispatch resolves and executes a command invocation, applying the gating
// precedence: unknown → disabled → privilege → cooldown → execute.
func (b *Bot) dispatch(ev transport.Event) {
	trimmed := strings.TrimSpace(ev.Text)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return
	}
	head := fields[0]
	if !strings.HasPrefix(head, b.prefix) {
		return
	}
	name := head[len(b.prefix):]

	whispered := ev.Kind == transport.EventWhisper
	send := func(text string) { b.Send(text) }
	whisper := func(text string) { b.Whisper(ev.User, text) }
	reply := send
	if whispered {
		reply = whisper
	}

	cmd := b.reg.GetCommand(name)
	if cmd == nil {
		b.Send(fmt.Sprintf("Command %q not found.", name))
		return
	}
	if !cmd.Enabled() {
		b.Send(fmt.Sprintf("Command %q is disabled.", cmd.Name()))
		return
	}
	if cmd.MasterOnly() && !strings.EqualFold(ev.User, b.master) {
		// No room-visible output: restricted commands stay invisible.
		b.logger.Warn().Str("command", cmd.Name()).Str("user", ev.User).
			Msg("restricted command refused")
		return
	}
	now := b.clk.Now()
	if wait := cmd.Remaining(ev.User, now); wait > 0 {
		whisper(fmt.Sprintf("Command %q is on cooldown for another %s.",
			cmd.Name(), wait.Round(time.Second)))
		return
	}
	cmd.MarkUsed(ev.User, now)

	var user *presence.UserSnapshot
	if u, ok := b.pres.Lookup(ev.User); ok {
		user = &u
	}

	inv := &plugin.Invocation{
		ID:        uuid.NewString(),
		Message:   ev.Text,
		Head:      head,
		Tail:      strings.TrimSpace(trimmed[len(head):]),
		Args:      fields[1:],
		Sender:    ev.User,
		User:      user,
		Room:      b.room,
		Whispered: whispered,
		Send:      send,
		Whisper:   whisper,
		Reply:     reply,
		Store:     b.store,
		Runtime:   b,
	}

	out, err := cmd.Run(inv)
	if err != nil {
		b.logger.Error().Err(err).Str("command", cmd.Name()).Str("invocation", inv.ID).
			Msg("command handler failed")
		return
	}
	if out != "" {
		reply(out)
	}
}
