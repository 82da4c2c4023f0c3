package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/roombot/internal/config"
	"github.com/vovakirdan/roombot/internal/plugin"
	"github.com/vovakirdan/roombot/internal/session"
	"github.com/vovakirdan/roombot/internal/presence"
	"github.com/vovakirdan/roombot/internal/store"
	"github.com/vovakirdan/roombot/internal/transport"
)

type fakeConn struct {
	mu       sync.Mutex
	events   chan transport.Event
	sent     []string
	whispers []string
}

func newFakeConn() *fakeConn {
	return &fakeConn{events: make(chan transport.Event, 16)}
}

func (f *fakeConn) Events() <-chan transport.Event { return f.events }

func (f *fakeConn) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Whisper(ctx context.Context, user, text string) error {
	f.mu.Lock()
	f.whispers = append(f.whispers, user+": "+text)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) SetColor(ctx context.Context, hex string) error { return nil }

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) sentMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeConn) whispered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.whispers...)
}

type fakeStore struct {
	mu      sync.Mutex
	entries []store.LogEntry
}

func (f *fakeStore) InsertLogEntry(ctx context.Context, room, username, action, data string) error {
	f.mu.Lock()
	f.entries = append(f.entries, store.LogEntry{Room: room, Username: username, Action: action, Data: data})
	f.mu.Unlock()
	return nil
}

func (f *fakeStore) GetLastLogEntry(ctx context.Context, room, username string) (*store.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].Room == room && f.entries[i].Username == username {
			e := f.entries[i]
			return &e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.entries {
		out = append(out, e.Username+"/"+e.Action)
	}
	return out
}

// newTestBot wires a bot around a fake transport so events can be fed
// synchronously and queue drains driven by the mock clock.
func newTestBot(t *testing.T) (*Bot, *fakeConn, *clock.Mock, *fakeStore) {
	t.Helper()
	mock := clock.NewMock()
	st := &fakeStore{}
	b := New(config.Config{
		Room:             "lobby",
		Master:           "admin",
		CommandPrefix:    "!",
		ProtocolRevision: 7,
		MinSendInterval:  time.Second,
	}, nil, st, mock, nil)

	conn := newFakeConn()
	b.conn = conn
	b.queue.SetSender(func(text string) error {
		return conn.Send(context.Background(), text)
	})
	b.queue.SetConnected(true)
	return b, conn, mock, st
}

func registerGreet(b *Bot, executions *int) {
	b.reg.Load(plugin.ModuleSpec{
		Name: "test",
		Commands: []plugin.CommandSpec{
			{
				Name:       "greet",
				NoCooldown: true,
				Handler: func(inv *plugin.Invocation) (string, error) {
					*executions++
					return "hello " + strings.Join(inv.Args, " "), nil
				},
			},
			{
				Name:       "secret",
				MasterOnly: true,
				NoCooldown: true,
				Handler: func(inv *plugin.Invocation) (string, error) {
					*executions++
					return "the answer", nil
				},
			},
			{
				Name:     "slow",
				Cooldown: 10 * time.Second,
				Handler: func(inv *plugin.Invocation) (string, error) {
					*executions++
					return "done", nil
				},
			},
		},
	})
}

func chat(user, text string) transport.Event {
	return transport.Event{Kind: transport.EventChat, User: user, Text: text}
}

func whisperEv(user, text string) transport.Event {
	return transport.Event{Kind: transport.EventWhisper, User: user, Text: text}
}

func TestDispatchExecutesCommandAndRepliesToRoom(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	b.handleEvent(context.Background(), chat("alice", "!greet bob"))

	req.Equal(1, executions)
	mock.Add(0)
	req.Equal([]string{"hello bob"}, conn.sentMessages())
	req.Empty(conn.whispered())
}

func TestDispatchIgnoresPlainChat(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	b.handleEvent(context.Background(), chat("alice", "greet everyone"))
	b.handleEvent(context.Background(), chat("alice", "   "))

	mock.Add(time.Second)
	req.Zero(executions)
	req.Empty(conn.sentMessages())
}

func TestDispatchUnknownCommandNotice(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)

	b.handleEvent(context.Background(), chat("alice", "!nosuch"))

	mock.Add(0)
	msgs := conn.sentMessages()
	req.Len(msgs, 1)
	req.Contains(msgs[0], "not found")
}

func TestDispatchDisabledCommandNotice(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)
	b.reg.GetCommand("greet").SetEnabled(false)

	b.handleEvent(context.Background(), chat("alice", "!greet"))

	mock.Add(0)
	req.Zero(executions)
	msgs := conn.sentMessages()
	req.Len(msgs, 1)
	req.Contains(msgs[0], "disabled")
}

func TestDispatchMasterOnlyIsSilentForOthers(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	// A non-privileged user gets nothing at all: no execution, no notice.
	b.handleEvent(context.Background(), chat("alice", "!secret"))
	mock.Add(time.Second)
	req.Zero(executions)
	req.Empty(conn.sentMessages())
	req.Empty(conn.whispered())

	// The master user runs it; the comparison is case-insensitive.
	b.handleEvent(context.Background(), chat("Admin", "!secret"))
	req.Equal(1, executions)
	mock.Add(time.Second)
	req.Equal([]string{"the answer"}, conn.sentMessages())
}

func TestDispatchCooldown(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	b.handleEvent(context.Background(), chat("alice", "!slow"))
	req.Equal(1, executions)

	// Within the window: one execution total plus a whispered notice.
	mock.Add(3 * time.Second)
	b.handleEvent(context.Background(), chat("alice", "!slow"))
	req.Equal(1, executions)
	whispers := conn.whispered()
	req.Len(whispers, 1)
	req.Contains(whispers[0], "cooldown")

	// Another user is not affected.
	b.handleEvent(context.Background(), chat("bob", "!slow"))
	req.Equal(2, executions)

	// After the window the same user may run it again.
	mock.Add(10 * time.Second)
	b.handleEvent(context.Background(), chat("alice", "!slow"))
	req.Equal(3, executions)
}

func TestDispatchWhisperOriginRepliesByWhisper(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	b.handleEvent(context.Background(), whisperEv("alice", "!greet there"))

	req.Equal(1, executions)
	whispers := conn.whispered()
	req.Len(whispers, 1)
	req.Equal("alice: hello there", whispers[0])

	// Nothing went through the room queue.
	mock.Add(time.Second)
	req.Empty(conn.sentMessages())
}

func TestDispatchSkipsHistoricalReplay(t *testing.T) {
	req := require.New(t)
	b, conn, mock, st := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	ev := chat("alice", "!greet")
	ev.Historical = true
	b.handleEvent(context.Background(), ev)

	mock.Add(time.Second)
	req.Zero(executions)
	req.Empty(conn.sentMessages())
	req.Empty(st.actions())
}

func TestDispatchPassesContextBundle(t *testing.T) {
	req := require.New(t)
	b, _, _, st := newTestBot(t)

	var got *plugin.Invocation
	b.reg.Load(plugin.ModuleSpec{
		Name: "probe",
		Commands: []plugin.CommandSpec{{
			Name:       "probe",
			NoCooldown: true,
			Handler: func(inv *plugin.Invocation) (string, error) {
				got = inv
				return "", nil
			},
		}},
	})
	b.pres.Update([]presence.UserSnapshot{{Username: "Alice", Moderator: true}})

	b.handleEvent(context.Background(), chat("alice", "!probe  one two"))

	req.NotNil(got)
	req.Equal("!probe", got.Head)
	req.Equal("one two", got.Tail)
	req.Equal([]string{"one", "two"}, got.Args)
	req.Equal("alice", got.Sender)
	req.NotNil(got.User)
	req.True(got.User.Moderator)
	req.Equal("lobby", got.Room)
	req.False(got.Whispered)
	req.Same(st, got.Store)
	req.Same(b, got.Runtime)
	req.NotEmpty(got.ID)
}

func TestRosterEventsFeedPresenceAndChatLog(t *testing.T) {
	req := require.New(t)
	b, _, _, st := newTestBot(t)

	joined := 0
	b.reg.Load(plugin.ModuleSpec{
		Name:  "watcher",
		Hooks: map[string]plugin.Hook{plugin.HookJoin: func(hc *plugin.HookContext) { joined++ }},
	})

	// First snapshot seeds the roster: join hook fires, no per-user rows.
	b.handleEvent(context.Background(), transport.Event{
		Kind: transport.EventRoster,
		Roster: []presence.UserSnapshot{
			{Username: "a"}, {Username: "b"},
		},
	})
	req.Equal(1, joined)
	req.Empty(st.actions())
	req.Equal(2, b.pres.Len())

	// Second snapshot: c joined, b left.
	b.handleEvent(context.Background(), transport.Event{
		Kind: transport.EventRoster,
		Roster: []presence.UserSnapshot{
			{Username: "a"}, {Username: "c"},
		},
	})
	req.ElementsMatch([]string{"c/join", "b/leave"}, st.actions())
}

func TestMessagesAreRecorded(t *testing.T) {
	req := require.New(t)
	b, _, _, st := newTestBot(t)

	b.handleEvent(context.Background(), chat("alice", "hello"))
	b.handleEvent(context.Background(), whisperEv("bob", "psst"))

	req.Equal([]string{"alice/" + store.ActionMessage, "bob/" + store.ActionWhisper}, st.actions())

	last, err := st.GetLastLogEntry(context.Background(), "lobby", "alice")
	req.NoError(err)
	req.Equal("hello", last.Data)
}

type stubDialer struct {
	conn *fakeConn
}

func (d *stubDialer) Dial(ctx context.Context, room, token string) (transport.Conn, error) {
	return d.conn, nil
}

func TestRunDrainsEventsUntilDisconnect(t *testing.T) {
	req := require.New(t)
	mock := clock.NewMock()
	st := &fakeStore{}
	conn := newFakeConn()
	sess := session.New(nil, &stubDialer{conn: conn}, session.Config{
		AuthToken: "tok",
		Room:      "lobby",
	}, nil)
	b := New(config.Config{
		Room:             "lobby",
		Master:           "admin",
		CommandPrefix:    "!",
		ProtocolRevision: 7,
		MinSendInterval:  time.Second,
	}, sess, st, mock, nil)
	var executions int
	registerGreet(b, &executions)

	conn.events <- transport.Event{Kind: transport.EventConnect}
	conn.events <- chat("alice", "!greet")
	conn.events <- transport.Event{Kind: transport.EventDisconnect}

	req.NoError(b.Run(context.Background()))
	req.Equal(1, executions)
	// Run tears the connection down on the way out.
	req.Equal(session.StateIdle, sess.State())
}

func TestCoreModuleSelfManagement(t *testing.T) {
	req := require.New(t)
	b, conn, mock, _ := newTestBot(t)
	var executions int
	registerGreet(b, &executions)

	// Only the master may drive the core module.
	b.handleEvent(context.Background(), chat("admin", "!disable test"))
	mock.Add(0)
	msgs := conn.sentMessages()
	req.Len(msgs, 1)
	req.Contains(msgs[0], "disabled")

	b.handleEvent(context.Background(), chat("alice", "!greet"))
	req.Zero(executions)

	b.handleEvent(context.Background(), chat("admin", "!enable test"))
	b.handleEvent(context.Background(), chat("alice", "!greet"))
	req.Equal(1, executions)

	// The core module itself cannot be unloaded.
	b.handleEvent(context.Background(), chat("admin", "!unload core"))
	req.NotNil(b.reg.GetModule("core"))
	req.NotNil(b.reg.GetCommand("enable"))
}
