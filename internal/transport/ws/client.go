// Package ws implements the realtime transport over a websocket connection
// carrying JSON envelope frames.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/presence"
	"github.com/vovakirdan/roombot/internal/transport"
)

const (
	frameTypeMsg     = "msg"
	frameTypeWhisper = "whisper"
	frameTypeUsers   = "users"
	frameTypeOnline  = "online"
	frameTypeColor   = "color"
)

// frame is the wire envelope, both directions.
type frame struct {
	Type    string                  `json:"type"`
	User    string                  `json:"user,omitempty"`
	Text    string                  `json:"text,omitempty"`
	History bool                    `json:"history,omitempty"`
	Online  bool                    `json:"online,omitempty"`
	Users   []presence.UserSnapshot `json:"users,omitempty"`
}

// Dialer opens websocket room connections.
type Dialer struct {
	URL string
	Log *zerolog.Logger
}

// Dial connects to the room endpoint with the session token and starts the
// read loop. The returned conn delivers EventConnect first.
func (d *Dialer) Dial(ctx context.Context, room, token string) (transport.Conn, error) {
	u := d.URL + "?room=" + url.QueryEscape(room)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial chat: %w", err)
	}

	logger := d.Log
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Client{
		conn:   conn,
		events: make(chan transport.Event, 16),
		log:    logger,
	}
	c.events <- transport.Event{Kind: transport.EventConnect}
	go c.readLoop()
	return c, nil
}

// Client is a live websocket room connection.
type Client struct {
	conn   *websocket.Conn
	events chan transport.Event
	log    *zerolog.Logger
}

// Events returns the inbound event stream.
func (c *Client) Events() <-chan transport.Event {
	return c.events
}

// Send posts a room-visible message.
func (c *Client) Send(ctx context.Context, text string) error {
	return wsjson.Write(ctx, c.conn, frame{Type: frameTypeMsg, Text: text})
}

// Whisper sends a private message to one user.
func (c *Client) Whisper(ctx context.Context, user, text string) error {
	return wsjson.Write(ctx, c.conn, frame{Type: frameTypeWhisper, User: user, Text: text})
}

// SetColor changes the agent's display color.
func (c *Client) SetColor(ctx context.Context, hex string) error {
	return wsjson.Write(ctx, c.conn, frame{Type: frameTypeColor, Text: hex})
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closing")
}

// readLoop translates wire frames into transport events until the connection
// fails, then delivers EventDisconnect and closes the stream.
func (c *Client) readLoop() {
	ctx := context.Background()
	for {
		var f frame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			c.events <- transport.Event{Kind: transport.EventDisconnect, Err: err}
			close(c.events)
			return
		}

		switch f.Type {
		case frameTypeMsg:
			c.events <- transport.Event{Kind: transport.EventChat, User: f.User, Text: f.Text, Historical: f.History}
		case frameTypeWhisper:
			c.events <- transport.Event{Kind: transport.EventWhisper, User: f.User, Text: f.Text, Historical: f.History}
		case frameTypeUsers:
			c.events <- transport.Event{Kind: transport.EventRoster, Roster: f.Users}
		case frameTypeOnline:
			c.events <- transport.Event{Kind: transport.EventOnlineState, Online: f.Online}
		default:
			c.log.Debug().Str("type", f.Type).Msg("ignoring unknown frame")
		}
	}
}
