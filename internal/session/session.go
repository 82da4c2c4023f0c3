// Package session owns credentials and walks the login → token → join state
// machine until a live room connection exists.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roombot/internal/transport"
)

// State is the session's position in the connect sequence.
type State int

const (
	StateIdle State = iota
	StateLoggingIn
	StateLoggedIn
	StateFetchingToken
	StateJoining
	StateJoined
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoggingIn:
		return "logging_in"
	case StateLoggedIn:
		return "logged_in"
	case StateFetchingToken:
		return "fetching_token"
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingCredentials is returned when login is attempted without both
	// username and password.
	ErrMissingCredentials = errors.New("missing credentials")
	// ErrAuthenticationFailed is returned on a rejected or malformed login
	// exchange.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUnexpectedStatus is returned when the room page fetch answers with
	// neither success nor a redirect.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrTokenParseFailed is returned when the token marker is absent from
	// the fetched markup.
	ErrTokenParseFailed = errors.New("token parse failed")
	// ErrAlreadyJoined is returned when a room connection already exists.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrMissingRoom is returned when no room name is configured.
	ErrMissingRoom = errors.New("missing room")
	// ErrMissingToken is returned when joining without a session token.
	ErrMissingToken = errors.New("missing token")
)

// AuthClient performs the credential exchange and the room-token scrape
// against the remote service.
type AuthClient interface {
	Login(ctx context.Context, username, password string) error
	FetchRoomToken(ctx context.Context, room string) (string, error)
}

// Config carries the account and room the session manages.
type Config struct {
	Username  string
	Password  string
	AuthToken string
	Room      string
	// Color is applied after joining when it is exactly six hex digits;
	// anything else is skipped silently.
	Color string
}

// Session is the authentication-and-connect state machine for one room.
type Session struct {
	mu            sync.Mutex
	log           *zerolog.Logger
	auth          AuthClient
	dialer        transport.Dialer
	username      string
	password      string
	token         string
	room          string
	color         string
	state         State
	authenticated bool
	conn          transport.Conn
}

// New constructs a session in the idle state.
func New(auth AuthClient, dialer transport.Dialer, cfg Config, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		log:      logger,
		auth:     auth,
		dialer:   dialer,
		username: cfg.Username,
		password: cfg.Password,
		token:    cfg.AuthToken,
		room:     cfg.Room,
		color:    cfg.Color,
		state:    StateIdle,
	}
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether a login has succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Login performs the credential exchange. It is a no-op success when already
// authenticated, unless forced.
func (s *Session) Login(ctx context.Context, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx, force)
}

func (s *Session) loginLocked(ctx context.Context, force bool) error {
	if s.authenticated && !force {
		return nil
	}
	if s.username == "" || s.password == "" {
		return ErrMissingCredentials
	}

	s.state = StateLoggingIn
	if err := s.auth.Login(ctx, s.username, s.password); err != nil {
		s.state = StateFailed
		return err
	}
	s.state = StateLoggedIn
	s.authenticated = true
	s.log.Info().Str("username", s.username).Msg("logged in")
	return nil
}

// Connect brings the session to the joined state: it reuses a usable cached
// token or logs in and scrapes a fresh one, then opens the room connection.
// Calling Connect while already joined returns the existing connection.
func (s *Session) Connect(ctx context.Context) (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	if s.token == "" || !tokenUsable(s.token, time.Now()) {
		s.token = ""
		if err := s.loginLocked(ctx, false); err != nil {
			return nil, err
		}
		s.state = StateFetchingToken
		token, err := s.auth.FetchRoomToken(ctx, s.room)
		if err != nil {
			s.state = StateFailed
			return nil, err
		}
		s.token = token
	}

	return s.joinLocked(ctx)
}

// Join opens the room connection with the token already held.
func (s *Session) Join(ctx context.Context) (transport.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinLocked(ctx)
}

func (s *Session) joinLocked(ctx context.Context) (transport.Conn, error) {
	if s.conn != nil {
		return nil, ErrAlreadyJoined
	}
	if s.room == "" {
		return nil, ErrMissingRoom
	}
	if s.token == "" {
		return nil, ErrMissingToken
	}

	s.state = StateJoining
	conn, err := s.dialer.Dial(ctx, s.room, s.token)
	if err != nil {
		// Transport failure reasons pass through untransformed.
		s.state = StateFailed
		return nil, err
	}
	s.conn = conn
	s.state = StateJoined
	s.log.Info().Str("room", s.room).Msg("joined room")

	s.applyColorLocked(ctx)
	return conn, nil
}

// applyColorLocked runs the post-join initializer: a syntactically valid
// display color is applied; anything else is skipped, never fatal.
func (s *Session) applyColorLocked(ctx context.Context) {
	if s.color == "" {
		return
	}
	if !validColor(s.color) {
		s.log.Debug().Str("color", s.color).Msg("skipping invalid display color")
		return
	}
	if err := s.conn.SetColor(ctx, s.color); err != nil {
		s.log.Warn().Err(err).Msg("failed to set display color")
	}
}

// Close tears down the room connection, keeping authentication state.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if s.authenticated {
		s.state = StateLoggedIn
	} else {
		s.state = StateIdle
	}
	return err
}

// tokenUsable reports whether a cached token can still be presented. Tokens
// issued by the service are JWTs; an expired one forces a fresh login. A
// token that does not parse as a JWT is treated as opaque and used as-is.
func tokenUsable(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return now.Before(exp.Time)
}

// validColor accepts exactly six hex digits.
func validColor(hex string) bool {
	if len(hex) != 6 {
		return false
	}
	for _, r := range hex {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
