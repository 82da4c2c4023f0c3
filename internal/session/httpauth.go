package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// tokenMarker precedes the embedded room token in the fetched page markup.
const tokenMarker = `"chatToken":"`

// maxPageBytes bounds how much of the room page is read while scraping.
const maxPageBytes = 1 << 20

// HTTPAuthClient talks to the remote service's login endpoint and scrapes
// room tokens from the authenticated room page.
type HTTPAuthClient struct {
	base   string
	client *http.Client
	log    *zerolog.Logger
}

// NewHTTPAuthClient builds a client rooted at baseURL. A cookie jar keeps the
// login session for the subsequent page fetch.
func NewHTTPAuthClient(baseURL string, logger *zerolog.Logger) *HTTPAuthClient {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	jar, _ := cookiejar.New(nil)
	return &HTTPAuthClient{
		base: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 15 * time.Second,
			Jar:     jar,
		},
		log: logger,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool `json:"success"`
}

// Login performs the credential exchange. Both an HTTP-level anomaly and an
// unsuccessful payload map to ErrAuthenticationFailed, so the caller always
// gets a definitive verdict.
func (c *HTTPAuthClient) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAuthenticationFailed, resp.StatusCode)
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrAuthenticationFailed, err)
	}
	if !out.Success {
		return ErrAuthenticationFailed
	}
	return nil
}

// FetchRoomToken retrieves the room page and extracts the embedded session
// token via the fixed marker.
func (c *HTTPAuthClient) FetchRoomToken(ctx context.Context, room string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/chat/"+url.PathEscape(room), nil)
	if err != nil {
		return "", fmt.Errorf("build page request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch room page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && (resp.StatusCode < 300 || resp.StatusCode > 399) {
		return "", fmt.Errorf("%w: status %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	markup, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("read room page: %w", err)
	}

	token, ok := extractToken(string(markup))
	if !ok {
		return "", ErrTokenParseFailed
	}
	return token, nil
}

// extractToken pulls the quoted token following the marker.
func extractToken(markup string) (string, bool) {
	i := strings.Index(markup, tokenMarker)
	if i < 0 {
		return "", false
	}
	rest := markup[i+len(tokenMarker):]
	j := strings.IndexByte(rest, '"')
	if j <= 0 {
		return "", false
	}
	return rest[:j], true
}
