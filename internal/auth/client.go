// Package auth signs a client in against the document service and tracks the
// current identity.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/GolferGeek/sync-focus/internal/model"
)

const defaultTimeout = 15 * time.Second

type StateListener func(*model.Identity)

type Client struct {
	baseURL    string
	origin     string
	httpClient *http.Client
	logger     zerolog.Logger

	mu        sync.Mutex
	token     string
	identity  *model.Identity
	listeners map[int]StateListener
	nextID    int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

// WithOrigin sends an Origin header, so the server applies its allowed
// domain list to this client.
func WithOrigin(origin string) Option {
	return func(cl *Client) { cl.origin = origin }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     zerolog.Nop(),
		listeners:  make(map[int]StateListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "auth").Logger()
	return c
}

type account struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

func (a account) identity() *model.Identity {
	return &model.Identity{UserID: a.ID, DisplayName: a.DisplayName, Email: a.Email}
}

type authResponse struct {
	Token string  `json:"token"`
	User  account `json:"user"`
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*model.Identity, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password, "displayName": displayName}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", "", body, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp.Token, resp.User.identity()), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	var resp authResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(resp.Token, resp.User.identity()), nil
}

// Restore signs in with a previously issued token after checking it is
// still accepted.
func (c *Client) Restore(ctx context.Context, token string) (*model.Identity, error) {
	var resp struct {
		User account `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", token, nil, &resp); err != nil {
		return nil, err
	}
	return c.signedIn(token, resp.User.identity()), nil
}

func (c *Client) SignOut() {
	c.mu.Lock()
	wasSignedIn := c.identity != nil
	c.token = ""
	c.identity = nil
	c.mu.Unlock()

	if wasSignedIn {
		c.logger.Info().Msg("signed out")
		c.emit(nil)
	}
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) Current() *model.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// OnStateChange calls fn with the current identity, nil when signed out, and
// again whenever it changes.
func (c *Client) OnStateChange(fn StateListener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	fn(c.Current())
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) signedIn(token string, identity *model.Identity) *model.Identity {
	c.mu.Lock()
	c.token = token
	c.identity = identity
	c.mu.Unlock()

	c.logger.Info().Str("user_id", identity.UserID).Msg("signed in")
	c.emit(identity)
	id := *identity
	return &id
}

func (c *Client) emit(identity *model.Identity) {
	c.mu.Lock()
	listeners := make([]StateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		if identity == nil {
			l(nil)
			continue
		}
		id := *identity
		l(&id)
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		authErr := decodeError(resp.StatusCode, respBody)
		c.logger.Debug().Err(authErr).Str("path", path).Msg("auth request rejected")
		return authErr
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) *Error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		return &Error{Status: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &Error{Status: status, Code: http.StatusText(status), Message: strings.TrimSpace(string(body))}
}
