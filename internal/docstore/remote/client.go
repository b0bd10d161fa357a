// Package remote implements docstore.Store against the document service over
// HTTP, with live subscriptions carried by websockets.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/GolferGeek/sync-focus/internal/docstore"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultMaxRetries   = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultMaxDelay     = 3 * time.Second
)

// Error is a non-2xx response from the document service.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("document service %d %s: %s", e.Status, e.Code, e.Message)
}

// Unwrap maps service errors onto the docstore sentinels.
func (e *Error) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return docstore.ErrNotFound
	case e.Status == http.StatusConflict:
		return docstore.ErrConflict
	case e.Code == "invalid_path" || e.Code == "invalid_json":
		return docstore.ErrInvalid
	}
	return nil
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client is a docstore.Store backed by the document service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     zerolog.Logger

	maxRetries   uint64
	initialDelay time.Duration
	maxDelay     time.Duration

	mu    sync.RWMutex
	token string
}

var _ docstore.Store = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = logger }
}

func WithToken(token string) Option {
	return func(cl *Client) { cl.token = token }
}

// WithRetry sets how often and how fast idempotent requests are retried.
func WithRetry(maxRetries uint64, initialDelay, maxDelay time.Duration) Option {
	return func(cl *Client) {
		cl.maxRetries = maxRetries
		cl.initialDelay = initialDelay
		cl.maxDelay = maxDelay
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		dialer:       &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		logger:       zerolog.Nop(),
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		maxDelay:     defaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "remote_store").Logger()
	return c, nil
}

// SetToken replaces the bearer token used for later requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

type documentResponse struct {
	Document docstore.Document `json:"document"`
}

type listResponse struct {
	Documents []docstore.Document `json:"documents"`
}

type writeRequest struct {
	Data       json.RawMessage `json:"data"`
	Merge      bool            `json:"merge,omitempty"`
	IfRevision *int64          `json:"ifRevision,omitempty"`
}

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}
	var resp documentResponse
	err := c.do(ctx, http.MethodGet, docPath(collection, id), nil, nil, &resp, true)
	return resp.Document, err
}

func (c *Client) List(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidatePath(collection, ""); err != nil {
		return nil, err
	}
	var resp listResponse
	if err := c.do(ctx, http.MethodGet, "/api/docs/"+collection, queryValues(q), nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Documents, nil
}

func (c *Client) Set(ctx context.Context, collection, id string, data any, opts ...docstore.WriteOption) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}
	raw, err := docstore.EncodeObject(data)
	if err != nil {
		return docstore.Document{}, err
	}
	o := docstore.ApplyOptions(opts)
	req := writeRequest{Data: raw, Merge: o.Merge}
	if o.HasRevision {
		rev := o.Revision
		req.IfRevision = &rev
	}

	var resp documentResponse
	err = c.do(ctx, http.MethodPut, docPath(collection, id), nil, req, &resp, true)
	return resp.Document, err
}

func (c *Client) Update(ctx context.Context, collection, id string, fields map[string]any, opts ...docstore.WriteOption) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}
	raw, err := docstore.EncodeObject(fields)
	if err != nil {
		return docstore.Document{}, err
	}
	o := docstore.ApplyOptions(opts)
	req := writeRequest{Data: raw}
	if o.HasRevision {
		rev := o.Revision
		req.IfRevision = &rev
	}

	var resp documentResponse
	err = c.do(ctx, http.MethodPatch, docPath(collection, id), nil, req, &resp, true)
	return resp.Document, err
}

// Add is not retried: a lost response would otherwise create duplicates.
func (c *Client) Add(ctx context.Context, collection string, data any) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, ""); err != nil {
		return docstore.Document{}, err
	}
	raw, err := docstore.EncodeObject(data)
	if err != nil {
		return docstore.Document{}, err
	}
	var resp documentResponse
	err = c.do(ctx, http.MethodPost, "/api/docs/"+collection, nil, writeRequest{Data: raw}, &resp, false)
	return resp.Document, err
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, docPath(collection, id), nil, nil, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, idempotent bool) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = encoded
	}

	attempt := func(ctx context.Context) error {
		err := c.roundTrip(ctx, method, path, query, payload, out)
		var svcErr *Error
		if errors.As(err, &svcErr) && svcErr.Status < 500 && svcErr.Status != http.StatusTooManyRequests {
			return err
		}
		if err != nil && idempotent && ctx.Err() == nil {
			c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("retrying request")
			return retry.RetryableError(err)
		}
		return err
	}

	backoff := retry.NewExponential(c.initialDelay)
	backoff = retry.WithCappedDuration(c.maxDelay, backoff)
	backoff = retry.WithMaxRetries(c.maxRetries, backoff)
	if err := retry.Do(ctx, backoff, attempt); err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) && svcErr.Status < 500 {
			c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("document request rejected")
		} else {
			c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("document request failed")
		}
		return err
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, payload []byte, out any) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
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
		return decodeError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(status int, body []byte) error {
	var env errorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Code != "" {
		return &Error{Status: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &Error{Status: status, Code: http.StatusText(status), Message: strings.TrimSpace(string(body))}
}

func docPath(collection, id string) string {
	return "/api/docs/" + collection + "/" + id
}

func queryValues(q docstore.Query) url.Values {
	values := url.Values{}
	if q.OrderBy != "" {
		values.Set("orderBy", q.OrderBy)
	}
	if q.Descending {
		values.Set("desc", strconv.FormatBool(true))
	}
	return values
}
