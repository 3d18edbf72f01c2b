package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/kv"
)

// TokenKey is the cookie and storage key the auth token is saved under.
const TokenKey = "authToken"

// TokenDays is how long the auth token cookie lives.
const TokenDays = 7

// Exchange is the payload of the api:* events.
type Exchange struct {
	Method   string
	URL      string
	Status   int
	Duration time.Duration
	Err      *Error
}

// Client talks to the homepage backend.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	cookies *kv.Cookies
	storage *kv.Storage
	bus     *events.Manager
	logger  *slog.Logger

	mu      sync.RWMutex
	headers http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. It is copied, not
// modified.
// Default: a client with a 30 second timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCookies sets the cookie store. Its jar is installed on the HTTP client
// so the backend's session cookie is kept alongside the token.
func WithCookies(ck *kv.Cookies) Option {
	return func(c *Client) {
		c.cookies = ck
	}
}

// WithStorage sets where the auth token is persisted.
func WithStorage(s *kv.Storage) Option {
	return func(c *Client) {
		c.storage = s
	}
}

// WithBus sets the event manager api:* events are emitted on.
func WithBus(m *events.Manager) Option {
	return func(c *Client) {
		c.bus = m
	}
}

// WithLogger sets the logger.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the backend at baseURL. An empty baseURL keeps
// endpoints as given.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		headers: http.Header{"Content-Type": {"application/json"}},
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.http
	if c.cookies != nil {
		hc.Jar = c.cookies.Jar()
	}
	c.http = &hc
	return c
}

// SetAuthToken sets the bearer token sent with every request. An empty
// token removes the header.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token == "" {
		c.headers.Del("Authorization")
		return
	}
	c.headers.Set("Authorization", "Bearer "+token)
}

// AuthToken returns the saved token, preferring the cookie over storage.
func (c *Client) AuthToken(ctx context.Context) string {
	if c.cookies != nil {
		if v, ok := c.cookies.Get(TokenKey); ok && v != "" {
			return v
		}
	}
	if c.storage != nil {
		return kv.Value(ctx, c.storage, TokenKey, "")
	}
	return ""
}

func (c *Client) saveToken(ctx context.Context, token string) {
	if c.cookies != nil {
		c.cookies.Set(TokenKey, token, TokenDays)
	}
	if c.storage != nil {
		c.storage.Set(ctx, TokenKey, token)
	}
	c.SetAuthToken(token)
}

func (c *Client) clearToken(ctx context.Context) {
	if c.cookies != nil {
		c.cookies.Remove(TokenKey)
	}
	if c.storage != nil {
		c.storage.Remove(ctx, TokenKey)
	}
	c.SetAuthToken("")
}

// BuildURL resolves an endpoint against the base URL. Absolute http(s)
// URLs are returned unchanged.
func (c *Client) BuildURL(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if strings.HasPrefix(endpoint, "/") {
		return c.baseURL + endpoint
	}
	return c.baseURL + "/" + endpoint
}

// Request sends a request and decodes the response into out.
//
// body is encoded as JSON, except url.Values which is sent form-encoded and
// io.Reader which is sent as is. A JSON response is decoded into out; a text
// response is stored when out is a *string. 204 No Content leaves out
// untouched. Non-2xx responses and network failures return *Error.
func (c *Client) Request(ctx context.Context, method, endpoint string, body, out any, header http.Header) error {
	target := c.BuildURL(endpoint)

	req, err := c.newRequest(ctx, method, target, body, header)
	if err != nil {
		return err
	}

	c.emit(events.APIRequest, Exchange{Method: method, URL: target})
	start := time.Now()

	err = c.do(req, out)

	x := Exchange{Method: method, URL: target, Duration: time.Since(start)}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		x.Status = apiErr.Status
		x.Err = apiErr
		c.logger.Warn("api request failed", "method", method, "url", target, "status", apiErr.Status, "error", apiErr.Message)
		c.emit(events.APIError, x)
		return err
	}
	if err != nil {
		c.logger.Warn("api response undecodable", "method", method, "url", target, "error", err)
		c.emit(events.APIError, x)
		return err
	}
	x.Status = http.StatusOK
	c.logger.Debug("api request", "method", method, "url", target, "duration", x.Duration)
	c.emit(events.APIResponse, x)
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body any, header http.Header) (*http.Request, error) {
	c.mu.RLock()
	h := c.headers.Clone()
	c.mu.RUnlock()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case url.Values:
		r = strings.NewReader(b.Encode())
		h.Set("Content-Type", "application/x-www-form-urlencoded")
	case io.Reader:
		r = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("api: encode %s %s body: %w", method, target, err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, fmt.Errorf("api: build %s %s: %w", method, target, err)
	}
	for k, v := range header {
		h[k] = v
	}
	req.Header = h
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = DefaultNetworkMessage
		}
		return &Error{Message: msg, Status: 0, Data: map[string]any{}, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Message: err.Error(), Status: 0, Data: map[string]any{}, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp, data)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("api: decode %s response: %w", req.URL, err)
		}
		return nil
	}
	switch o := out.(type) {
	case *string:
		*o = string(data)
	case *[]byte:
		*o = data
	default:
		return fmt.Errorf("api: %s returned %q, not JSON", req.URL, resp.Header.Get("Content-Type"))
	}
	return nil
}

// responseError builds the *Error for a non-2xx response. The message comes
// from the JSON body's "message" or "error" key, else the text body, else
// the status line.
func responseError(resp *http.Response, body []byte) *Error {
	statusLine := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil || data == nil {
		text := strings.TrimSpace(string(body))
		if text == "" {
			text = statusLine
		}
		data = map[string]any{"message": text}
	}

	msg := statusLine
	for _, key := range []string{"message", "error"} {
		if s, ok := data[key].(string); ok && s != "" {
			msg = s
			break
		}
	}
	return &Error{Message: msg, Status: resp.StatusCode, Data: data}
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func (c *Client) emit(name events.Name, x Exchange) {
	if c.bus != nil {
		c.bus.Emit(name, x)
	}
}

// Get sends a GET request with params appended to the query string.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + params.Encode()
	}
	return c.Request(ctx, http.MethodGet, endpoint, nil, out, nil)
}

// Post sends a POST request.
func (c *Client) Post(ctx context.Context, endpoint string, data, out any) error {
	return c.Request(ctx, http.MethodPost, endpoint, data, out, nil)
}

// Put sends a PUT request.
func (c *Client) Put(ctx context.Context, endpoint string, data, out any) error {
	return c.Request(ctx, http.MethodPut, endpoint, data, out, nil)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Request(ctx, http.MethodDelete, endpoint, nil, out, nil)
}
