package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yanachan-dev/homepage/pkg/middleware"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

// Message types sent to pages.
const (
	MsgHello        = "sw:hello"
	MsgNotification = "sw:notification"
	MsgClose        = "sw:close"
	MsgFocus        = "sw:focus"
	MsgOpen         = "sw:open"
	MsgReload       = "sw:reload"
)

// Message types received from pages.
const (
	MsgNavigate   = "navigate"
	MsgPermission = "permission"
	MsgOnline     = "online"
	MsgClick      = "click"
)

const writeTimeout = 10 * time.Second

// Inbound is a message from a page.
type Inbound struct {
	Type       string             `json:"type"`
	URL        string             `json:"url,omitempty"`
	Permission swcache.Permission `json:"permission,omitempty"`
	Online     bool               `json:"online,omitempty"`
	ID         string             `json:"id,omitempty"`
}

// Outbound is a message to a page.
type Outbound struct {
	Type         string                `json:"type"`
	ID           string                `json:"id,omitempty"`
	URL          string                `json:"url,omitempty"`
	Notification *swcache.Notification `json:"notification,omitempty"`
}

// Conn is one connected page. It implements swcache.Client.
type Conn struct {
	id  string
	ws  *websocket.Conn
	hub *Hub

	wmu sync.Mutex

	mu  sync.RWMutex
	url string
}

var _ swcache.Client = (*Conn)(nil)

// ID returns the page's connection id.
func (c *Conn) ID() string { return c.id }

// URL returns the page's last reported URL.
func (c *Conn) URL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.url
}

// Type returns swcache.ClientWindow; only pages connect.
func (c *Conn) Type() swcache.ClientType { return swcache.ClientWindow }

// Focus asks the page to bring itself to the front.
func (c *Conn) Focus(ctx context.Context) error {
	return c.Send(Outbound{Type: MsgFocus})
}

// Send writes one message to the page.
func (c *Conn) Send(msg any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

// Hub tracks connected pages. It is the dev server's stand-in for the
// browser's notification and window APIs, so it implements swcache.Notifier
// and swcache.Clients.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *middleware.Metrics
	onMsg    func(context.Context, *Conn, Inbound)

	mu         sync.RWMutex
	conns      []*Conn
	permission swcache.Permission
}

var (
	_ swcache.Notifier = (*Hub)(nil)
	_ swcache.Clients  = (*Hub)(nil)
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithPermission sets the notification permission assumed until a page
// reports one.
// Default: swcache.PermissionDefault.
func WithPermission(p swcache.Permission) HubOption {
	return func(h *Hub) {
		h.permission = p
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHubMetrics records page connections and event stream errors.
func WithHubMetrics(m *middleware.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		logger:     slog.Default(),
		permission: swcache.PermissionDefault,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in dev
			},
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnMessage sets the handler for page messages the hub does not consume
// itself. It runs on the page's read goroutine.
func (h *Hub) OnMessage(fn func(context.Context, *Conn, Inbound)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMsg = fn
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
// The page's URL is taken from the "url" query parameter, else the Referer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		h.metrics.WebSocketError("upgrade")
		return
	}

	c := &Conn{id: uuid.NewString(), ws: ws, hub: h, url: r.URL.Query().Get("url")}
	if c.url == "" {
		c.url = r.Referer()
	}

	h.mu.Lock()
	h.conns = append(h.conns, c)
	h.mu.Unlock()
	h.metrics.PageConnected()
	h.logger.Debug("page connected", "client", c.id, "url", c.url)

	defer h.remove(c)

	if err := c.Send(Outbound{Type: MsgHello, ID: c.id}); err != nil {
		return
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.metrics.WebSocketError("read")
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("malformed page message", "client", c.id, "error", err)
			continue
		}
		h.dispatch(r.Context(), c, msg)
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Conn, msg Inbound) {
	switch msg.Type {
	case MsgNavigate:
		c.mu.Lock()
		c.url = msg.URL
		c.mu.Unlock()
		return
	case MsgPermission:
		h.mu.Lock()
		h.permission = msg.Permission
		h.mu.Unlock()
		return
	}

	h.mu.RLock()
	fn := h.onMsg
	h.mu.RUnlock()
	if fn != nil {
		fn(ctx, c, msg)
	}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if i := slices.Index(h.conns, c); i >= 0 {
		h.conns = slices.Delete(h.conns, i, i+1)
	}
	h.mu.Unlock()
	c.ws.Close()
	h.metrics.PageDisconnected()
	h.logger.Debug("page disconnected", "client", c.id)
}

// Broadcast sends msg to every page, dropping pages that cannot be written.
func (h *Hub) Broadcast(msg any) {
	for _, c := range h.snapshot() {
		if err := c.Send(msg); err != nil {
			h.logger.Debug("dropping page", "client", c.id, "error", err)
			h.metrics.WebSocketError("write")
			c.ws.Close()
		}
	}
}

func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.conns)
}

// ClientCount returns the number of connected pages.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes all page connections.
func (h *Hub) Shutdown() {
	for _, c := range h.snapshot() {
		c.ws.Close()
	}
}

// Permission returns the last permission a page reported.
func (h *Hub) Permission() swcache.Permission {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.permission
}

// Show sends n to every page. It fails with swcache.ErrNoClients when none
// is connected.
func (h *Hub) Show(ctx context.Context, n swcache.Notification) error {
	if h.ClientCount() == 0 {
		return swcache.ErrNoClients
	}
	h.Broadcast(Outbound{Type: MsgNotification, ID: n.ID, Notification: &n})
	return nil
}

// Close dismisses notification id on every page.
func (h *Hub) Close(ctx context.Context, id string) error {
	h.Broadcast(Outbound{Type: MsgClose, ID: id})
	return nil
}

// MatchAll returns the connected pages in connection order. Only windows
// connect, so ClientWorker matches nothing.
func (h *Hub) MatchAll(ctx context.Context, typ swcache.ClientType) ([]swcache.Client, error) {
	if typ == swcache.ClientWorker {
		return nil, nil
	}
	conns := h.snapshot()
	out := make([]swcache.Client, len(conns))
	for i, c := range conns {
		out[i] = c
	}
	return out, nil
}

// OpenWindow asks the longest-connected page to open url and returns that
// page.
func (h *Hub) OpenWindow(ctx context.Context, url string) (swcache.Client, error) {
	conns := h.snapshot()
	if len(conns) == 0 {
		return nil, swcache.ErrNoClients
	}
	if err := conns[0].Send(Outbound{Type: MsgOpen, URL: url}); err != nil {
		return nil, fmt.Errorf("server: open window: %w", err)
	}
	return conns[0], nil
}
