package swcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// State is the lifecycle state of the registered worker.
type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Controller intercepts requests the way the site's service worker does.
// It is safe for concurrent use.
type Controller struct {
	origin    *url.URL
	transport http.RoundTripper
	storage   CacheStorage
	notifier  Notifier
	clients   Clients
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	offline   string
	now       func() time.Time
	newID     func() string

	mu       sync.RWMutex
	manifest Manifest
	state    State
	active   string
}

// Option configures a Controller.
type Option func(*Controller)

// WithTransport sets the network transport.
// Default: http.DefaultTransport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Controller) {
		if rt != nil {
			c.transport = rt
		}
	}
}

// WithStorage sets the cache storage.
// Default: a new MemoryStorage.
func WithStorage(s CacheStorage) Option {
	return func(c *Controller) {
		if s != nil {
			c.storage = s
		}
	}
}

// WithManifest sets the precache manifest.
// Default: DefaultManifest().
func WithManifest(m Manifest) Option {
	return func(c *Controller) {
		c.manifest = m.Clone()
	}
}

// WithNotifier sets where push notifications are shown.
func WithNotifier(n Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithClients sets the controlled pages used by NotificationClick.
func WithClients(cl Clients) Option {
	return func(c *Controller) {
		c.clients = cl
	}
}

// WithLogger sets the logger.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records cache metrics. See NewMetrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracer sets the tracer.
// Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		c.tracer = t
	}
}

// WithOfflinePage sets the path served to HTML requests while offline.
// Default: DefaultOfflinePage.
func WithOfflinePage(p string) Option {
	return func(c *Controller) {
		if p != "" {
			c.offline = p
		}
	}
}

// WithClock overrides the time source used for stored entries.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Controller for the site at origin. Only the scheme and host
// of origin are used.
func New(origin *url.URL, opts ...Option) *Controller {
	c := &Controller{
		origin:    &url.URL{Scheme: origin.Scheme, Host: origin.Host},
		transport: http.DefaultTransport,
		logger:    slog.Default(),
		offline:   DefaultOfflinePage,
		now:       time.Now,
		newID:     uuid.NewString,
		manifest:  DefaultManifest(),
		state:     StateParsed,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.storage == nil {
		c.storage = NewMemoryStorage()
	}
	return c
}

// Origin returns the origin requests are compared against.
func (c *Controller) Origin() *url.URL {
	u := *c.origin
	return &u
}

// Storage returns the cache storage.
func (c *Controller) Storage() CacheStorage {
	return c.storage
}

// State returns the lifecycle state of the most recently registered manifest.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Manifest returns the most recently registered manifest.
func (c *Controller) Manifest() Manifest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.manifest.Clone()
}

// ActiveVersion returns the version serving requests, or "" before the
// first activation.
func (c *Controller) ActiveVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Update registers a new manifest, which must then be installed and
// activated. The active version keeps serving until then. It reports false
// when m has the version already registered.
func (c *Controller) Update(m Manifest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.Version == c.manifest.Version && c.state != StateRedundant {
		return false
	}
	c.manifest = m.Clone()
	c.state = StateParsed
	return true
}

// resolve returns the absolute URL of an origin-relative path.
func (c *Controller) resolve(p string) string {
	return c.origin.ResolveReference(&url.URL{Path: p}).String()
}

func (c *Controller) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(u.Host, c.origin.Host)
}

// Install opens the cache named by the manifest version and stores every
// manifest entry fetched from the network. Any transport error or non-2xx
// response fails the whole step, nothing is stored and the worker becomes
// redundant.
func (c *Controller) Install(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateParsed && c.state != StateRedundant {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: install while %s", ErrInvalidState, state)
	}
	m := c.manifest.Clone()
	c.state = StateInstalling
	c.mu.Unlock()

	ctx, span := c.startSpan(ctx, "swcache.install",
		attribute.String("swcache.version", m.Version),
		attribute.Int("swcache.urls", len(m.URLs)),
	)
	start := time.Now()
	err := c.install(ctx, m)
	c.metrics.step("install", start, err)
	endSpan(span, err)

	c.mu.Lock()
	if c.manifest.Version == m.Version && c.state == StateInstalling {
		if err != nil {
			c.state = StateRedundant
		} else {
			c.state = StateInstalled
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("cache install failed", "cache", m.Version, "error", err)
		return err
	}
	c.logger.Info("cache installed", "cache", m.Version, "urls", len(m.URLs))
	return nil
}

func (c *Controller) install(ctx context.Context, m Manifest) error {
	entries := make([]Entry, 0, len(m.URLs))
	for _, p := range m.URLs {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(p), nil)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInstallFailed, p, err)
		}
		resp, err := c.transport.RoundTrip(req)
		if err != nil {
			return fmt.Errorf("%w: fetch %s: %w", ErrInstallFailed, p, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return fmt.Errorf("%w: fetch %s: %s", ErrInstallFailed, p, resp.Status)
		}
		e, err := NewEntry(req, resp, c.now())
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInstallFailed, err)
		}
		entries = append(entries, e)
	}

	cache, err := c.storage.Open(ctx, m.Version)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	if err := cache.AddAll(ctx, entries); err != nil {
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}
	return nil
}

// Activate deletes every cache whose name is not the installed version and
// starts serving requests from that version.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateInstalled {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: activate while %s", ErrInvalidState, state)
	}
	version := c.manifest.Version
	c.state = StateActivating
	c.mu.Unlock()

	ctx, span := c.startSpan(ctx, "swcache.activate", attribute.String("swcache.version", version))
	start := time.Now()
	err := c.evict(ctx, version)
	c.metrics.step("activate", start, err)
	endSpan(span, err)

	c.mu.Lock()
	if c.manifest.Version == version && c.state == StateActivating {
		if err != nil {
			c.state = StateInstalled
		} else {
			c.state = StateActivated
			c.active = version
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("cache activate failed", "cache", version, "error", err)
		return err
	}
	c.logger.Info("cache activated", "cache", version)
	return nil
}

func (c *Controller) evict(ctx context.Context, keep string) error {
	names, err := c.storage.Keys(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == keep {
			continue
		}
		c.logger.Info("deleting old cache", "cache", name)
		deleted, err := c.storage.Delete(ctx, name)
		if err != nil {
			return err
		}
		if deleted {
			c.metrics.eviction()
		}
	}
	return nil
}

// RoundTrip implements http.RoundTripper. Cross-origin requests and requests
// made before the first activation go straight to the network transport.
func (c *Controller) RoundTrip(req *http.Request) (*http.Response, error) {
	if !c.sameOrigin(req.URL) {
		c.metrics.fetch(resultBypass)
		return c.transport.RoundTrip(req)
	}

	version := c.ActiveVersion()
	if version == "" {
		c.metrics.fetch(resultInactive)
		return c.transport.RoundTrip(req)
	}

	ctx, span := c.startSpan(req.Context(), "swcache.fetch",
		attribute.String("swcache.version", version),
		attribute.String("http.method", req.Method),
		attribute.String("url.path", req.URL.Path),
	)
	resp, err := c.fetch(ctx, req, version, span)
	endSpan(span, err)
	return resp, err
}

// fetch serves a same-origin request cache-first.
func (c *Controller) fetch(ctx context.Context, req *http.Request, version string, span trace.Span) (*http.Response, error) {
	cache, err := c.storage.Open(ctx, version)
	if err != nil {
		c.logger.Warn("cache open failed", "cache", version, "error", err)
	}

	if cache != nil {
		if resp, err := cache.Match(ctx, req); err == nil {
			c.metrics.fetch(resultHit)
			span.SetAttributes(attribute.Bool("swcache.hit", true))
			return resp, nil
		}
	}
	c.metrics.fetch(resultMiss)
	span.SetAttributes(attribute.Bool("swcache.hit", false))

	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return c.offlineFallback(ctx, req, err)
	}
	if !c.cacheable(req, resp) {
		return resp, nil
	}

	e, err := NewEntry(req, resp, c.now())
	if err != nil {
		return c.offlineFallback(ctx, req, err)
	}
	if cache == nil {
		c.metrics.putFailure()
		return resp, nil
	}
	if err := cache.Put(ctx, e); err != nil {
		c.metrics.putFailure()
		c.logger.Warn("cache put failed", "cache", version, "url", e.URL, "error", err)
	}
	return resp, nil
}

// cacheable reports whether resp is a 200 same-origin response to a GET.
func (c *Controller) cacheable(req *http.Request, resp *http.Response) bool {
	if !matchable(req) || resp.StatusCode != http.StatusOK {
		return false
	}
	return resp.Request == nil || c.sameOrigin(resp.Request.URL)
}

// offlineFallback answers a failed network request. HTML requests get the
// cached offline page; everything else gets err.
func (c *Controller) offlineFallback(ctx context.Context, req *http.Request, err error) (*http.Response, error) {
	c.metrics.networkError()

	if strings.Contains(req.Header.Get("Accept"), "text/html") {
		fbReq, ferr := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(c.offline), nil)
		if ferr == nil {
			if resp, ferr := c.storage.Match(ctx, fbReq); ferr == nil {
				c.metrics.offlineFallback()
				c.logger.Warn("serving offline page", "url", req.URL.String(), "error", err)
				resp.Request = req
				return resp, nil
			}
		}
	}

	c.logger.Error("fetch failed", "url", req.URL.String(), "error", err)
	return nil, err
}

// Push shows a notification for a push message when permission has been
// granted and is a no-op otherwise. An empty message shows the default
// title and body; so do missing keys.
func (c *Controller) Push(ctx context.Context, data []byte) error {
	if c.notifier == nil || c.notifier.Permission() != PermissionGranted {
		c.logger.Debug("push ignored without notification permission")
		return nil
	}

	p := pushPayload{Title: DefaultPushTitle, Body: DefaultPushBody}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("swcache: decode push message: %w", err)
		}
	}

	return c.notifier.Show(ctx, Notification{
		ID:    c.newID(),
		Title: p.Title,
		Body:  p.Body,
		Icon:  DefaultPushIcon,
		Badge: DefaultPushIcon,
		Data:  p.Data,
	})
}

// NotificationClick closes n, then focuses a window showing the site root
// or opens a new one.
func (c *Controller) NotificationClick(ctx context.Context, n Notification) error {
	if c.notifier != nil {
		if err := c.notifier.Close(ctx, n.ID); err != nil {
			c.logger.Warn("notification close failed", "id", n.ID, "error", err)
		}
	}
	if c.clients == nil {
		return nil
	}

	list, err := c.clients.MatchAll(ctx, ClientWindow)
	if err != nil {
		return fmt.Errorf("swcache: match clients: %w", err)
	}
	for _, cl := range list {
		if c.isRoot(cl.URL()) {
			return cl.Focus(ctx)
		}
	}
	if _, err := c.clients.OpenWindow(ctx, c.resolve("/")); err != nil {
		return fmt.Errorf("swcache: open window: %w", err)
	}
	return nil
}

// isRoot reports whether raw is the site root, relative or absolute.
func (c *Controller) isRoot(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Host != "" && !c.sameOrigin(u) {
		return false
	}
	return u.Path == "/" || (u.Path == "" && u.Host != "")
}

// CacheInfo describes one cache for inspection.
type CacheInfo struct {
	Name    string   `json:"name"`
	Current bool     `json:"current"`
	URLs    []string `json:"urls"`
}

// Inventory lists every cache and its keys.
func (c *Controller) Inventory(ctx context.Context) ([]CacheInfo, error) {
	names, err := c.storage.Keys(ctx)
	if err != nil {
		return nil, err
	}
	current := c.ActiveVersion()

	out := make([]CacheInfo, 0, len(names))
	for _, name := range names {
		cache, err := c.storage.Open(ctx, name)
		if err != nil {
			return nil, err
		}
		keys, err := cache.Keys(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, CacheInfo{Name: name, Current: name == current, URLs: keys})
	}
	return out, nil
}
