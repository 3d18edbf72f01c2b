package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanachan-dev/homepage/internal/watch"
	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/middleware"
	"github.com/yanachan-dev/homepage/pkg/store"
	"github.com/yanachan-dev/homepage/pkg/swcache"
	"github.com/yanachan-dev/homepage/pkg/toast"
)

// maxBody caps control endpoint request bodies.
const maxBody = 1 << 20

// Config wires the server's collaborators. Controller and Store are
// required.
type Config struct {
	Controller  *swcache.Controller
	Store       *store.Store
	Hub         *Hub
	Reinstaller *watch.Reinstaller

	// Gatherer serves /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Metrics records requests. Nil records nothing.
	Metrics *middleware.Metrics

	Logger *slog.Logger
}

// Server routes control endpoints and proxies everything else.
type Server struct {
	ctrl   *swcache.Controller
	store  *store.Store
	hub    *Hub
	re     *watch.Reinstaller
	logger *slog.Logger

	router chi.Router
	unsub  events.Unsubscribe
}

// New builds the server and starts streaming bus events to pages.
func New(cfg Config) *Server {
	s := &Server{
		ctrl:   cfg.Controller,
		store:  cfg.Store,
		hub:    cfg.Hub,
		re:     cfg.Reinstaller,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.hub == nil {
		s.hub = NewHub(WithHubLogger(s.logger))
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.hub.OnMessage(s.handlePageMessage)
	s.unsub = s.store.Bus().OnMultiple(events.Names(), func(e events.Event) error {
		s.hub.Broadcast(e.Fields())
		return nil
	})

	origin := s.ctrl.Origin()
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(origin)
			pr.Out.Host = origin.Host
		},
		Transport: s.ctrl,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("proxy request failed", "url", r.URL.String(), "error", err)
			http.Error(w, "offline", http.StatusBadGateway)
		},
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.OpenTelemetry(middleware.WithFilter(func(req *http.Request) bool {
		return req.URL.Path != "/metrics"
	})))
	r.Use(cfg.Metrics.Handler)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/_events", s.hub.ServeHTTP)

	r.Route("/_state", func(r chi.Router) {
		r.Get("/", s.getState)
		r.Patch("/", s.patchState)
		r.Delete("/", s.resetState)
	})

	r.Route("/_sw", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/caches", s.caches)
		r.Post("/install", s.install)
		r.Post("/activate", s.activate)
		r.Post("/reinstall", s.reinstall)
		r.Post("/push", s.push)
		r.Post("/click", s.click)
	})

	r.Handle("/*", proxy)
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the page hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close stops streaming events and disconnects every page.
func (s *Server) Close() {
	s.unsub()
	s.hub.Shutdown()
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handlePageMessage(ctx context.Context, c *Conn, msg Inbound) {
	switch msg.Type {
	case MsgOnline:
		s.store.SetOnline(msg.Online)
	case MsgClick:
		if err := s.ctrl.NotificationClick(ctx, swcache.Notification{ID: msg.ID}); err != nil {
			s.logger.Warn("notification click failed", "client", c.ID(), "id", msg.ID, "error", err)
		}
	default:
		s.logger.Debug("unknown page message", "client", c.ID(), "type", msg.Type)
	}
}

// NotifyReload tells pages that version is now serving and records a toast
// for it in the store.
func (s *Server) NotifyReload(version string) {
	toast.Info(s.store, "cache "+version+" activated")
	s.hub.Broadcast(Outbound{Type: MsgReload, ID: version})
}
