package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yanachan-dev/homepage/internal/watch"
	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/kv"
	"github.com/yanachan-dev/homepage/pkg/middleware"
	"github.com/yanachan-dev/homepage/pkg/store"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

type fixture struct {
	origin   *httptest.Server
	hits     *atomic.Int64
	ctrl     *swcache.Controller
	store    *store.Store
	srv      *Server
	http     *httptest.Server
	registry *prometheus.Registry
}

func newFixture(t *testing.T, hubOpts ...HubOption) *fixture {
	t.Helper()

	hits := &atomic.Int64{}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch {
		case strings.HasSuffix(r.URL.Path, ".css"):
			w.Header().Set("Content-Type", "text/css")
		case strings.HasPrefix(r.URL.Path, "/api/"):
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"ok":true}`)
			return
		default:
			w.Header().Set("Content-Type", "text/html")
		}
		io.WriteString(w, "page "+r.URL.Path)
	}))
	t.Cleanup(origin.Close)

	originURL, err := url.Parse(origin.URL)
	if err != nil {
		t.Fatal(err)
	}

	registry := prometheus.NewRegistry()
	httpMetrics := middleware.NewMetrics(middleware.WithRegistry(registry))
	hub := NewHub(append(hubOpts, WithHubMetrics(httpMetrics))...)
	ctrl := swcache.New(originURL,
		swcache.WithNotifier(hub),
		swcache.WithClients(hub),
		swcache.WithManifest(swcache.Manifest{
			Version: "test-v1",
			URLs:    []string{"/", "/home.html", "/css/shared.css"},
		}),
		swcache.WithMetrics(swcache.NewMetrics(swcache.WithRegistry(registry))),
	)
	st := store.New(events.New(), kv.NewStorage(kv.NewMemoryBackend()))

	srv := New(Config{
		Controller: ctrl,
		Store:      st,
		Hub:        hub,
		Gatherer:   registry,
		Metrics:    httpMetrics,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	return &fixture{
		origin:   origin,
		hits:     hits,
		ctrl:     ctrl,
		store:    st,
		srv:      srv,
		http:     ts,
		registry: registry,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(data)
}

func (f *fixture) activate(t *testing.T) {
	t.Helper()
	if resp, body := f.do(t, http.MethodPost, "/_sw/install", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("install = %d %s", resp.StatusCode, body)
	}
	if resp, body := f.do(t, http.MethodPost, "/_sw/activate", "", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("activate = %d %s", resp.StatusCode, body)
	}
}

func (f *fixture) dial(t *testing.T, pageURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/_events?url=" + url.QueryEscape(pageURL)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	hello := readUntil(t, conn, MsgHello)
	if hello["id"] == "" {
		t.Fatalf("hello without id: %v", hello)
	}
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg["type"] == typ {
			return msg
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestProxyServesFromCacheWhenOffline(t *testing.T) {
	f := newFixture(t)
	f.activate(t)
	installed := f.hits.Load()

	resp, body := f.do(t, http.MethodGet, "/home.html", "", nil)
	if resp.StatusCode != http.StatusOK || body != "page /home.html" {
		t.Fatalf("GET /home.html = %d %q", resp.StatusCode, body)
	}
	if f.hits.Load() != installed {
		t.Errorf("precached page went to the network")
	}

	f.origin.Close()

	resp, body = f.do(t, http.MethodGet, "/css/shared.css", "", nil)
	if resp.StatusCode != http.StatusOK || body != "page /css/shared.css" {
		t.Errorf("offline GET /css/shared.css = %d %q", resp.StatusCode, body)
	}

	html := http.Header{"Accept": []string{"text/html,application/xhtml+xml"}}
	resp, body = f.do(t, http.MethodGet, "/profile.html", "", html)
	if resp.StatusCode != http.StatusOK || body != "page /home.html" {
		t.Errorf("offline GET /profile.html = %d %q, want the offline page", resp.StatusCode, body)
	}

	accept := http.Header{"Accept": []string{"application/json"}}
	resp, _ = f.do(t, http.MethodGet, "/api/messages", "", accept)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("offline GET /api/messages = %d, want 502", resp.StatusCode)
	}
}

func TestProxyWritesThrough(t *testing.T) {
	f := newFixture(t)
	f.activate(t)

	f.do(t, http.MethodGet, "/about.html", "", nil)
	before := f.hits.Load()
	resp, body := f.do(t, http.MethodGet, "/about.html", "", nil)
	if resp.StatusCode != http.StatusOK || body != "page /about.html" {
		t.Fatalf("GET /about.html = %d %q", resp.StatusCode, body)
	}
	if f.hits.Load() != before {
		t.Error("second request went to the network")
	}

	_, body = f.do(t, http.MethodGet, "/_sw/caches", "", nil)
	var inv []swcache.CacheInfo
	if err := json.Unmarshal([]byte(body), &inv); err != nil {
		t.Fatal(err)
	}
	if len(inv) != 1 || !inv[0].Current || len(inv[0].URLs) != 4 {
		t.Errorf("inventory = %+v", inv)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/_sw/activate", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("activate before install = %d, want 409", resp.StatusCode)
	}

	f.activate(t)
	_, body := f.do(t, http.MethodGet, "/_sw/status", "", nil)
	var st Status
	if err := json.Unmarshal([]byte(body), &st); err != nil {
		t.Fatal(err)
	}
	if st.State != "activated" || st.Active != "test-v1" || st.Manifest.Version != "test-v1" {
		t.Errorf("status = %+v", st)
	}

	resp, _ = f.do(t, http.MethodPost, "/_sw/reinstall", "", nil)
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("reinstall without assets = %d, want 501", resp.StatusCode)
	}
}

func TestInstallFailure(t *testing.T) {
	f := newFixture(t)
	f.origin.Close()

	resp, body := f.do(t, http.MethodPost, "/_sw/install", "", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("install with origin down = %d %s, want 502", resp.StatusCode, body)
	}
	if f.ctrl.State() != swcache.StateRedundant {
		t.Errorf("State() = %v", f.ctrl.State())
	}
}

func TestReinstallEndpoint(t *testing.T) {
	f := newFixture(t)
	assets := fstest.MapFS{"home.html": {Data: []byte("v1")}}
	f.srv.re = watch.NewReinstaller(f.ctrl, assets, "site", swcache.Manifest{URLs: []string{"/home.html"}})

	conn := f.dial(t, "/")
	resp, body := f.do(t, http.MethodPost, "/_sw/reinstall", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reinstall = %d %s", resp.StatusCode, body)
	}
	readUntil(t, conn, MsgReload)
	if !strings.HasPrefix(f.ctrl.ActiveVersion(), "site-") {
		t.Errorf("ActiveVersion() = %q", f.ctrl.ActiveVersion())
	}
}

func TestStateEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/_state?path=app.theme", "", nil)
	if resp.StatusCode != http.StatusOK || body != `"light"` {
		t.Errorf("GET app.theme = %d %s", resp.StatusCode, body)
	}
	resp, _ = f.do(t, http.MethodGet, "/_state?path=app.missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET app.missing = %d, want 404", resp.StatusCode)
	}

	resp, body = f.do(t, http.MethodPatch, "/_state", `{"app":{"theme":"dark"}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH = %d %s", resp.StatusCode, body)
	}
	if got := f.store.Get("app.theme").String(); got != "dark" {
		t.Errorf("app.theme = %q", got)
	}
	if got := f.store.Get("app.language").String(); got != "zh-CN" {
		t.Errorf("app.language = %q", got)
	}

	for _, bad := range []string{`{"app":{"theme":"purple"}}`, `{"app":`, `{"bogus":1}`} {
		resp, _ = f.do(t, http.MethodPatch, "/_state", bad, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("PATCH %s = %d, want 400", bad, resp.StatusCode)
		}
	}

	resp, body = f.do(t, http.MethodDelete, "/_state", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE = %d %s", resp.StatusCode, body)
	}
	var state store.State
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		t.Fatal(err)
	}
	if state.App.Theme != store.ThemeLight {
		t.Errorf("theme after reset = %q", state.App.Theme)
	}
}

func TestSilentPatch(t *testing.T) {
	f := newFixture(t)
	var calls int
	f.store.Subscribe(func(store.State, store.Patch) error {
		calls++
		return nil
	})

	resp, _ := f.do(t, http.MethodPatch, "/_state?silent", `{"ui":{"currentPage":"about"}}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH = %d", resp.StatusCode)
	}
	if calls != 0 {
		t.Errorf("silent patch notified %d listeners", calls)
	}
	if got := f.store.Get("ui.currentPage").String(); got != "about" {
		t.Errorf("ui.currentPage = %q", got)
	}
}

func TestPushWithoutPages(t *testing.T) {
	f := newFixture(t, WithPermission(swcache.PermissionGranted))

	resp, _ := f.do(t, http.MethodPost, "/_sw/push", `{"title":"hi"}`, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("push without pages = %d, want 503", resp.StatusCode)
	}
}

func TestPushWithoutPermission(t *testing.T) {
	f := newFixture(t)
	f.dial(t, "/")

	resp, _ := f.do(t, http.MethodPost, "/_sw/push", `{"title":"hi"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("push = %d, want 202", resp.StatusCode)
	}
}

func TestPushAndClick(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/")

	if err := conn.WriteJSON(Inbound{Type: MsgPermission, Permission: swcache.PermissionGranted}); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return f.srv.Hub().Permission() == swcache.PermissionGranted })

	resp, body := f.do(t, http.MethodPost, "/_sw/push", `{"title":"新留言","body":"你好"}`, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("push = %d %s", resp.StatusCode, body)
	}
	msg := readUntil(t, conn, MsgNotification)
	n, _ := msg["notification"].(map[string]any)
	if n["title"] != "新留言" || n["body"] != "你好" || n["icon"] != swcache.DefaultPushIcon {
		t.Errorf("notification = %v", msg)
	}

	resp, _ = f.do(t, http.MethodPost, "/_sw/push", `not json`, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed push = %d, want 400", resp.StatusCode)
	}

	id, _ := msg["id"].(string)
	resp, _ = f.do(t, http.MethodPost, "/_sw/click", `{"id":"`+id+`"}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("click = %d", resp.StatusCode)
	}
	if got := readUntil(t, conn, MsgClose); got["id"] != id {
		t.Errorf("close = %v", got)
	}
	readUntil(t, conn, MsgFocus)
}

func TestClickOpensWindow(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/about.html")

	resp, _ := f.do(t, http.MethodPost, "/_sw/click", `{"id":"n1"}`, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("click = %d", resp.StatusCode)
	}
	msg := readUntil(t, conn, MsgOpen)
	if msg["url"] != f.origin.URL+"/" {
		t.Errorf("open url = %v, want %s/", msg["url"], f.origin.URL)
	}
}

func TestNavigateUpdatesClientURL(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/about.html")

	if err := conn.WriteJSON(Inbound{Type: MsgNavigate, URL: "/"}); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool {
		list, _ := f.srv.Hub().MatchAll(context.Background(), swcache.ClientWindow)
		return len(list) == 1 && list[0].URL() == "/"
	})

	f.do(t, http.MethodPost, "/_sw/click", `{"id":"n1"}`, nil)
	readUntil(t, conn, MsgFocus)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/")

	f.store.SetOnline(false)

	change := readUntil(t, conn, string(events.AppStateChange))
	data, _ := change["data"].(map[string]any)
	changed, _ := data["changed"].(map[string]any)
	app, _ := changed["app"].(map[string]any)
	if app["online"] != false {
		t.Errorf("state change = %v", change)
	}
	readUntil(t, conn, string(events.NetworkOffline))
}

func TestPageOnlineMessage(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "/")

	if err := conn.WriteJSON(Inbound{Type: MsgOnline, Online: false}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, string(events.NetworkOffline))
	if f.store.Get("app.online").Bool() {
		t.Error("app.online still true")
	}
}

func TestHubClients(t *testing.T) {
	f := newFixture(t)
	hub := f.srv.Hub()
	ctx := context.Background()

	if _, err := hub.OpenWindow(ctx, "/"); err != swcache.ErrNoClients {
		t.Errorf("OpenWindow with no pages = %v", err)
	}

	f.dial(t, "/a")
	f.dial(t, "/b")
	eventually(t, func() bool { return hub.ClientCount() == 2 })

	list, err := hub.MatchAll(ctx, swcache.ClientAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].URL() != "/a" || list[1].URL() != "/b" {
		t.Errorf("MatchAll = %v", list)
	}
	if list[0].Type() != swcache.ClientWindow || list[0].ID() == list[1].ID() {
		t.Error("clients are not distinct windows")
	}
	if workers, _ := hub.MatchAll(ctx, swcache.ClientWorker); len(workers) != 0 {
		t.Errorf("MatchAll(worker) = %v", workers)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.activate(t)
	f.do(t, http.MethodGet, "/home.html", "", nil)

	resp, body := f.do(t, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`homepage_swcache_fetches_total{result="hit"} 1`,
		`homepage_http_requests_total{method="GET",route="/*",status="2xx"} 1`,
		`homepage_http_requests_total{method="POST",route="/_sw/activate",status="2xx"} 1`,
		`homepage_pages_connected 0`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s:\n%s", want, body)
		}
	}

	f.dial(t, "/home.html")
	_, body = f.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(body, `homepage_pages_connected 1`) {
		t.Errorf("metrics missing connected page:\n%s", body)
	}
}
