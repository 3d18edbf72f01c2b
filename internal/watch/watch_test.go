package watch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/yanachan-dev/homepage/pkg/swcache"
)

func TestShouldIgnore(t *testing.T) {
	tests := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{DefaultIgnore, filepath.Join("public", ".git", "HEAD"), true},
		{DefaultIgnore, filepath.Join("public", "css", "home.css.swp"), true},
		{DefaultIgnore, filepath.Join("public", "home.html~"), true},
		{DefaultIgnore, filepath.Join("public", "home.html"), false},
		{[]string{"tmp"}, filepath.Join("foo", "tmp", "bar.css"), true},
		{[]string{"tmp"}, filepath.Join("foo", "attempt.css"), false},
		{[]string{"images/raw"}, filepath.Join("public", "images", "raw", "a.png"), true},
		{[]string{"images/raw"}, filepath.Join("public", "images", "a.png"), false},
		{[]string{"public/*.map"}, "public/home.js.map", true},
		{[]string{" ", ""}, "public/home.js", false},
	}

	for _, tt := range tests {
		if got := shouldIgnore(tt.patterns, tt.path); got != tt.want {
			t.Errorf("shouldIgnore(%v, %q) = %v, want %v", tt.patterns, tt.path, got, tt.want)
		}
	}
}

func TestOpString(t *testing.T) {
	for op, want := range map[Op]string{
		OpCreated:  "created",
		OpModified: "modified",
		OpRemoved:  "removed",
		OpRenamed:  "renamed",
		Op(9):      "Op(9)",
	} {
		if got := op.String(); got != want {
			t.Errorf("Op(%d).String() = %q, want %q", int(op), got, want)
		}
	}
}

func startWatcher(t *testing.T, dir string) (*Watcher, <-chan []Change) {
	t.Helper()
	w, err := New(Config{Paths: []string{dir}, Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	batches := make(chan []Change, 10)
	w.OnChange(func(c []Change) { batches <- c })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	deadline := time.Now().Add(time.Second)
	for !w.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return w, batches
}

func waitBatch(t *testing.T, batches <-chan []Change) []Change {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for changes")
		return nil
	}
}

func TestWatcherDebouncesBurst(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	path := filepath.Join(dir, "home.html")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0644); err != nil {
			t.Fatal(err)
		}
	}

	batch := waitBatch(t, batches)
	if len(batch) != 1 || batch[0].Path != path {
		t.Fatalf("batch = %+v, want one change for %s", batch, path)
	}
}

func TestWatcherSkipsIgnored(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "draft.swp"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "home.css"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, c := range waitBatch(t, batches) {
		if strings.HasSuffix(c.Path, ".swp") {
			t.Errorf("ignored file reported: %+v", c)
		}
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	dir := t.TempDir()
	_, batches := startWatcher(t, dir)

	sub := filepath.Join(dir, "css")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	waitBatch(t, batches)

	path := filepath.Join(sub, "shared.css")
	if err := os.WriteFile(path, []byte("body{}"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, c := range waitBatch(t, batches) {
		if c.Path == path {
			return
		}
	}
	t.Errorf("no change reported for %s", path)
}

func TestRunTwice(t *testing.T) {
	w, _ := startWatcher(t, t.TempDir())
	if err := w.Run(context.Background()); err != ErrRunning {
		t.Errorf("second Run = %v, want ErrRunning", err)
	}
}

func TestNewMissingPath(t *testing.T) {
	if _, err := New(Config{Paths: []string{filepath.Join(t.TempDir(), "missing")}}); err == nil {
		t.Error("New with a missing path succeeded")
	}
}

// okNetwork answers every request with 200 and the request path.
type okNetwork struct {
	calls atomic.Int64
}

func (n *okNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	n.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader(req.URL.Path)),
		Request:    req,
	}, nil
}

func TestReinstall(t *testing.T) {
	ctx := context.Background()
	origin := &url.URL{Scheme: "https", Host: "yanachan.example"}
	network := &okNetwork{}
	ctrl := swcache.New(origin, swcache.WithTransport(network))

	assets := fstest.MapFS{
		"index.html": {Data: []byte("<h1>home</h1>")},
		"home.html":  {Data: []byte("<h1>home</h1>")},
	}
	base := swcache.Manifest{Version: "ignored", URLs: []string{"/", "/home.html"}}
	r := NewReinstaller(ctrl, assets, "", base)

	changed, err := r.Reinstall(ctx)
	if err != nil || !changed {
		t.Fatalf("first Reinstall = %v, %v", changed, err)
	}
	first := ctrl.ActiveVersion()
	if !strings.HasPrefix(first, DefaultPrefix+"-") {
		t.Errorf("ActiveVersion() = %q", first)
	}
	if ctrl.State() != swcache.StateActivated {
		t.Errorf("State() = %v", ctrl.State())
	}

	changed, err = r.Reinstall(ctx)
	if err != nil || changed {
		t.Errorf("unchanged Reinstall = %v, %v", changed, err)
	}
	if got := network.calls.Load(); got != 2 {
		t.Errorf("network calls = %d, want 2", got)
	}

	assets["home.html"] = &fstest.MapFile{Data: []byte("<h1>new home</h1>")}
	changed, err = r.Reinstall(ctx)
	if err != nil || !changed {
		t.Fatalf("Reinstall after change = %v, %v", changed, err)
	}
	second := ctrl.ActiveVersion()
	if second == first {
		t.Errorf("version did not change: %q", second)
	}

	names, err := ctrl.Storage().Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != second {
		t.Errorf("caches = %v, want only %q", names, second)
	}
}

// downNetwork fails every request.
type downNetwork struct{}

func (downNetwork) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, io.ErrUnexpectedEOF
}

func TestReinstallFailureKeepsServing(t *testing.T) {
	ctx := context.Background()
	origin := &url.URL{Scheme: "https", Host: "yanachan.example"}
	var rt http.RoundTripper = &okNetwork{}
	ctrl := swcache.New(origin, swcache.WithTransport(roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return rt.RoundTrip(req)
	})))

	assets := fstest.MapFS{"home.html": {Data: []byte("v1")}}
	r := NewReinstaller(ctrl, assets, "site", swcache.Manifest{URLs: []string{"/home.html"}})
	if _, err := r.Reinstall(ctx); err != nil {
		t.Fatal(err)
	}
	active := ctrl.ActiveVersion()

	rt = downNetwork{}
	assets["home.html"] = &fstest.MapFile{Data: []byte("v2")}
	if _, err := r.Reinstall(ctx); err == nil {
		t.Fatal("Reinstall with the network down succeeded")
	}
	if ctrl.ActiveVersion() != active {
		t.Errorf("ActiveVersion() = %q, want %q", ctrl.ActiveVersion(), active)
	}
	if ctrl.State() != swcache.StateRedundant {
		t.Errorf("State() = %v, want redundant", ctrl.State())
	}

	rt = &okNetwork{}
	if changed, err := r.Reinstall(ctx); err != nil || !changed {
		t.Errorf("retry = %v, %v", changed, err)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
