package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yanachan-dev/homepage/internal/errors"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", cfg.Addr, DefaultAddr)
	}
	if cfg.Language != "zh-CN" {
		t.Errorf("Language = %q, want zh-CN", cfg.Language)
	}
	if cfg.Cache.Version != swcache.DefaultVersion {
		t.Errorf("Cache.Version = %q, want %q", cfg.Cache.Version, swcache.DefaultVersion)
	}
	if cfg.Cache.OfflinePage != "/home.html" {
		t.Errorf("Cache.OfflinePage = %q", cfg.Cache.OfflinePage)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(dir); !errors.HasCode(err, "E140") {
		t.Fatalf("Load(empty dir) error = %v, want E140", err)
	}

	writeFile(t, dir, "homepage.yaml", `
origin: https://yanachan.example
addr: 0.0.0.0:8080
cache:
  version: v2
  urls: ["/", "/home.html"]
  watch: true
storage:
  driver: SQLite
  dsn: state.db
log:
  format: json
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Origin != "https://yanachan.example" {
		t.Errorf("Origin = %q", cfg.Origin)
	}
	if cfg.Addr != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Cache.Version != "v2" || len(cfg.Cache.URLs) != 2 || !cfg.Cache.Watch {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if got := cfg.StorageDSN(); got != filepath.Join(dir, "state.db") {
		t.Errorf("StorageDSN() = %q", got)
	}
	// Unset values keep their defaults.
	if cfg.Log.Level != "info" || cfg.Cache.OfflinePage != "/home.html" {
		t.Errorf("defaults lost: log=%+v cache=%+v", cfg.Log, cfg.Cache)
	}
	if cfg.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "homepage.json", `{"origin": "http://localhost:5000", "assets": "static"}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Origin != "http://localhost:5000" {
		t.Errorf("Origin = %q", cfg.Origin)
	}
	if cfg.AssetsPath() != filepath.Join(dir, "static") {
		t.Errorf("AssetsPath() = %q", cfg.AssetsPath())
	}
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "homepage.json", `{"origin": `)

	_, err := LoadFile(path)
	if !errors.HasCode(err, "E100") {
		t.Errorf("LoadFile error = %v, want E100", err)
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv("HOMEPAGE_ORIGIN", "https://env.example")
	dir := t.TempDir()

	cfg, err := LoadOrDefault(dir)
	if err != nil {
		t.Fatalf("LoadOrDefault error: %v", err)
	}
	if cfg.Origin != "https://env.example" {
		t.Errorf("Origin = %q", cfg.Origin)
	}
	if cfg.Path() != filepath.Join(dir, "homepage.yaml") {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := New()
	cfg.Origin = "https://file.example"
	cfg.Storage.Driver = "sqlite"

	err := cfg.ApplyEnv(map[string]string{
		"HOMEPAGE_ADDR":           ":9000",
		"HOMEPAGE_CACHE_VERSION":  "env-v3",
		"HOMEPAGE_CACHE_URLS":     "/,/a.html",
		"HOMEPAGE_CACHE_WATCH":    "true",
		"HOMEPAGE_STORAGE_DRIVER": "Redis",
		"HOMEPAGE_REDIS_ADDR":     "localhost:6379",
		"HOMEPAGE_REDIS_DB":       "2",
		"HOMEPAGE_S3_BUCKET":      "homepage-state",
		"HOMEPAGE_LOG_LEVEL":      "debug",
	})
	if err != nil {
		t.Fatalf("ApplyEnv error: %v", err)
	}

	if cfg.Origin != "https://file.example" {
		t.Errorf("unset variable changed Origin to %q", cfg.Origin)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Cache.Version != "env-v3" || strings.Join(cfg.Cache.URLs, " ") != "/ /a.html" || !cfg.Cache.Watch {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Storage.Driver != "redis" || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.DB != 2 {
		t.Errorf("storage = %+v redis = %+v", cfg.Storage, cfg.Redis)
	}
	if cfg.S3.Bucket != "homepage-state" {
		t.Errorf("S3.Bucket = %q", cfg.S3.Bucket)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v", cfg.Log.SlogLevel())
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	cfg := New()
	err := cfg.ApplyEnv(map[string]string{"HOMEPAGE_REDIS_DB": "two"})
	if !errors.HasCode(err, "E105") {
		t.Errorf("ApplyEnv error = %v, want E105", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := New()
		cfg.Origin = "https://yanachan.example"
		return cfg
	}

	tests := []struct {
		name   string
		modify func(*Config)
		code   string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing origin", func(c *Config) { c.Origin = "" }, "E101"},
		{"relative origin", func(c *Config) { c.Origin = "/site" }, "E106"},
		{"ftp origin", func(c *Config) { c.Origin = "ftp://host" }, "E106"},
		{"bad addr", func(c *Config) { c.Addr = "localhost" }, "E102"},
		{"port out of range", func(c *Config) { c.Addr = ":70000" }, "E102"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "etcd" }, "E103"},
		{"sqlite without dsn", func(c *Config) { c.Storage.Driver = "sqlite" }, "E101"},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Driver = "postgres"
			c.Storage.DSN = "postgres://localhost/homepage"
		}, ""},
		{"redis without addr", func(c *Config) { c.Storage.Driver = "redis" }, "E101"},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }, "E101"},
		{"bad debounce", func(c *Config) { c.Cache.Debounce = "soon" }, "E101"},
		{"bad url", func(c *Config) { c.Cache.URLs = []string{"home.html"} }, "E104"},
		{"derived version", func(c *Config) { c.Cache.Version = "" }, ""},
		{"missing manifest file", func(c *Config) { c.Cache.Manifest = "/nonexistent/manifest.json" }, "E104"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.code == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Validate() = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestManifest(t *testing.T) {
	cfg := New()
	m, err := cfg.Manifest()
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != swcache.DefaultVersion || len(m.URLs) != len(swcache.DefaultManifest().URLs) {
		t.Errorf("Manifest() = %+v", m)
	}

	dir := t.TempDir()
	writeFile(t, dir, "manifest.json", `{"version": "file-v9", "urls": ["/"]}`)
	cfg.configPath = filepath.Join(dir, "homepage.yaml")
	cfg.Cache.Manifest = "manifest.json"

	m, err = cfg.Manifest()
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "file-v9" || len(m.URLs) != 1 {
		t.Errorf("Manifest() from file = %+v", m)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"homepage.yaml", "homepage.json"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := New()
			cfg.Origin = "https://yanachan.example"
			cfg.Cache.Watch = true

			if err := cfg.SaveTo(filepath.Join(dir, name)); err != nil {
				t.Fatalf("SaveTo error: %v", err)
			}

			loaded, err := Load(dir)
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			if loaded.Origin != cfg.Origin || !loaded.Cache.Watch || loaded.Addr != cfg.Addr {
				t.Errorf("loaded = %+v", loaded)
			}
		})
	}
}

func TestSaveWithoutPath(t *testing.T) {
	if err := New().Save(); err == nil {
		t.Error("Save() without a path succeeded")
	}
}

func TestDebounceDuration(t *testing.T) {
	cfg := New()
	if got := cfg.DebounceDuration(); got != 300*time.Millisecond {
		t.Errorf("DebounceDuration() = %v", got)
	}
	cfg.Cache.Debounce = "bogus"
	if got := cfg.DebounceDuration(); got != 300*time.Millisecond {
		t.Errorf("DebounceDuration() with bad value = %v", got)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	LogConfig{Level: "warn", Format: "json"}.Logger(&buf).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}

	LogConfig{Level: "warn", Format: "json"}.Logger(&buf).Warn("shown", "key", "appState")
	if !strings.Contains(buf.String(), `"key":"appState"`) {
		t.Errorf("json output = %q", buf.String())
	}

	if (LogConfig{Level: "loud"}).SlogLevel() != slog.LevelInfo {
		t.Error("unknown level is not info")
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "homepage.yaml", "origin: https://yanachan.example\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	got, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot error: %v", err)
	}
	if got != root {
		t.Errorf("FindProjectRoot = %q, want %q", got, root)
	}
	if !Exists(root) || Exists(nested) {
		t.Error("Exists mismatch")
	}
}
