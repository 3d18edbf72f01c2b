package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/yanachan-dev/homepage/internal/errors"
	"github.com/yanachan-dev/homepage/pkg/store"
	"github.com/yanachan-dev/homepage/pkg/swcache"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "HOMEPAGE_"

	// DefaultAddr is the default listen address of the dev server.
	DefaultAddr = "localhost:3000"

	// DefaultAssets is the default static asset directory.
	DefaultAssets = "public"

	// DefaultDebounce is the default delay before a changed asset
	// directory triggers a reinstall.
	DefaultDebounce = "300ms"
)

// FileNames are the configuration file names searched, in order.
var FileNames = []string{"homepage.yaml", "homepage.yml", "homepage.json"}

// Drivers are the supported storage drivers.
var Drivers = []string{"memory", "sqlite", "postgres", "redis", "s3"}

// Config is the complete server configuration.
type Config struct {
	// Origin is the site the dev server proxies and caches.
	Origin string `json:"origin,omitempty" yaml:"origin,omitempty" env:"ORIGIN"`

	// Addr is the dev server listen address.
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" env:"ADDR"`

	// Assets is the local asset directory watched for changes.
	Assets string `json:"assets,omitempty" yaml:"assets,omitempty" env:"ASSETS"`

	// Language is the fallback UI language.
	Language string `json:"language,omitempty" yaml:"language,omitempty" env:"LANGUAGE"`

	Cache   CacheConfig   `json:"cache" yaml:"cache" envPrefix:"CACHE_"`
	Storage StorageConfig `json:"storage" yaml:"storage" envPrefix:"STORAGE_"`
	Redis   RedisConfig   `json:"redis,omitempty" yaml:"redis,omitempty" envPrefix:"REDIS_"`
	S3      S3Config      `json:"s3,omitempty" yaml:"s3,omitempty" envPrefix:"S3_"`
	Log     LogConfig     `json:"log" yaml:"log" envPrefix:"LOG_"`

	configPath string
}

// CacheConfig configures the response cache controller.
type CacheConfig struct {
	// Version names the cache generation. Empty derives it from the
	// asset contents.
	Version string `json:"version,omitempty" yaml:"version,omitempty" env:"VERSION"`

	// Manifest is a JSON manifest file replacing Version and URLs.
	Manifest string `json:"manifest,omitempty" yaml:"manifest,omitempty" env:"MANIFEST"`

	// URLs are the precached paths.
	URLs []string `json:"urls,omitempty" yaml:"urls,omitempty" env:"URLS" envSeparator:","`

	// OfflinePage is served to HTML requests while offline.
	OfflinePage string `json:"offlinePage,omitempty" yaml:"offlinePage,omitempty" env:"OFFLINE_PAGE"`

	// Watch reinstalls the cache when the asset directory changes.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty" env:"WATCH"`

	// Debounce is how long the watcher waits for changes to settle
	// (e.g., "300ms").
	Debounce string `json:"debounce,omitempty" yaml:"debounce,omitempty" env:"DEBOUNCE"`
}

// StorageConfig selects where state and cached responses are kept.
type StorageConfig struct {
	// Driver is one of Drivers.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" env:"DRIVER"`

	// DSN is the data source name for sqlite and postgres.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" env:"DSN"`

	// Table names the key-value table for SQL drivers.
	Table string `json:"table,omitempty" yaml:"table,omitempty" env:"TABLE"`
}

// RedisConfig configures the redis storage driver.
type RedisConfig struct {
	Addr     string `json:"addr,omitempty" yaml:"addr,omitempty" env:"ADDR"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" env:"PASSWORD"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty" env:"DB"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" env:"PREFIX"`
}

// S3Config configures the s3 storage driver. Credentials and region come
// from the usual AWS environment.
type S3Config struct {
	Bucket string `json:"bucket,omitempty" yaml:"bucket,omitempty" env:"BUCKET"`
	Prefix string `json:"prefix,omitempty" yaml:"prefix,omitempty" env:"PREFIX"`
	Region string `json:"region,omitempty" yaml:"region,omitempty" env:"REGION"`
}

// LogConfig configures the server logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty" env:"LEVEL"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty" env:"FORMAT"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Addr:     DefaultAddr,
		Assets:   DefaultAssets,
		Language: store.DefaultLanguage,
		Cache: CacheConfig{
			Version:     swcache.DefaultVersion,
			OfflinePage: swcache.DefaultOfflinePage,
			Debounce:    DefaultDebounce,
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from the first of FileNames found in dir and
// applies environment overrides.
func Load(dir string) (*Config, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E140").
		WithSuggestion("Run 'homepage init' to create homepage.yaml, or set HOMEPAGE_ORIGIN")
}

// LoadOrDefault is like Load but falls back to defaults plus environment
// overrides when dir has no configuration file.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if err == nil || !errors.HasCode(err, "E140") {
		return cfg, err
	}

	cfg = New()
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	cfg.configPath = filepath.Join(dir, FileNames[0])
	return cfg, nil
}

// LoadFile reads configuration from the specified file path. YAML is used
// unless the file ends in .json.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E140").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E100").Wrap(err)
	}

	cfg := New()
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New("E100").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error())
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// ApplyEnv overrides fields from HOMEPAGE_* variables. A nil environ reads
// the process environment.
func (c *Config) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return errors.New("E105").Wrap(err)
	}
	c.applyDefaults()
	return nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as JSON when path ends in .json
// and YAML otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.New("E100").Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E100").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.Assets == "" {
		c.Assets = DefaultAssets
	}
	if c.Language == "" {
		c.Language = store.DefaultLanguage
	}
	if c.Cache.OfflinePage == "" {
		c.Cache.OfflinePage = swcache.DefaultOfflinePage
	}
	if c.Cache.Debounce == "" {
		c.Cache.Debounce = DefaultDebounce
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return errors.New("E101").
			WithDetail("origin is not set").
			WithSuggestion("Set origin in homepage.yaml or HOMEPAGE_ORIGIN")
	}
	if _, err := c.OriginURL(); err != nil {
		return err
	}

	_, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return errors.New("E102").Wrap(err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return errors.New("E102").WithDetail("Port must be between 0 and 65535, got " + port)
	}

	if !slices.Contains(Drivers, c.Storage.Driver) {
		return errors.New("E103").
			WithDetail(`Unknown storage driver "` + c.Storage.Driver + `"`).
			WithSuggestion("Use one of " + strings.Join(Drivers, ", "))
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return errors.New("E101").WithDetail("storage.dsn is required for " + c.Storage.Driver)
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("E101").WithDetail("redis.addr is required for the redis driver")
		}
	case "s3":
		if c.S3.Bucket == "" {
			return errors.New("E101").WithDetail("s3.bucket is required for the s3 driver")
		}
	}

	if _, err := time.ParseDuration(c.Cache.Debounce); err != nil {
		return errors.New("E101").WithDetail("cache.debounce: " + err.Error())
	}
	if _, err := c.Manifest(); err != nil {
		return err
	}
	return nil
}

// OriginURL parses Origin.
func (c *Config) OriginURL() (*url.URL, error) {
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, errors.New("E106").Wrap(err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.New("E106").WithDetail(`"` + c.Origin + `" is not an absolute http or https URL`)
	}
	return u, nil
}

// Manifest returns the precache manifest: the manifest file when set,
// otherwise the default paths overridden by Cache.URLs and Cache.Version.
// An empty version is left for the caller to derive from the assets.
func (c *Config) Manifest() (swcache.Manifest, error) {
	if c.Cache.Manifest != "" {
		m, err := swcache.LoadManifest(c.resolve(c.Cache.Manifest))
		if err != nil {
			return swcache.Manifest{}, errors.New("E104").Wrap(err)
		}
		return m, nil
	}

	m := swcache.DefaultManifest()
	m.Version = c.Cache.Version
	if len(c.Cache.URLs) > 0 {
		m.URLs = slices.Clone(c.Cache.URLs)
	}
	if m.Version == "" {
		// The tag is derived from the assets later; check the paths only.
		paths := m
		paths.Version = "pending"
		if err := paths.Validate(); err != nil {
			return swcache.Manifest{}, errors.New("E104").Wrap(err)
		}
		return m, nil
	}
	if err := m.Validate(); err != nil {
		return swcache.Manifest{}, errors.New("E104").Wrap(err)
	}
	return m, nil
}

// DebounceDuration returns Cache.Debounce parsed, or the default when it is
// malformed.
func (c *Config) DebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Cache.Debounce)
	if err != nil {
		d, _ = time.ParseDuration(DefaultDebounce)
	}
	return d
}

// AssetsPath returns the absolute path to the asset directory.
func (c *Config) AssetsPath() string {
	return c.resolve(c.Assets)
}

// StorageDSN returns the DSN, resolved against the config directory for a
// relative sqlite file.
func (c *Config) StorageDSN() string {
	if c.Storage.Driver == "sqlite" && !strings.Contains(c.Storage.DSN, ":") {
		return c.resolve(c.Storage.DSN)
	}
	return c.Storage.DSN
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}

// SlogLevel returns the configured log level, or info when it is unknown.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger builds a logger writing to w in the configured format.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	for _, name := range FileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up directories to find the project root.
// Returns the directory containing a configuration file, or an error if not
// found.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E140").
				WithDetail("No configuration file found in " + startDir + " or any parent directory").
				WithSuggestion("Run 'homepage init' to create one")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads configuration from the project root containing
// the working directory, or defaults when there is none.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	root, err := FindProjectRoot(wd)
	if err != nil {
		return LoadOrDefault(wd)
	}
	return Load(root)
}
