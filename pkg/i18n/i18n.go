package i18n

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/yanachan-dev/homepage/pkg/kv"
	"github.com/yanachan-dev/homepage/pkg/store"
)

// StorageKey is the storage key the chosen language is saved under.
const StorageKey = "language"

// DefaultLanguage is used when nothing else matches.
const DefaultLanguage = store.DefaultLanguage

//go:embed catalog/*.yaml
var seed embed.FS

// Params are substituted for {name} placeholders by T.
type Params map[string]any

// Translator holds the catalogs and the current language.
// It is safe for concurrent use.
type Translator struct {
	storage *kv.Storage
	store   *store.Store
	logger  *slog.Logger

	mu        sync.RWMutex
	current   string
	supported []string
	matcher   language.Matcher
	catalogs  map[string]map[string]string
}

// Option configures a Translator.
type Option func(*Translator)

// WithStorage sets where the chosen language is saved.
func WithStorage(s *kv.Storage) Option {
	return func(t *Translator) {
		t.storage = s
	}
}

// WithStore mirrors language changes into app.language.
func WithStore(st *store.Store) Option {
	return func(t *Translator) {
		t.store = st
	}
}

// WithLogger sets the logger.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Translator) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithCatalog adds or overrides entries for lang, adding lang to the
// supported languages.
func WithCatalog(lang string, entries map[string]string) Option {
	return func(t *Translator) {
		t.merge(lang, entries)
	}
}

// New creates a Translator with the built-in catalogs. The current language
// is the saved one when supported, otherwise DefaultLanguage; call Detect to
// consider the client's preferences.
func New(opts ...Option) *Translator {
	t := &Translator{
		logger:   slog.Default(),
		current:  DefaultLanguage,
		catalogs: make(map[string]map[string]string),
	}
	for _, lang := range []string{DefaultLanguage, "en"} {
		entries, err := loadSeed(lang)
		if err != nil {
			// The seed catalogs are compiled in.
			panic(err)
		}
		t.merge(lang, entries)
	}
	for _, opt := range opts {
		opt(t)
	}

	if saved := t.saved(context.Background()); saved != "" {
		t.current = saved
	}
	return t
}

func loadSeed(lang string) (map[string]string, error) {
	data, err := seed.ReadFile("catalog/" + lang + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("i18n: read catalog %s: %w", lang, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a flat YAML (or JSON) map of keys to strings.
func ParseCatalog(data []byte) (map[string]string, error) {
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("i18n: parse catalog: %w", err)
	}
	return entries, nil
}

func (t *Translator) merge(lang string, entries map[string]string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cat, ok := t.catalogs[lang]
	if !ok {
		cat = make(map[string]string, len(entries))
		t.catalogs[lang] = cat
		t.supported = append(t.supported, lang)
		tags := make([]language.Tag, 0, len(t.supported))
		for _, s := range t.supported {
			tags = append(tags, language.Make(s))
		}
		t.matcher = language.NewMatcher(tags)
	}
	for k, v := range entries {
		cat[k] = v
	}
}

// saved returns the stored language when it is supported.
func (t *Translator) saved(ctx context.Context) string {
	if t.storage == nil {
		return ""
	}
	lang := kv.Value(ctx, t.storage, StorageKey, "")
	if t.IsSupported(lang) {
		return lang
	}
	return ""
}

// IsSupported reports whether lang has a catalog.
func (t *Translator) IsSupported(lang string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Contains(t.supported, lang)
}

// Supported returns the supported languages, default first.
func (t *Translator) Supported() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.supported)
}

// Language returns the current language.
func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Detect chooses the current language: the saved one when supported, else
// the best match for the client's preferences, else DefaultLanguage. Each
// accept value is a tag or an Accept-Language header. It does not save the
// result.
func (t *Translator) Detect(ctx context.Context, accept ...string) string {
	lang := t.saved(ctx)
	if lang == "" {
		lang = t.match(accept)
	}

	t.mu.Lock()
	t.current = lang
	t.mu.Unlock()
	return lang
}

func (t *Translator) match(accept []string) string {
	var prefs []language.Tag
	for _, a := range accept {
		tags, _, err := language.ParseAcceptLanguage(a)
		if err != nil {
			t.logger.Debug("ignoring malformed language preference", "value", a, "error", err)
			continue
		}
		prefs = append(prefs, tags...)
	}
	if len(prefs) == 0 {
		return DefaultLanguage
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	_, idx, conf := t.matcher.Match(prefs...)
	if conf == language.No {
		return DefaultLanguage
	}
	return t.supported[idx]
}

// SetLanguage switches to lang, saves it and updates app.language. It
// reports false for an unsupported language.
func (t *Translator) SetLanguage(ctx context.Context, lang string) bool {
	if !t.IsSupported(lang) {
		return false
	}

	t.mu.Lock()
	t.current = lang
	t.mu.Unlock()

	if t.storage != nil {
		t.storage.Set(ctx, StorageKey, lang)
	}
	if t.store != nil {
		t.store.SetApp(store.AppPatch{Language: store.Set(lang)})
	}
	return true
}

// T looks key up in the current language, then the default language, and
// substitutes params. An unknown key is returned as is.
func (t *Translator) T(key string, params Params) string {
	t.mu.RLock()
	text, ok := t.catalogs[t.current][key]
	if !ok {
		text, ok = t.catalogs[DefaultLanguage][key]
	}
	t.mu.RUnlock()
	if !ok {
		text = key
	}

	if len(params) == 0 {
		return text
	}
	// One pass over the template: substituted values are never scanned for
	// placeholders themselves.
	pairs := make([]string, 0, 2*len(params))
	for _, name := range slices.Sorted(maps.Keys(params)) {
		pairs = append(pairs, "{"+name+"}", fmt.Sprint(params[name]))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// FormatNumber formats n with the current language's digit grouping.
func (t *Translator) FormatNumber(n any) string {
	p := message.NewPrinter(language.Make(t.Language()))
	return p.Sprintf("%v", n)
}

// FormatDate formats the date part of tm in the current language.
func (t *Translator) FormatDate(tm time.Time) string {
	if strings.HasPrefix(t.Language(), "zh") {
		return fmt.Sprintf("%d年%d月%d日", tm.Year(), int(tm.Month()), tm.Day())
	}
	return tm.Format("January 2, 2006")
}

// FormatTime formats the time of day of tm as hours and minutes.
func (t *Translator) FormatTime(tm time.Time) string {
	return tm.Format("15:04")
}
