package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of a file change.
type Op int

const (
	OpCreated Op = iota
	OpModified
	OpRemoved
	OpRenamed
)

func (o Op) String() string {
	switch o {
	case OpCreated:
		return "created"
	case OpModified:
		return "modified"
	case OpRemoved:
		return "removed"
	case OpRenamed:
		return "renamed"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Change is one changed path in a batch. A path appears once per batch with
// its latest operation.
type Change struct {
	Path string
	Op   Op
}

// Config configures the file watcher.
type Config struct {
	// Paths are the directories to watch, recursively.
	Paths []string

	// Ignore patterns to skip. Default: DefaultIgnore.
	Ignore []string

	// Debounce is how long the watcher waits after the last change before
	// reporting a batch. Default: 100ms.
	Debounce time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Watcher reports debounced batches of file changes.
type Watcher struct {
	config Config
	fsw    *fsnotify.Watcher
	logger *slog.Logger

	mu       sync.Mutex
	onChange func([]Change)
	running  bool
}

// ErrRunning is returned by Run when the watcher is already running.
var ErrRunning = errors.New("watch: already running")

// New creates a watcher over config.Paths. Directories created later are
// watched as they appear.
func New(config Config) (*Watcher, error) {
	if config.Debounce <= 0 {
		config.Debounce = 100 * time.Millisecond
	}
	if len(config.Ignore) == 0 {
		config.Ignore = DefaultIgnore
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{config: config, fsw: fsw, logger: logger}

	for _, p := range config.Paths {
		if err := w.addRecursive(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && shouldIgnore(w.config.Ignore, p) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch: add %s: %w", p, err)
		}
		return nil
	})
}

// OnChange sets the callback for change batches. It runs on the Run
// goroutine.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Run reports changes until ctx is done, then closes the watcher. It
// returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.fsw.Close()
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	timer := time.NewTimer(w.config.Debounce)
	timer.Stop()
	defer timer.Stop()

	var (
		pending []Change
		index   = make(map[string]int)
	)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			c, ok := w.convert(event)
			if !ok {
				continue
			}
			if i, seen := index[c.Path]; seen {
				pending[i].Op = c.Op
			} else {
				index[c.Path] = len(pending)
				pending = append(pending, c)
			}
			timer.Reset(w.config.Debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := pending
			pending = nil
			clear(index)
			w.report(batch)
		}
	}
}

func (w *Watcher) convert(event fsnotify.Event) (Change, bool) {
	if shouldIgnore(w.config.Ignore, event.Name) {
		return Change{}, false
	}

	var op Op
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreated
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
			}
		}
	case event.Has(fsnotify.Write):
		op = OpModified
	case event.Has(fsnotify.Remove):
		op = OpRemoved
	case event.Has(fsnotify.Rename):
		op = OpRenamed
	default:
		// Chmod only.
		return Change{}, false
	}
	return Change{Path: event.Name, Op: op}, true
}

func (w *Watcher) report(batch []Change) {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn == nil {
		return
	}
	w.logger.Debug("assets changed", "changes", len(batch), "first", batch[0].Path)
	fn(batch)
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Close stops watching. Run returns once it notices.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
