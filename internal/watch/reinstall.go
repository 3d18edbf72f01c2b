package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/yanachan-dev/homepage/pkg/swcache"
)

// DefaultPrefix starts every derived cache version.
const DefaultPrefix = "yanchan"

// Reinstaller moves a controller to the cache version derived from the
// current asset contents.
type Reinstaller struct {
	ctrl   *swcache.Controller
	fsys   fs.FS
	prefix string
	urls   []string
	logger *slog.Logger

	mu sync.Mutex
}

// NewReinstaller creates a Reinstaller precaching the URLs of base, whose
// contents are read from fsys.
func NewReinstaller(ctrl *swcache.Controller, fsys fs.FS, prefix string, base swcache.Manifest) *Reinstaller {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Reinstaller{
		ctrl:   ctrl,
		fsys:   fsys,
		prefix: prefix,
		urls:   base.Clone().URLs,
		logger: slog.Default(),
	}
}

// SetLogger replaces the logger.
func (r *Reinstaller) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Version returns the version the current assets hash to.
func (r *Reinstaller) Version() (string, error) {
	return swcache.ManifestVersion(r.fsys, r.prefix, r.urls)
}

// Reinstall installs and activates the derived version unless it is already
// the controller's manifest and active. It reports whether a new version
// was activated. On failure the previously active version keeps serving.
func (r *Reinstaller) Reinstall(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	version, err := r.Version()
	if err != nil {
		return false, err
	}
	if version == r.ctrl.ActiveVersion() {
		return false, nil
	}

	r.ctrl.Update(swcache.Manifest{Version: version, URLs: r.urls})
	if r.ctrl.State() != swcache.StateInstalled {
		if err := r.ctrl.Install(ctx); err != nil {
			return false, fmt.Errorf("watch: reinstall %s: %w", version, err)
		}
	}
	if err := r.ctrl.Activate(ctx); err != nil {
		return false, fmt.Errorf("watch: reinstall %s: %w", version, err)
	}
	r.logger.Info("assets changed, cache reinstalled", "cache", version)
	return true, nil
}
