package swcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
)

// DefaultVersion names the cache generation when no manifest is given.
const DefaultVersion = "yanchan-v1.0.0"

// DefaultOfflinePage is served to HTML requests when the network is down.
const DefaultOfflinePage = "/home.html"

// Manifest is the set of paths precached on install, together with the
// version tag that names their cache. Changing the paths requires a new
// version.
//
// The JSON form is:
//
//	{
//	  "version": "yanchan-v1.0.0",
//	  "urls": ["/", "/home.html", "/css/shared.css"]
//	}
type Manifest struct {
	Version string   `json:"version"`
	URLs    []string `json:"urls"`
}

// DefaultManifest returns the site's shell pages, styles and scripts.
func DefaultManifest() Manifest {
	return Manifest{
		Version: DefaultVersion,
		URLs: []string{
			"/",
			"/home.html",
			"/login.html",
			"/register.html",
			"/profile.html",
			"/css/shared.css",
			"/css/home.css",
			"/css/register.css",
			"/css/optimized.css",
			"/js/utils.js",
			"/js/home.js",
		},
	}
}

// LoadManifest reads a manifest file.
//
// If the file does not exist or cannot be read, an error is returned.
// In development, you may want to ignore the error and use DefaultManifest.
func LoadManifest(file string) (Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Manifest{}, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("swcache: parse manifest %s: %w", file, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, fmt.Errorf("swcache: manifest %s: %w", file, err)
	}
	return m, nil
}

// Validate reports a missing version or a path that is not origin-relative.
func (m Manifest) Validate() error {
	if m.Version == "" {
		return errors.New("version is required")
	}
	for _, u := range m.URLs {
		if !strings.HasPrefix(u, "/") || strings.HasPrefix(u, "//") {
			return fmt.Errorf("url %q must be an absolute path", u)
		}
	}
	return nil
}

// Has returns true if the manifest precaches p.
func (m Manifest) Has(p string) bool {
	return slices.Contains(m.URLs, p)
}

// Clone returns a copy of m that does not share its URL list.
func (m Manifest) Clone() Manifest {
	m.URLs = slices.Clone(m.URLs)
	return m
}

// ManifestVersion derives a version tag from the bytes of every manifest
// entry found in fsys, as "<prefix>-<12 hex digits>". "/" is read from
// index.html. Missing files hash as empty, so adding one changes the tag.
func ManifestVersion(fsys fs.FS, prefix string, urls []string) (string, error) {
	h := sha256.New()
	for _, u := range urls {
		name := strings.TrimPrefix(path.Clean(u), "/")
		if name == "" || strings.HasSuffix(u, "/") {
			name = path.Join(name, "index.html")
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("swcache: hash %s: %w", u, err)
		}
		fmt.Fprintf(h, "%s\x00%d\x00", u, len(data))
		h.Write(data)
	}
	return prefix + "-" + hex.EncodeToString(h.Sum(nil))[:12], nil
}
