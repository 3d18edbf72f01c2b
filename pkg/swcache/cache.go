package swcache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	// ErrNotCached is returned by Match when no entry matches the request.
	ErrNotCached = errors.New("swcache: not cached")

	// ErrInstallFailed wraps the first failure of an install step.
	ErrInstallFailed = errors.New("swcache: install failed")

	// ErrInvalidState is returned when a lifecycle step runs out of order.
	ErrInvalidState = errors.New("swcache: invalid lifecycle state")
)

// CacheStorage holds named caches.
type CacheStorage interface {
	// Open returns the cache called name, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)

	// Keys lists cache names in creation order.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes the named cache and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Match looks the request up in every cache, oldest first.
	Match(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Cache is a set of stored responses keyed by request URL.
type Cache interface {
	Match(ctx context.Context, req *http.Request) (*http.Response, error)
	Put(ctx context.Context, e Entry) error
	// AddAll stores every entry or none of them.
	AddAll(ctx context.Context, entries []Entry) error
	Delete(ctx context.Context, req *http.Request) (bool, error)
	Keys(ctx context.Context) ([]string, error)
}

// Entry is a stored response.
type Entry struct {
	URL      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Key returns the cache key for u: the absolute URL without its fragment.
func Key(u *url.URL) string {
	k := *u
	k.Fragment = ""
	k.RawFragment = ""
	return k.String()
}

// matchable reports whether a request can be answered from a cache.
// Only GET requests are stored.
func matchable(req *http.Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}

// NewEntry reads resp's body into an Entry keyed by req and replaces the body
// so resp can still be returned to the caller.
func NewEntry(req *http.Request, resp *http.Response, now time.Time) (Entry, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return Entry{}, fmt.Errorf("swcache: read body of %s: %w", req.URL, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))

	return Entry{
		URL:      Key(req.URL),
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: now,
	}, nil
}

// Response builds a fresh response for req from the entry.
func (e Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Content-Length", strconv.Itoa(len(e.Body)))

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status)),
		StatusCode:    e.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
