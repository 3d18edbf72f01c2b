package swcache

import (
	"context"
	"net/http"
	"slices"
	"sync"
)

// MemoryStorage is an in-memory CacheStorage.
// It is safe for concurrent use.
type MemoryStorage struct {
	mu     sync.RWMutex
	names  []string
	caches map[string]*MemoryCache
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		caches: make(map[string]*MemoryCache),
	}
}

func (s *MemoryStorage) Open(_ context.Context, name string) (Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.caches[name]; ok {
		return c, nil
	}
	c := NewMemoryCache()
	s.caches[name] = c
	s.names = append(s.names, name)
	return c, nil
}

func (s *MemoryStorage) Keys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.names), nil
}

func (s *MemoryStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
	return true, nil
}

func (s *MemoryStorage) Match(ctx context.Context, req *http.Request) (*http.Response, error) {
	s.mu.RLock()
	caches := make([]*MemoryCache, 0, len(s.names))
	for _, name := range s.names {
		caches = append(caches, s.caches[name])
	}
	s.mu.RUnlock()

	for _, c := range caches {
		if resp, err := c.Match(ctx, req); err == nil {
			return resp, nil
		}
	}
	return nil, ErrNotCached
}

// MemoryCache is an in-memory Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	keys    []string
	entries map[string]Entry
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]Entry),
	}
}

func (c *MemoryCache) Match(_ context.Context, req *http.Request) (*http.Response, error) {
	if !matchable(req) {
		return nil, ErrNotCached
	}

	c.mu.RLock()
	e, ok := c.entries[Key(req.URL)]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrNotCached
	}
	return e.Response(req), nil
}

func (c *MemoryCache) Put(_ context.Context, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(e)
	return nil
}

func (c *MemoryCache) AddAll(_ context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.putLocked(e)
	}
	return nil
}

func (c *MemoryCache) putLocked(e Entry) {
	if _, ok := c.entries[e.URL]; !ok {
		c.keys = append(c.keys, e.URL)
	}
	e.Header = e.Header.Clone()
	e.Body = slices.Clone(e.Body)
	c.entries[e.URL] = e
}

func (c *MemoryCache) Delete(_ context.Context, req *http.Request) (bool, error) {
	key := Key(req.URL)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false, nil
	}
	delete(c.entries, key)
	c.keys = slices.DeleteFunc(c.keys, func(k string) bool { return k == key })
	return true, nil
}

func (c *MemoryCache) Keys(context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.keys), nil
}
