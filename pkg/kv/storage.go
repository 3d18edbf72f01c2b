package kv

import (
	"context"
	"encoding/json"
	"log/slog"
	"reflect"
)

// Storage is the adapter the state store persists through.
// Values are encoded as JSON. Every failure is logged and reported as a false
// return; nothing is returned as an error.
type Storage struct {
	backend Backend
	logger  *slog.Logger
}

// StorageOption configures a Storage.
type StorageOption func(*Storage)

// WithLogger sets the logger used for failures.
// Default: slog.Default().
func WithLogger(l *slog.Logger) StorageOption {
	return func(s *Storage) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStorage wraps backend. A nil backend falls back to a MemoryBackend.
func NewStorage(backend Backend, opts ...StorageOption) *Storage {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s := &Storage{
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the wrapped backend.
func (s *Storage) Backend() Backend {
	return s.backend
}

// Get decodes the value stored under key over dst, which must be a non-nil
// pointer. Keys absent from the stored document keep the values dst already
// holds. It returns false, leaving dst untouched, when the key is missing or
// the value cannot be loaded or decoded; dst therefore acts as the default.
func (s *Storage) Get(ctx context.Context, key string, dst any) bool {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		s.logger.Error("storage get: destination must be a non-nil pointer", "key", key)
		return false
	}

	data, err := s.backend.Load(ctx, key)
	if err != nil {
		s.logger.Error("storage get failed", "key", key, "error", err)
		return false
	}
	if data == nil {
		return false
	}

	// Check the document against a zero value first. Decoding over dst
	// directly would write into its slices and maps before a type error
	// surfaces further on.
	if err := json.Unmarshal(data, reflect.New(rv.Elem().Type()).Interface()); err != nil {
		s.logger.Error("storage get: decode failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Error("storage get: decode failed", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores value under key.
func (s *Storage) Set(ctx context.Context, key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("storage set: encode failed", "key", key, "error", err)
		return false
	}
	if err := s.backend.Save(ctx, key, data); err != nil {
		s.logger.Error("storage set failed", "key", key, "error", err)
		return false
	}
	return true
}

// Remove deletes key.
func (s *Storage) Remove(ctx context.Context, key string) bool {
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Error("storage remove failed", "key", key, "error", err)
		return false
	}
	return true
}

// Value returns the value stored under key, or def when it is missing or
// unreadable.
func Value[T any](ctx context.Context, s *Storage, key string, def T) T {
	v := def
	s.Get(ctx, key, &v)
	return v
}
