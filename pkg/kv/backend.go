package kv

import (
	"context"
	"errors"
)

// Backend defines the interface for key/value persistence backends.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Save stores data under key, overwriting any previous value.
	Save(ctx context.Context, key string, data []byte) error

	// Load retrieves the value stored under key.
	// Returns (nil, nil) if the key doesn't exist.
	// Returns (nil, err) on backend errors.
	Load(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend.
	Close() error
}

// ErrClosed is returned when operations are attempted on a closed backend.
var ErrClosed = errors.New("kv: backend is closed")
