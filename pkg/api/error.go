package api

import (
	"errors"
	"fmt"
)

// DefaultNetworkMessage is used when a network error has no message.
const DefaultNetworkMessage = "网络请求失败，请检查网络连接"

// Error is a failed request.
type Error struct {
	Message string
	// Status is the HTTP status code, or 0 when no response arrived.
	Status int
	// Data is the decoded error body. Plain-text bodies are stored under
	// "message".
	Data map[string]any
	// Err is the transport error for network failures.
	Err error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "api: " + e.Message
	}
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == status
}
