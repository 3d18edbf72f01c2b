package swcache

import (
	"context"
	"encoding/json"
	"errors"
)

// Permission is the user's answer to the notification permission prompt.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Push notification defaults.
const (
	DefaultPushTitle = "YanaChan"
	DefaultPushBody  = "您有新的通知"
	DefaultPushIcon  = "/images/logo.png"
)

// Notification is a notification shown in response to a push message.
type Notification struct {
	ID    string          `json:"id"`
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Icon  string          `json:"icon,omitempty"`
	Badge string          `json:"badge,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Notifier displays notifications on behalf of the controller.
type Notifier interface {
	Permission() Permission
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// ClientType filters Clients.MatchAll.
type ClientType string

const (
	ClientWindow ClientType = "window"
	ClientWorker ClientType = "worker"
	ClientAll    ClientType = "all"
)

// Client is a page controlled by the cache controller.
type Client interface {
	ID() string
	URL() string
	Type() ClientType
	Focus(ctx context.Context) error
}

// Clients enumerates controlled pages and opens new ones.
type Clients interface {
	MatchAll(ctx context.Context, typ ClientType) ([]Client, error)
	OpenWindow(ctx context.Context, url string) (Client, error)
}

// ErrNoClients is returned by OpenWindow when no page can be opened.
var ErrNoClients = errors.New("swcache: no client available")

// pushPayload is the JSON body of a push message.
type pushPayload struct {
	Title string          `json:"title"`
	Body  string          `json:"body"`
	Data  json.RawMessage `json:"data,omitempty"`
}
