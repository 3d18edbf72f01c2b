package store

import (
	"slices"

	"github.com/yanachan-dev/homepage/pkg/events"
)

// Severity is the kind of a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// isoMillis is the layout of JavaScript's Date.prototype.toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Notification is an entry of ui.notifications.
//
// ID is the creation time in Unix milliseconds. Two notifications created in
// the same millisecond share an ID; RemoveNotification then removes both.
type Notification struct {
	ID        int64    `json:"id"`
	Timestamp string   `json:"timestamp"`
	Type      Severity `json:"type,omitempty"`
	Title     string   `json:"title,omitempty"`
	Message   string   `json:"message"`
}

// NotificationInput holds the caller-supplied fields of a notification.
type NotificationInput struct {
	Type    Severity
	Title   string
	Message string
}

// AddNotification appends a notification to ui.notifications and emits
// events.NotificationShow with it.
func (s *Store) AddNotification(in NotificationInput) Notification {
	now := s.now()
	n := Notification{
		ID:        now.UnixMilli(),
		Timestamp: now.UTC().Format(isoMillis),
		Type:      in.Type,
		Title:     in.Title,
		Message:   in.Message,
	}

	s.update(func(cur State) Patch {
		list := append(slices.Clone(cur.UI.Notifications), n)
		return Patch{UI: &UIPatch{Notifications: Set(list)}}
	})
	s.emit(events.NotificationShow, n)
	return n
}

// RemoveNotification removes every notification whose ID is id.
func (s *Store) RemoveNotification(id int64) {
	s.update(func(cur State) Patch {
		list := make([]Notification, 0, len(cur.UI.Notifications))
		for _, n := range cur.UI.Notifications {
			if n.ID != id {
				list = append(list, n)
			}
		}
		return Patch{UI: &UIPatch{Notifications: Set(list)}}
	})
}

// ClearNotifications empties ui.notifications.
func (s *Store) ClearNotifications() {
	s.SetUI(UIPatch{Notifications: Set([]Notification{})})
}
