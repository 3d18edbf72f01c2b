package toast

import "github.com/yanachan-dev/homepage/pkg/store"

// Notifier is anything that can record a notification. *store.Store
// implements it.
type Notifier interface {
	AddNotification(in store.NotificationInput) store.Notification
}

// Type represents the toast notification type.
type Type = store.Severity

const (
	TypeSuccess = store.SeveritySuccess
	TypeError   = store.SeverityError
	TypeWarning = store.SeverityWarning
	TypeInfo    = store.SeverityInfo
)

// Show records a toast notification and returns it.
func Show(n Notifier, level Type, message string) store.Notification {
	return n.AddNotification(store.NotificationInput{
		Type:    level,
		Message: message,
	})
}

// Success shows a success toast.
//
//	toast.Success(st, "Changes saved!")
func Success(n Notifier, message string) store.Notification {
	return Show(n, TypeSuccess, message)
}

// Error shows an error toast.
//
//	toast.Error(st, "Failed to delete item")
func Error(n Notifier, message string) store.Notification {
	return Show(n, TypeError, message)
}

// Warning shows a warning toast.
//
//	toast.Warning(st, "This action cannot be undone")
func Warning(n Notifier, message string) store.Notification {
	return Show(n, TypeWarning, message)
}

// Info shows an info toast.
//
//	toast.Info(st, "New features available")
func Info(n Notifier, message string) store.Notification {
	return Show(n, TypeInfo, message)
}

// WithTitle shows a toast with a title and message.
//
//	toast.WithTitle(st, toast.TypeSuccess, "Settings", "Your changes have been saved.")
func WithTitle(n Notifier, level Type, title, message string) store.Notification {
	return n.AddNotification(store.NotificationInput{
		Type:    level,
		Title:   title,
		Message: message,
	})
}
