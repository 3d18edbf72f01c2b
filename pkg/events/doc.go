// Package events provides the in-process event bus used by the homepage client.
//
// A Manager fans an emitted event out to every handler registered for its
// name, synchronously and in registration order. Each handler runs inside its
// own error boundary: a handler that returns an error or panics is logged and
// reported to the error observer, and the remaining handlers still run.
//
//	bus := events.New()
//	off := bus.On(events.UserLogin, func(e events.Event) error {
//	    slog.Info("logged in", "at", e.Timestamp)
//	    return nil
//	})
//	defer off()
//
//	bus.Emit(events.UserLogin, events.Payload{"username": "yana"})
//
// Event names form a closed set of Name constants. Typed payloads can be
// consumed with Listen:
//
//	events.Listen(bus, events.NotificationShow, func(n store.Notification, e events.Event) error {
//	    ...
//	})
//
// A Manager is created once per client session and passed to the components
// that publish or consume events.
package events
