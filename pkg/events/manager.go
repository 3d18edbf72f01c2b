package events

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives emitted events. A returned error is logged and otherwise
// ignored; it never reaches the emitter.
type Handler func(Event) error

// Unsubscribe removes the registration it was returned for.
// Calling it more than once is a no-op.
type Unsubscribe func()

// Subscription identifies one registration made with OnSub.
type Subscription struct {
	name Name
	id   uint64
}

// Name returns the event name the subscription was registered under.
func (s Subscription) Name() Name {
	return s.name
}

type registration struct {
	id uint64
	fn Handler
}

// Manager is an in-memory pub/sub bus keyed by event name.
// It is safe for concurrent use; delivery is synchronous on the emitting
// goroutine.
type Manager struct {
	mu       sync.RWMutex
	handlers map[Name][]registration
	nextID   atomic.Uint64

	logger  *slog.Logger
	now     func() time.Time
	onError func(*HandlerError)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for handler failures.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		handlers: make(map[Name][]registration),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnError installs an observer called for every isolated handler failure,
// after it has been logged. Passing nil removes the observer.
func (m *Manager) OnError(fn func(*HandlerError)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onError = fn
}

// On registers fn for name and returns a func that removes exactly this
// registration.
func (m *Manager) On(name Name, fn Handler) Unsubscribe {
	sub := m.OnSub(name, fn)
	return func() { m.Off(name, sub) }
}

// OnSub registers fn for name and returns its Subscription handle, for
// callers that remove registrations with Off.
func (m *Manager) OnSub(name Name, fn Handler) Subscription {
	sub := Subscription{name: name, id: m.nextID.Add(1)}
	if fn == nil {
		return sub
	}

	m.mu.Lock()
	m.handlers[name] = append(m.handlers[name], registration{id: sub.id, fn: fn})
	m.mu.Unlock()
	return sub
}

// Off removes the registration identified by sub from name.
// It is a no-op when the registration is absent.
func (m *Manager) Off(name Name, sub Subscription) {
	if sub.name != name {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	regs := m.handlers[name]
	for i, r := range regs {
		if r.id != sub.id {
			continue
		}
		// Copy so an Emit iterating the old slice is not disturbed.
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(m.handlers, name)
		} else {
			m.handlers[name] = next
		}
		return
	}
}

// Once registers fn to run on the next emission of name only.
func (m *Manager) Once(name Name, fn Handler) Unsubscribe {
	var (
		sub   Subscription
		fired atomic.Bool
		ready = make(chan struct{})
	)
	sub = m.OnSub(name, func(e Event) error {
		<-ready
		if !fired.CompareAndSwap(false, true) {
			return nil
		}
		m.Off(name, sub)
		return fn(e)
	})
	close(ready)
	return func() { m.Off(name, sub) }
}

// OnMultiple registers fn under every name in names. The returned func
// removes all of those registrations together.
func (m *Manager) OnMultiple(names []Name, fn Handler) Unsubscribe {
	offs := make([]Unsubscribe, 0, len(names))
	for _, name := range names {
		offs = append(offs, m.On(name, fn))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// Emit delivers payload to every handler currently registered for name, in
// registration order. Handlers registered or removed while Emit runs do not
// affect the current delivery.
func (m *Manager) Emit(name Name, payload any) {
	m.mu.RLock()
	regs := m.handlers[name]
	m.mu.RUnlock()

	if len(regs) == 0 {
		return
	}

	evt := enrich(name, payload, m.now())
	for _, r := range regs {
		m.invoke(evt, r.fn)
	}
}

// invoke runs one handler inside its own error boundary.
func (m *Manager) invoke(evt Event, fn Handler) {
	var herr *HandlerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				herr = &HandlerError{Event: evt.Type, Err: fmt.Errorf("%v", r), Panicked: true}
			}
		}()
		if err := fn(evt); err != nil {
			herr = &HandlerError{Event: evt.Type, Err: err}
		}
	}()

	if herr == nil {
		return
	}

	m.logger.Error("event handler failed",
		"event", string(evt.Type),
		"panic", herr.Panicked,
		"error", herr.Err)

	m.mu.RLock()
	observer := m.onError
	m.mu.RUnlock()
	if observer != nil {
		observer(herr)
	}
}

// ListenerCount returns the number of handlers registered for name.
func (m *Manager) ListenerCount(name Name) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[name])
}

// ClearEvent removes every handler registered for name.
func (m *Manager) ClearEvent(name Name) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, name)
}

// ClearAll removes every handler.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = make(map[Name][]registration)
}

// Listen registers a handler that receives the event payload as a T.
// A payload of another type is reported as a handler failure; a nil payload
// is delivered as the zero T.
func Listen[T any](m *Manager, name Name, fn func(T, Event) error) Unsubscribe {
	return m.On(name, func(e Event) error {
		if e.Payload == nil {
			var zero T
			return fn(zero, e)
		}
		v, ok := e.Payload.(T)
		if !ok {
			var zero T
			return fmt.Errorf("payload is %T, want %T", e.Payload, zero)
		}
		return fn(v, e)
	})
}
