package events

import (
	"fmt"
	"time"
)

// Payload is the free-form payload used by events that carry no typed value.
type Payload map[string]any

// Event is what handlers receive: the emitted payload enriched with the
// event name and the wall-clock time of the Emit call.
type Event struct {
	Type      Name
	Timestamp time.Time
	Payload   any
}

// Get returns a field of a Payload-typed event.
// It reports false for missing keys and for non-map payloads.
func (e Event) Get(key string) (any, bool) {
	p, ok := e.Payload.(Payload)
	if !ok {
		return nil, false
	}
	v, ok := p[key]
	return v, ok
}

// Fields returns the payload flattened together with "type" and "timestamp",
// the shape consumers outside the process (the websocket stream) see.
func (e Event) Fields() map[string]any {
	out := make(map[string]any)
	if p, ok := e.Payload.(Payload); ok {
		for k, v := range p {
			out[k] = v
		}
	} else if e.Payload != nil {
		out["data"] = e.Payload
	}
	out["type"] = string(e.Type)
	out["timestamp"] = e.Timestamp.UnixMilli()
	return out
}

// enrich builds the Event delivered for one Emit call. Payload maps are
// shallow-copied so handlers cannot mutate the emitter's map.
func enrich(name Name, payload any, now time.Time) Event {
	if p, ok := payload.(Payload); ok {
		cp := make(Payload, len(p))
		for k, v := range p {
			cp[k] = v
		}
		payload = cp
	}
	return Event{Type: name, Timestamp: now, Payload: payload}
}

// HandlerError records a handler failure isolated by Emit.
type HandlerError struct {
	Event Name
	Err   error
	// Panicked is set when the handler panicked instead of returning an error.
	Panicked bool
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("events: handler for %s panicked: %v", e.Event, e.Err)
	}
	return fmt.Sprintf("events: handler for %s: %v", e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
