package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/yanachan-dev/homepage/pkg/events"
	"github.com/yanachan-dev/homepage/pkg/kv"
)

// StorageKey is the storage key the durable snapshot is written under.
const StorageKey = "appState"

// Listener is a direct subscriber. It receives a copy of the state after an
// update and the patch that produced it. A returned error is logged and
// otherwise ignored.
type Listener func(state State, changed Patch) error

// Unsubscribe removes the registration it was returned for.
type Unsubscribe func()

// StateChange is the payload of events.AppStateChange.
type StateChange struct {
	State   State `json:"state"`
	Changed Patch `json:"changed"`
}

// Login is the payload of events.UserLogin.
type Login struct {
	User Profile `json:"user"`
}

type listenerReg struct {
	id uint64
	fn Listener
}

// Store owns the application state tree.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []listenerReg
	nextID    uint64

	// pending holds notifications in mutation order. draining is set while a
	// goroutine delivers them.
	pending  []func()
	draining bool

	bus     *events.Manager
	storage *kv.Storage
	logger  *slog.Logger
	now     func() time.Time
	ctx     context.Context
	key     string
	initial func() State
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for subscriber failures.
// Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for notification ids and
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithContext sets the context used for storage reads and writes.
// Default: context.Background().
func WithContext(ctx context.Context) Option {
	return func(s *Store) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithStorageKey overrides StorageKey.
func WithStorageKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithInitialState overrides DefaultState, e.g. to start offline.
func WithInitialState(fn func() State) Option {
	return func(s *Store) {
		if fn != nil {
			s.initial = fn
		}
	}
}

// New creates the session's Store and restores the persisted snapshot from
// storage. A nil bus or storage is replaced with a private in-memory one.
func New(bus *events.Manager, storage *kv.Storage, opts ...Option) *Store {
	s := &Store{
		bus:     bus,
		storage: storage,
		logger:  slog.Default(),
		now:     time.Now,
		ctx:     context.Background(),
		key:     StorageKey,
		initial: DefaultState,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = events.New(events.WithLogger(s.logger))
	}
	if s.storage == nil {
		s.storage = kv.NewStorage(nil, kv.WithLogger(s.logger))
	}

	s.state = s.initial()
	s.restore()
	return s
}

// Bus returns the event manager the store publishes on.
func (s *Store) Bus() *events.Manager {
	return s.bus
}

// restore decodes the persisted snapshot over the current state.
func (s *Store) restore() {
	snap := s.state.Clone().snapshot()
	if !s.storage.Get(s.ctx, s.key, &snap) {
		return
	}
	s.state = s.state.restore(snap)
}

// persistLocked writes the durable snapshot. Caller holds s.mu.
func (s *Store) persistLocked() {
	s.storage.Set(s.ctx, s.key, s.state.snapshot())
}

// GetState returns a copy of the current state tree.
func (s *Store) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Get resolves a dot-separated path such as "app.theme" against the JSON
// form of the state tree. The result does not exist when any segment is
// missing.
func (s *Store) Get(path string) gjson.Result {
	s.mu.Lock()
	data, err := json.Marshal(s.state)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("state encode failed", "error", err)
		return gjson.Result{}
	}
	return gjson.GetBytes(data, path)
}

// SetOption configures a SetState call.
type SetOption func(*setConfig)

type setConfig struct {
	silent bool
}

// Silent updates and persists the state without notifying anyone.
func Silent() SetOption {
	return func(c *setConfig) {
		c.silent = true
	}
}

// SetState merges p into the state, persists the durable snapshot and,
// unless Silent is given, emits events.AppStateChange and calls every direct
// subscriber in subscription order.
func (s *Store) SetState(p Patch, opts ...SetOption) {
	s.update(func(State) Patch { return p }, opts...)
}

// update computes a patch from the current state, applies and persists it,
// and queues its notification.
func (s *Store) update(fn func(cur State) Patch, opts ...SetOption) (State, Patch) {
	var cfg setConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s.mu.Lock()
	p := fn(s.state)
	s.state = s.state.Merge(p)
	s.persistLocked()
	state := s.state.Clone()
	if !cfg.silent {
		listeners := append([]listenerReg(nil), s.listeners...)
		s.pending = append(s.pending, func() { s.notify(state, p, listeners) })
	}
	s.mu.Unlock()

	s.drain()
	return state, p
}

// emit queues a bus event behind the pending notifications.
func (s *Store) emit(name events.Name, payload any) {
	s.mu.Lock()
	s.pending = append(s.pending, func() { s.bus.Emit(name, payload) })
	s.mu.Unlock()

	s.drain()
}

// drain delivers queued notifications until the queue is empty. It returns
// at once when another call up the stack, or another goroutine, is already
// delivering; that call picks up what was queued.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		next := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.mu.Unlock()
		s.deliver(next)
		s.mu.Lock()
	}
	s.pending = nil
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state notification panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (s *Store) notify(state State, p Patch, listeners []listenerReg) {
	s.bus.Emit(events.AppStateChange, StateChange{State: state, Changed: p})
	for _, l := range listeners {
		s.callListener(l.fn, state.Clone(), p)
	}
}

func (s *Store) callListener(fn Listener, state State, p Patch) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("state listener panicked", "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(state, p); err != nil {
		s.logger.Error("state listener failed", "error", err)
	}
}

// Subscribe registers a direct subscriber called after every non-silent
// update.
func (s *Store) Subscribe(fn Listener) Unsubscribe {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listenerReg{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// SetUser marks user as signed in and emits events.UserLogin.
func (s *Store) SetUser(user Profile) {
	perms := user.Permissions
	if perms == nil {
		perms = []string{}
	}
	s.SetState(Patch{User: &UserPatch{
		IsLoggedIn:  Set(true),
		Profile:     Set(&user),
		Permissions: Set(perms),
	}})
	s.emit(events.UserLogin, Login{User: user})
}

// ClearUser resets the user subtree to its signed-out shape and emits
// events.UserLogout.
func (s *Store) ClearUser() {
	s.SetState(Patch{User: &UserPatch{
		IsLoggedIn:  Set(false),
		Profile:     Set[*Profile](nil),
		Permissions: Set([]string{}),
	}})
	s.emit(events.UserLogout, nil)
}

// SetUI merges p into the ui subtree.
func (s *Store) SetUI(p UIPatch) {
	s.SetState(Patch{UI: &p})
}

// SetApp merges p into the app subtree.
func (s *Store) SetApp(p AppPatch) {
	s.SetState(Patch{App: &p})
}

// SetCache merges p into the cache subtree.
func (s *Store) SetCache(p CachePatch) {
	s.SetState(Patch{Cache: &p})
}

// SetOnline records connectivity and emits events.NetworkOnline or
// events.NetworkOffline.
func (s *Store) SetOnline(online bool) {
	s.SetApp(AppPatch{Online: Set(online)})
	if online {
		s.emit(events.NetworkOnline, nil)
	} else {
		s.emit(events.NetworkOffline, nil)
	}
}

// Reset restores the initial state, deletes the persisted snapshot and emits
// events.AppStateReset. Direct subscribers are not called.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = s.initial()
	s.storage.Remove(s.ctx, s.key)
	s.pending = append(s.pending, func() { s.bus.Emit(events.AppStateReset, nil) })
	s.mu.Unlock()

	s.drain()
}
