package store

import (
	"encoding/json"
	"slices"
)

// Theme is the UI color theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark
}

// DefaultLanguage is the locale used until the user picks another one.
const DefaultLanguage = "zh-CN"

// State is the application state tree. JSON field names are the names used
// in dot paths (see Store.Get).
type State struct {
	User  UserState  `json:"user"`
	App   AppState   `json:"app"`
	UI    UIState    `json:"ui"`
	Cache CacheState `json:"cache"`
}

// UserState describes the signed-in user.
type UserState struct {
	IsLoggedIn  bool     `json:"isLoggedIn"`
	Profile     *Profile `json:"profile"`
	Permissions []string `json:"permissions"`
}

// AppState holds application-wide settings.
type AppState struct {
	Loading  bool   `json:"loading"`
	Online   bool   `json:"online"`
	Theme    Theme  `json:"theme"`
	Language string `json:"language"`
}

// UIState holds view state. Notifications are never persisted.
type UIState struct {
	SidebarOpen   bool           `json:"sidebarOpen"`
	ModalOpen     bool           `json:"modalOpen"`
	CurrentPage   string         `json:"currentPage"`
	Notifications []Notification `json:"notifications"`
}

// CacheState holds opaque API payloads kept for quick redisplay.
type CacheState struct {
	Messages json.RawMessage `json:"messages"`
	Projects json.RawMessage `json:"projects"`
}

// DefaultState returns the initial state tree.
func DefaultState() State {
	return State{
		User: UserState{
			Permissions: []string{},
		},
		App: AppState{
			Online:   true,
			Theme:    ThemeLight,
			Language: DefaultLanguage,
		},
		UI: UIState{
			CurrentPage:   "home",
			Notifications: []Notification{},
		},
	}
}

// Clone returns a copy of s whose slices do not alias s.
// The profile record is shared.
func (s State) Clone() State {
	out := s
	out.User.Permissions = cloneSlice(s.User.Permissions)
	out.UI.Notifications = cloneSlice(s.UI.Notifications)
	out.Cache.Messages = cloneSlice(s.Cache.Messages)
	out.Cache.Projects = cloneSlice(s.Cache.Projects)
	return out
}

// cloneSlice copies s, keeping nil as nil and empty as empty.
func cloneSlice[S ~[]E, E any](s S) S {
	if s == nil {
		return nil
	}
	return append(make(S, 0, len(s)), s...)
}

// snapshot is the persisted subset of State.
type snapshot struct {
	User UserState `json:"user"`
	App  AppState  `json:"app"`
	UI   UIState   `json:"ui"`
}

func (s State) snapshot() snapshot {
	ui := s.UI
	ui.Notifications = []Notification{}
	return snapshot{User: s.User, App: s.App, UI: ui}
}

// restore applies a decoded snapshot, keeping the ephemeral parts of s.
func (s State) restore(snap snapshot) State {
	notifications := s.UI.Notifications
	s.User = snap.User
	s.App = snap.App
	s.UI = snap.UI
	s.UI.Notifications = notifications
	if s.User.Permissions == nil {
		s.User.Permissions = []string{}
	}
	if s.UI.Notifications == nil {
		s.UI.Notifications = []Notification{}
	}
	return s
}

// HasPermission reports whether the signed-in user holds perm.
func (u UserState) HasPermission(perm string) bool {
	return slices.Contains(u.Permissions, perm)
}
