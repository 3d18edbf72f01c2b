package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is an optional value in a patch. The zero Field leaves its target
// untouched; a set Field replaces it.
type Field[T any] struct {
	Value T
	Set   bool
}

// Set returns a Field that replaces its target with v.
func Set[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// IsZero reports whether the field is unset. It lets encoding/json omit
// unset fields tagged omitzero.
func (f Field[T]) IsZero() bool {
	return !f.Set
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// UnmarshalJSON marks the field set; encoding/json only calls it for keys
// present in the document.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Value = v
	f.Set = true
	return nil
}

func (f Field[T]) apply(dst *T) {
	if f.Set {
		*dst = f.Value
	}
}

// applySlice replaces dst with a copy of the field's slice.
func applySlice[S ~[]E, E any](f Field[S], dst *S) {
	if !f.Set {
		return
	}
	v := cloneSlice(f.Value)
	if v == nil {
		v = S{}
	}
	*dst = v
}

// Patch is a partial update of the state tree. Nil subtrees are untouched.
type Patch struct {
	User  *UserPatch  `json:"user,omitempty"`
	App   *AppPatch   `json:"app,omitempty"`
	UI    *UIPatch    `json:"ui,omitempty"`
	Cache *CachePatch `json:"cache,omitempty"`
}

// UserPatch updates UserState. Profile and Permissions replace as a whole.
type UserPatch struct {
	IsLoggedIn  Field[bool]     `json:"isLoggedIn,omitzero"`
	Profile     Field[*Profile] `json:"profile,omitzero"`
	Permissions Field[[]string] `json:"permissions,omitzero"`
}

// AppPatch updates AppState.
type AppPatch struct {
	Loading  Field[bool]   `json:"loading,omitzero"`
	Online   Field[bool]   `json:"online,omitzero"`
	Theme    Field[Theme]  `json:"theme,omitzero"`
	Language Field[string] `json:"language,omitzero"`
}

// UIPatch updates UIState. Notifications replace the whole list.
type UIPatch struct {
	SidebarOpen   Field[bool]           `json:"sidebarOpen,omitzero"`
	ModalOpen     Field[bool]           `json:"modalOpen,omitzero"`
	CurrentPage   Field[string]         `json:"currentPage,omitzero"`
	Notifications Field[[]Notification] `json:"notifications,omitzero"`
}

// CachePatch updates CacheState.
type CachePatch struct {
	Messages Field[json.RawMessage] `json:"messages,omitzero"`
	Projects Field[json.RawMessage] `json:"projects,omitzero"`
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p.User == nil && p.App == nil && p.UI == nil && p.Cache == nil
}

// Merge returns s with p applied: subtrees merge field by field, set fields
// replace their targets. s is not modified.
func (s State) Merge(p Patch) State {
	out := s.Clone()
	out.User.merge(p.User)
	out.App.merge(p.App)
	out.UI.merge(p.UI)
	out.Cache.merge(p.Cache)
	return out
}

func (u *UserState) merge(p *UserPatch) {
	if p == nil {
		return
	}
	p.IsLoggedIn.apply(&u.IsLoggedIn)
	if p.Profile.Set {
		u.Profile = p.Profile.Value.clone()
	}
	applySlice(p.Permissions, &u.Permissions)
}

func (a *AppState) merge(p *AppPatch) {
	if p == nil {
		return
	}
	p.Loading.apply(&a.Loading)
	p.Online.apply(&a.Online)
	p.Theme.apply(&a.Theme)
	p.Language.apply(&a.Language)
}

func (u *UIState) merge(p *UIPatch) {
	if p == nil {
		return
	}
	p.SidebarOpen.apply(&u.SidebarOpen)
	p.ModalOpen.apply(&u.ModalOpen)
	p.CurrentPage.apply(&u.CurrentPage)
	applySlice(p.Notifications, &u.Notifications)
}

func (c *CacheState) merge(p *CachePatch) {
	if p == nil {
		return
	}
	if p.Messages.Set {
		c.Messages = cloneSlice(p.Messages.Value)
	}
	if p.Projects.Set {
		c.Projects = cloneSlice(p.Projects.Value)
	}
}

// ParsePatch decodes a JSON document shaped like the state tree into a Patch.
// Only keys present in the document are set; unknown keys are an error.
func ParsePatch(data []byte) (Patch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Patch
	if err := dec.Decode(&p); err != nil {
		return Patch{}, fmt.Errorf("store: parse patch: %w", err)
	}
	return p, nil
}

// Validate reports values the state tree cannot hold.
func (p Patch) Validate() error {
	if p.App != nil && p.App.Theme.Set && !p.App.Theme.Value.Valid() {
		return fmt.Errorf("store: unknown theme %q", p.App.Theme.Value)
	}
	if p.App != nil && p.App.Language.Set && p.App.Language.Value == "" {
		return fmt.Errorf("store: language must not be empty")
	}
	return nil
}
