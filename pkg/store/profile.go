package store

import (
	"encoding/json"
	"slices"
)

// Profile is the signed-in user's record as returned by the backend.
// Fields the store does not know about are kept in Extra and written back
// unchanged.
type Profile struct {
	ID          int64                      `json:"id,omitempty"`
	Username    string                     `json:"username"`
	Email       string                     `json:"email,omitempty"`
	Bio         string                     `json:"bio,omitempty"`
	IsAdmin     bool                       `json:"is_admin,omitempty"`
	Permissions []string                   `json:"permissions,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

// profileFields has Profile's fields without its methods.
type profileFields Profile

var profileKeys = []string{"id", "username", "email", "bio", "is_admin", "permissions"}

func (p Profile) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(profileFields(p))
	if err != nil || len(p.Extra) == 0 {
		return base, err
	}

	var known map[string]json.RawMessage
	if err := json.Unmarshal(base, &known); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(known)+len(p.Extra))
	for k, v := range p.Extra {
		merged[k] = v
	}
	for k, v := range known {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var f profileFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range profileKeys {
		delete(all, k)
	}
	f.Extra = nil
	if len(all) > 0 {
		f.Extra = all
	}

	*p = Profile(f)
	return nil
}

func (p *Profile) clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Permissions = slices.Clone(p.Permissions)
	if p.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}
