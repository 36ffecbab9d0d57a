package core

import (
	"encoding/json"
	"time"
)

// TypedIDSeparator joins the client name and identifier in a typed id.
const TypedIDSeparator = "#"

// UserProfile is the validated, protocol-neutral identity record produced
// by a ProfileCreator. The identifier must be set before the profile
// leaves the creator; the orchestrators enforce this.
type UserProfile struct {
	id          string
	clientName  string
	attributes  map[string]any
	roles       []string
	permissions []string
	secrets     map[string]string
	expiration  time.Time
}

// NewProfile builds an empty profile bound to a client name.
func NewProfile(clientName string) *UserProfile {
	return &UserProfile{
		clientName: clientName,
		attributes: make(map[string]any),
		secrets:    make(map[string]string),
	}
}

// ID returns the profile identifier.
func (p *UserProfile) ID() string { return p.id }

// SetID sets the profile identifier.
func (p *UserProfile) SetID(id string) { p.id = id }

// ClientName returns the name of the client that produced the profile.
func (p *UserProfile) ClientName() string { return p.clientName }

// TypedID returns the client-name-qualified identifier.
func (p *UserProfile) TypedID() string { return p.clientName + TypedIDSeparator + p.id }

// Attribute returns a single attribute value.
func (p *UserProfile) Attribute(name string) (any, bool) {
	v, ok := p.attributes[name]
	return v, ok
}

// StringAttribute returns an attribute coerced to string, or "".
func (p *UserProfile) StringAttribute(name string) string {
	if v, ok := p.attributes[name].(string); ok {
		return v
	}
	return ""
}

// SetAttribute stores an attribute. A nil value removes it.
func (p *UserProfile) SetAttribute(name string, value any) {
	if value == nil {
		delete(p.attributes, name)
		return
	}
	p.attributes[name] = value
}

// Attributes returns a copy of the attribute map.
func (p *UserProfile) Attributes() map[string]any {
	out := make(map[string]any, len(p.attributes))
	for k, v := range p.attributes {
		out[k] = v
	}
	return out
}

// AddRole records a role once.
func (p *UserProfile) AddRole(role string) {
	for _, r := range p.roles {
		if r == role {
			return
		}
	}
	p.roles = append(p.roles, role)
}

// HasRole reports whether the profile carries the role.
func (p *UserProfile) HasRole(role string) bool {
	for _, r := range p.roles {
		if r == role {
			return true
		}
	}
	return false
}

// Roles returns a copy of the role list.
func (p *UserProfile) Roles() []string {
	return append([]string(nil), p.roles...)
}

// AddPermission records a permission once.
func (p *UserProfile) AddPermission(permission string) {
	for _, q := range p.permissions {
		if q == permission {
			return
		}
	}
	p.permissions = append(p.permissions, permission)
}

// HasPermission reports whether the profile carries the permission.
func (p *UserProfile) HasPermission(permission string) bool {
	for _, q := range p.permissions {
		if q == permission {
			return true
		}
	}
	return false
}

// Permissions returns a copy of the permission list.
func (p *UserProfile) Permissions() []string {
	return append([]string(nil), p.permissions...)
}

// SetSecret stores a protocol-specific secret (id token, proxy-granting
// ticket). Secrets never cross a serialization boundary.
func (p *UserProfile) SetSecret(name, value string) {
	p.secrets[name] = value
}

// Secret returns a stored secret, or "".
func (p *UserProfile) Secret(name string) string { return p.secrets[name] }

// SetExpiration marks the profile as expiring at t. Zero means never.
func (p *UserProfile) SetExpiration(t time.Time) { p.expiration = t }

// Expired reports whether the profile has passed its expiration.
func (p *UserProfile) Expired() bool {
	return !p.expiration.IsZero() && time.Now().After(p.expiration)
}

type profileJSON struct {
	ID          string         `json:"id"`
	ClientName  string         `json:"client_name"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Expiration  time.Time      `json:"expiration,omitempty"`
}

// MarshalJSON serializes everything except secrets, which are redacted
// before the profile crosses any boundary.
func (p *UserProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(profileJSON{
		ID:          p.id,
		ClientName:  p.clientName,
		Attributes:  p.attributes,
		Roles:       p.roles,
		Permissions: p.permissions,
		Expiration:  p.expiration,
	})
}

// UnmarshalJSON restores a profile serialized by MarshalJSON.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var pj profileJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return err
	}
	p.id = pj.ID
	p.clientName = pj.ClientName
	p.attributes = pj.Attributes
	if p.attributes == nil {
		p.attributes = make(map[string]any)
	}
	p.roles = pj.Roles
	p.permissions = pj.Permissions
	p.secrets = make(map[string]string)
	p.expiration = pj.Expiration
	return nil
}
