package lazarus

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Identity is a resolved account of exactly one variant. Role tells which
// of the pointers is set.
type Identity struct {
	Role    RoleTag
	Citizen *Citizen
	Entity  *Entity
	Admin   *Admin
}

// IdentityRef is the (id, role) pair carried alongside every identifier
type IdentityRef struct {
	ID   uuid.UUID `json:"id"`
	Role RoleTag   `json:"role"`
}

// IsZero reports an empty reference
func (r IdentityRef) IsZero() bool {
	return r.ID == uuid.Nil && r.Role == ""
}

func (r IdentityRef) String() string {
	return string(r.Role) + ":" + r.ID.String()
}

// CitizenIdentity wraps a citizen record
func CitizenIdentity(c *Citizen) *Identity {
	return &Identity{Role: RoleCitizen, Citizen: c}
}

// EntityIdentity wraps an entity record
func EntityIdentity(e *Entity) *Identity {
	return &Identity{Role: RoleEntity, Entity: e}
}

// AdminIdentity wraps an admin record
func AdminIdentity(a *Admin) *Identity {
	return &Identity{Role: RoleAdmin, Admin: a}
}

// ID returns the surrogate id of the wrapped record
func (i *Identity) ID() uuid.UUID {
	if i == nil {
		return uuid.Nil
	}
	switch i.Role {
	case RoleCitizen:
		if i.Citizen != nil {
			return i.Citizen.ID
		}
	case RoleEntity:
		if i.Entity != nil {
			return i.Entity.ID
		}
	case RoleAdmin:
		if i.Admin != nil {
			return i.Admin.ID
		}
	}
	return uuid.Nil
}

// Ref returns the (id, role) pair
func (i *Identity) Ref() IdentityRef {
	if i == nil {
		return IdentityRef{}
	}
	return IdentityRef{ID: i.ID(), Role: i.Role}
}

func (i *Identity) Email() string {
	if i == nil {
		return ""
	}
	switch {
	case i.Citizen != nil:
		return i.Citizen.Email
	case i.Entity != nil:
		return i.Entity.Email
	case i.Admin != nil:
		return i.Admin.Email
	}
	return ""
}

func (i *Identity) PasswordHash() string {
	if i == nil {
		return ""
	}
	switch {
	case i.Citizen != nil:
		return i.Citizen.PasswordHash
	case i.Entity != nil:
		return i.Entity.PasswordHash
	case i.Admin != nil:
		return i.Admin.PasswordHash
	}
	return ""
}

// IsActive reports the active flag of the wrapped record
func (i *Identity) IsActive() bool {
	if i == nil {
		return false
	}
	switch {
	case i.Citizen != nil:
		return i.Citizen.Active
	case i.Entity != nil:
		return i.Entity.Active
	case i.Admin != nil:
		return i.Admin.Active
	}
	return false
}

// DisplayName is used in notifications and broadcast payloads
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	switch {
	case i.Citizen != nil:
		return i.Citizen.FullName()
	case i.Entity != nil:
		return i.Entity.Name
	case i.Admin != nil:
		if i.Admin.LastName == "" {
			return i.Admin.FirstName
		}
		return i.Admin.FirstName + " " + i.Admin.LastName
	}
	return ""
}

func (i *Identity) CreatedAt() time.Time {
	if i == nil {
		return time.Time{}
	}
	switch {
	case i.Citizen != nil:
		return i.Citizen.CreatedAt
	case i.Entity != nil:
		return i.Entity.CreatedAt
	case i.Admin != nil:
		return i.Admin.CreatedAt
	}
	return time.Time{}
}

// IsAdmin is a shorthand for role checks
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin && i.Admin != nil
}

// ActorRef returns the audit actor for this identity
func (i *Identity) ActorRef() ActorRef {
	if i == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: i.ID().String(), Type: string(i.Role)}
}

// record returns the wrapped variant
func (i *Identity) record() any {
	switch {
	case i.Citizen != nil:
		return i.Citizen
	case i.Entity != nil:
		return i.Entity
	case i.Admin != nil:
		return i.Admin
	}
	return nil
}

// MarshalJSON flattens the wrapped record and adds the role tag
func (i *Identity) MarshalJSON() ([]byte, error) {
	if i == nil || i.record() == nil {
		return []byte("null"), nil
	}
	raw, err := json.Marshal(i.record())
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["role"] = i.Role
	return json.Marshal(fields)
}
