package lazarus

import (
	"time"

	"github.com/google/uuid"
)

// Session is the verified caller of an authenticated operation
type Session struct {
	Identity  *Identity  `json:"identity"`
	Claims    *JWTClaims `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Ref returns the (id, role) pair of the caller
func (s *Session) Ref() IdentityRef {
	if s == nil {
		return IdentityRef{}
	}
	return s.Identity.Ref()
}

func (s *Session) GetUserID() string {
	if s == nil || s.Identity == nil {
		return ""
	}
	return s.Identity.ID().String()
}

func (s *Session) GetUserUUID() (uuid.UUID, error) {
	if s == nil || s.Identity == nil {
		return uuid.Nil, ErrIdentityNotFound
	}
	return s.Identity.ID(), nil
}

func (s *Session) Role() RoleTag {
	if s == nil || s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

// LoginResult is returned by a successful login
type LoginResult struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  *Identity `json:"user"`
}
