package lazarus

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTClaims is the session payload
type JWTClaims struct {
	jwt.RegisteredClaims
	UID      string  `json:"uid,omitempty"`
	UserRole RoleTag `json:"role,omitempty"`
	Email    string  `json:"email,omitempty"`
	// Metadata holds extension claims set by a ClaimsDecorator
	Metadata map[string]any `json:"meta,omitempty"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the role tag
func (c *JWTClaims) Role() RoleTag {
	return c.UserRole
}

// IdentityRef parses the subject into an (id, role) pair
func (c *JWTClaims) IdentityRef() (IdentityRef, error) {
	id, err := uuid.Parse(c.UserID())
	if err != nil {
		return IdentityRef{}, withMeta(ErrTokenMalformed, map[string]any{"reason": "subject is not a uuid"})
	}
	if !c.UserRole.IsValid() {
		return IdentityRef{}, withMeta(ErrTokenMalformed, map[string]any{"reason": "unknown role"})
	}
	return IdentityRef{ID: id, Role: c.UserRole}, nil
}

// SetMetadata sets one extension claim
func (c *JWTClaims) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
