package lazarus

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthResolver resolves identities across the three collections. It never
// writes.
type AuthResolver struct {
	identities Identities
	logger     Logger
}

var _ CredentialValidator = (*AuthResolver)(nil)

// NewAuthResolver returns a resolver over the identity store
func NewAuthResolver(identities Identities) *AuthResolver {
	return &AuthResolver{
		identities: identities,
		logger:     defLogger{},
	}
}

// WithLogger overrides the logger
func (r *AuthResolver) WithLogger(logger Logger) *AuthResolver {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// ResolveByEmail searches ResolutionOrder and returns the first match
func (r *AuthResolver) ResolveByEmail(ctx context.Context, email string) (*Identity, error) {
	for _, role := range ResolutionOrder {
		identity, err := r.identities.FindByEmail(ctx, role, email)
		if err == nil {
			return identity, nil
		}
		if !IsNotFound(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve identity by email")
		}
	}

	return nil, withMeta(ErrIdentityNotFound, map[string]any{"email": NormalizeEmail(email)})
}

// ResolveByID is a keyed lookup in the collection named by role
func (r *AuthResolver) ResolveByID(ctx context.Context, id uuid.UUID, role RoleTag) (*Identity, error) {
	if !role.IsValid() {
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}

	identity, err := r.identities.FindByID(ctx, role, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve identity by id")
	}
	return identity, nil
}

// ValidateCredentials checks an email/password pair. Disabled accounts fail
// before the password is compared. Unknown emails and password mismatches
// both yield ErrInvalidCredentials.
func (r *AuthResolver) ValidateCredentials(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := r.ResolveByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		// keep the unknown email path as slow as a real comparison
		_ = ComparePasswordAndHash(password, dummyHash())
		return nil, ErrInvalidCredentials
	}

	if !identity.IsActive() {
		return nil, withMeta(ErrAccountDisabled, map[string]any{"role": identity.Role})
	}

	if err := ComparePasswordAndHash(password, identity.PasswordHash()); err != nil {
		if !HasTextCode(err, TextCodeInvalidCredentials) {
			r.logger.Error("credential comparison failed", "error", err)
		}
		return nil, ErrInvalidCredentials
	}

	return identity, nil
}
