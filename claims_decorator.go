package lazarus

import "context"

// ClaimsDecorator can add extension claims before a session token is
// signed. It may only touch Metadata; identity and registered claims are
// checked after it runs.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, identity *Identity, claims *JWTClaims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, identity *Identity, claims *JWTClaims) error

func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, identity *Identity, claims *JWTClaims) error {
	if f == nil {
		return nil
	}
	return f(ctx, identity, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, *Identity, *JWTClaims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}

// ProfileClaims stamps the role specific profile fields clients use to
// render a session without another round trip: the category of an entity
// and the access level of an admin.
var ProfileClaims = ClaimsDecoratorFunc(func(_ context.Context, identity *Identity, claims *JWTClaims) error {
	switch {
	case identity.Entity != nil:
		claims.SetMetadata("category", string(identity.Entity.Category))
	case identity.Admin != nil:
		claims.SetMetadata("access_level", string(identity.Admin.AccessLevel))
	}
	return nil
})
