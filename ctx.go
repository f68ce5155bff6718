package lazarus

import (
	"context"
)

var sessionCtxKey = &contextKey{"session"}

type contextKey struct {
	name string
}

// WithSession sets the verified session in the given context
func WithSession(ctx context.Context, session *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, session)
}

// SessionFromContext finds the session in the context
func SessionFromContext(ctx context.Context) (*Session, bool) {
	raw, ok := ctx.Value(sessionCtxKey).(*Session)
	return raw, ok && raw != nil
}

// ActorFromContext returns the identity behind the session, if any
func ActorFromContext(ctx context.Context) (*Identity, bool) {
	session, ok := SessionFromContext(ctx)
	if !ok || session.Identity == nil {
		return nil, false
	}
	return session.Identity, true
}
