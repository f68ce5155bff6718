package lazarus

import (
	"context"
	"time"
)

// Auther ties credential validation to session issuance
type Auther struct {
	validator    CredentialValidator
	tokens       TokenIssuer
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(validator CredentialValidator, tokens TokenIssuer) *Auther {
	return &Auther{
		validator:    validator,
		tokens:       tokens,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenIssuer returns the issuer used by this Authenticator
func (s *Auther) TokenIssuer() TokenIssuer {
	return s.tokens
}

// Login validates credentials and issues a session token
func (s *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.validator.ValidateCredentials(ctx, email, password)
	if err != nil {
		s.logger.Warn("Login validate credentials error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, IdentityRef{}, map[string]any{
			"email": NormalizeEmail(email),
			"error": err.Error(),
		})
		return nil, err
	}

	return s.issue(ctx, identity, map[string]any{"email": identity.Email()})
}

// LoginIdentity issues a session for an identity that was just created,
// used by citizen self registration.
func (s *Auther) LoginIdentity(ctx context.Context, identity *Identity) (*LoginResult, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}
	if !identity.IsActive() {
		return nil, ErrAccountDisabled
	}
	return s.issue(ctx, identity, map[string]any{"email": identity.Email(), "registration": true})
}

func (s *Auther) issue(ctx context.Context, identity *Identity, meta map[string]any) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(ctx, identity)
	if err != nil {
		s.logger.Error("Login failed to issue token", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, identity.ActorRef(), identity.Ref(), map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, identity.ActorRef(), identity.Ref(), meta)

	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Identity:  identity,
	}, nil
}

// SessionFromToken verifies a bearer token and resolves the acting identity
func (s *Auther) SessionFromToken(ctx context.Context, raw string) (*Session, error) {
	claims, err := s.tokens.Verify(ctx, raw)
	if err != nil {
		s.logger.Debug("SessionFromToken verification failed", "error", err)
		return nil, err
	}

	ref, err := claims.IdentityRef()
	if err != nil {
		return nil, err
	}

	identity, err := s.validator.ResolveByID(ctx, ref.ID, ref.Role)
	if err != nil {
		s.logger.Error("SessionFromToken failed to resolve identity", "error", err)
		return nil, err
	}

	if !identity.IsActive() {
		return nil, ErrAccountDisabled
	}

	return &Session{
		Identity:  identity,
		Claims:    claims,
		ExpiresAt: claims.Expires(),
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, subject IdentityRef, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		Subject:   subject,
		Metadata:  metadata,
	})
}
