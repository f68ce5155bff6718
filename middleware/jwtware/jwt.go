package jwtware

import (
	"context"
	"errors"
	"strings"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup       = "header:" + router.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// SessionResolver verifies a raw bearer token and returns the caller
type SessionResolver interface {
	SessionFromToken(ctx context.Context, raw string) (*lazarus.Session, error)
}

// ValidationListener is invoked after a token has been verified but before
// the request proceeds.
type ValidationListener func(ctx router.Context, session *lazarus.Session) error

type Config struct {
	Filter func(router.Context) bool
	// SuccessHandler replaces the wrapped handler when set
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// Resolver is required
	Resolver SessionResolver
	// Roles restricts the route to the listed roles when not empty
	Roles []lazarus.RoleTag

	ValidationListeners []ValidationListener
}

// New returns a middleware that resolves the bearer token into a session,
// stores it in Locals under ContextKey and in the request context.
func New(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)
	extractors := cfg.getExtractors()

	return func(hf router.HandlerFunc) router.HandlerFunc {
		next := hf
		if cfg.SuccessHandler != nil {
			next = cfg.SuccessHandler
		}

		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return hf(ctx)
			}

			raw, err := ExtractRawToken(ctx, extractors)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			session, err := cfg.Resolver.SessionFromToken(ctx.Context(), raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, session); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			if err := performRoleCheck(session, cfg.Roles); err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			ctx.Locals(cfg.ContextKey, session)
			ctx.SetContext(lazarus.WithSession(ctx.Context(), session))

			return next(ctx)
		}
	}
}

// SessionFrom returns the session stored by the middleware
func SessionFrom(ctx router.Context, contextKey ...string) (*lazarus.Session, bool) {
	if session, ok := lazarus.SessionFromContext(ctx.Context()); ok {
		return session, true
	}
	key := "session"
	if len(contextKey) > 0 && contextKey[0] != "" {
		key = contextKey[0]
	}
	session, ok := ctx.Locals(key).(*lazarus.Session)
	return session, ok && session != nil
}

func performRoleCheck(session *lazarus.Session, roles []lazarus.RoleTag) error {
	if len(roles) == 0 {
		return nil
	}
	for _, role := range roles {
		if session.Role() == role {
			return nil
		}
	}
	return lazarus.ErrForbidden.Clone().WithMetadata(map[string]any{
		"role":     session.Role(),
		"required": roles,
	})
}

func ExtractRawToken(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	err := ErrJWTMissingOrMalformed

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			if errors.Is(err, ErrJWTMissingOrMalformed) {
				return c.Status(router.StatusUnauthorized).SendString(ErrJWTMissingOrMalformed.Error())
			}
			if lazarus.IsForbidden(err) {
				return c.Status(router.StatusForbidden).SendString("Forbidden")
			}
			return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
		}
	}

	if cfg.Resolver == nil {
		panic("LAZARUS: JWT middleware configuration: Resolver is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "session"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, session *lazarus.Session) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, session); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:Authorization,query:token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) JWTExtractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

func jwtFromQuery(param string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func jwtFromCookie(name string) JWTExtractor {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
