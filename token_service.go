package lazarus

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the session lifetime
const DefaultTokenExpiration = 24 * time.Hour

// TokenService implements TokenIssuer with HS256 signed JWTs
type TokenService struct {
	signingKey      []byte
	tokenExpiration time.Duration
	issuer          string
	audience        jwt.ClaimStrings
	resolver        IdentityResolver
	decorator       ClaimsDecorator
	logger          Logger
	now             func() time.Time
}

var _ TokenIssuer = (*TokenService)(nil)

// NewTokenService creates a new TokenService instance. The resolver is used
// by Verify to re-check that the identity still exists and is active.
func NewTokenService(cfg Config, resolver IdentityResolver, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}

	expiration := cfg.GetTokenExpiration()
	if expiration <= 0 {
		expiration = DefaultTokenExpiration
	}

	return &TokenService{
		signingKey:      []byte(cfg.GetSigningKey()),
		tokenExpiration: expiration,
		issuer:          cfg.GetIssuer(),
		audience:        cfg.GetAudience(),
		resolver:        resolver,
		decorator:       noopClaimsDecorator{},
		logger:          logger,
		now:             time.Now,
	}
}

// WithClock injects a custom clock
func (ts *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		ts.now = clock
	}
	return ts
}

// WithClaimsDecorator sets the hook that adds extension claims
func (ts *TokenService) WithClaimsDecorator(decorator ClaimsDecorator) *TokenService {
	ts.decorator = normalizeClaimsDecorator(decorator)
	return ts
}

// Issue signs a session token for the identity
func (ts *TokenService) Issue(ctx context.Context, identity *Identity) (string, time.Time, error) {
	if identity == nil || identity.ID() == uuid.Nil {
		return "", time.Time{}, ErrIdentityNotFound
	}

	now := ts.now()
	expiresAt := now.Add(ts.tokenExpiration)

	var aud jwt.ClaimStrings
	if len(ts.audience) > 0 {
		aud = make(jwt.ClaimStrings, len(ts.audience))
		copy(aud, ts.audience)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   identity.ID().String(),
			Audience:  aud,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:      identity.ID().String(),
		UserRole: identity.Role,
		Email:    identity.Email(),
	}

	ensureTokenID(&claims.RegisteredClaims)

	snapshot := captureImmutableClaims(claims)
	if err := ts.decorator.Decorate(ctx, identity, claims); err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "claims decorator failed")
	}
	if err := snapshot.validate(claims); err != nil {
		ts.logger.Error("claims decorator mutated an identity claim", "error", err)
		return "", time.Time{}, err
	}

	signed, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// SignClaims signs arbitrary JWT claims using the configured signing key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Parse validates signature and expiry only
func (ts *TokenService) Parse(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService parse encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(errors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		ts.logger.Error("TokenService parse could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Verify parses the token and re-resolves the identity so a disabled or
// removed account loses access immediately.
func (ts *TokenService) Verify(ctx context.Context, tokenString string) (*JWTClaims, error) {
	claims, err := ts.Parse(tokenString)
	if err != nil {
		return nil, err
	}

	ref, err := claims.IdentityRef()
	if err != nil {
		return nil, err
	}

	if ts.resolver == nil {
		return claims, nil
	}

	identity, err := ts.resolver.ResolveByID(ctx, ref.ID, ref.Role)
	if err != nil {
		if IsNotFound(err) {
			return nil, withMeta(ErrTokenMalformed, map[string]any{"reason": "identity no longer exists"})
		}
		return nil, err
	}

	if !identity.IsActive() {
		return nil, withMeta(ErrAccountDisabled, map[string]any{"role": ref.Role})
	}

	return claims, nil
}
