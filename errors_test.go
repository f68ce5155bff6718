package lazarus_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"identity not found", lazarus.ErrIdentityNotFound, lazarus.IsNotFound},
		{"incident not found", lazarus.ErrIncidentNotFound, lazarus.IsNotFound},
		{"bad credentials", lazarus.ErrInvalidCredentials, lazarus.IsUnauthorized},
		{"disabled", lazarus.ErrAccountDisabled, lazarus.IsUnauthorized},
		{"forbidden", lazarus.ErrForbidden, lazarus.IsForbidden},
		{"email taken", lazarus.ErrEmailTaken, lazarus.IsConflict},
		{"terminal", lazarus.ErrTerminalState, lazarus.IsConflict},
		{"transition", lazarus.ErrInvalidTransition, lazarus.IsValidation},
		{"bad input", lazarus.ErrInvalidRole, lazarus.IsValidation},
		{"wrapped", fmt.Errorf("outer: %w", lazarus.ErrIncidentNotFound), lazarus.IsNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.check(tc.err))
		})
	}

	plain := errors.New("boom")
	assert.False(t, lazarus.IsNotFound(plain))
	assert.False(t, lazarus.IsValidation(plain))
	assert.False(t, lazarus.HasTextCode(plain, lazarus.TextCodeForbidden))
	assert.False(t, lazarus.IsNotFound(nil))
}

func TestTokenErrorHelpers(t *testing.T) {
	assert.True(t, lazarus.IsTokenExpiredError(lazarus.ErrTokenExpired))
	assert.True(t, lazarus.IsTokenExpiredError(errors.New("token has invalid claims: token is expired")))
	assert.False(t, lazarus.IsTokenExpiredError(nil))
	assert.False(t, lazarus.IsTokenExpiredError(lazarus.ErrTokenMalformed))

	assert.True(t, lazarus.IsMalformedError(lazarus.ErrTokenMalformed))
	assert.True(t, lazarus.IsMalformedError(errors.New("token is malformed: could not base64 decode header")))
	assert.False(t, lazarus.IsMalformedError(nil))
	assert.False(t, lazarus.IsMalformedError(lazarus.ErrTokenExpired))
}

func TestSentinelMetadataDoesNotLeak(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	svc := lazarus.NewNotificationService(w.repo)

	first, second := uuid.New(), uuid.New()
	_, errA := svc.MarkRead(ctx, w.admin, first)
	_, errB := svc.MarkRead(ctx, w.admin, second)

	var a, b *goerrors.Error
	require.True(t, goerrors.As(errA, &a))
	require.True(t, goerrors.As(errB, &b))

	assert.Equal(t, first.String(), a.Metadata["id"])
	assert.Equal(t, second.String(), b.Metadata["id"])
	assert.Empty(t, lazarus.ErrNotificationNotFound.Metadata)
	assert.Equal(t, lazarus.TextCodeNotificationNotFound, a.TextCode)
}
