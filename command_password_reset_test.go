package lazarus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordResetUnknownEmailWritesNothing(t *testing.T) {
	w := newWorld(t)
	flow := lazarus.NewPasswordResetFlow(w.repo, w.resolver, w.notifier)

	sent, err := flow.Request(context.Background(), lazarus.RequestPasswordResetMessage{Email: "ghost@lazarus.test"})
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, w.notifier.token("ghost@lazarus.test"))
}

func TestPasswordResetTokenIsSingleUse(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.citizen(t, "ana@lazarus.test", "1-1111-1111")
	flow := lazarus.NewPasswordResetFlow(w.repo, w.resolver, w.notifier).WithActivitySink(w.sink)

	sent, err := flow.Request(ctx, lazarus.RequestPasswordResetMessage{Email: "ana@lazarus.test"})
	require.NoError(t, err)
	require.True(t, sent)

	token := w.notifier.token("ana@lazarus.test")
	require.Len(t, token, 64)

	err = flow.Complete(ctx, lazarus.CompletePasswordResetMessage{Token: token, Password: "brand-new-secret"})
	require.NoError(t, err)

	_, err = w.resolver.ValidateCredentials(ctx, "ana@lazarus.test", "brand-new-secret")
	require.NoError(t, err)
	_, err = w.resolver.ValidateCredentials(ctx, "ana@lazarus.test", testPassword)
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeInvalidCredentials))

	err = flow.Complete(ctx, lazarus.CompletePasswordResetMessage{Token: token, Password: "another-secret"})
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeInvalidResetToken))

	assert.Len(t, w.sink.ofType(lazarus.ActivityEventPasswordResetRequest), 1)
	assert.Len(t, w.sink.ofType(lazarus.ActivityEventPasswordResetSuccess), 1)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.entity(t, "bomberos@lazarus.test")

	issued := time.Now().Add(-2 * time.Hour)
	flow := lazarus.NewPasswordResetFlow(w.repo, w.resolver, w.notifier).
		WithClock(func() time.Time { return issued })

	_, err := flow.Request(ctx, lazarus.RequestPasswordResetMessage{Email: "bomberos@lazarus.test"})
	require.NoError(t, err)
	token := w.notifier.token("bomberos@lazarus.test")

	flow.WithClock(time.Now)
	err = flow.Complete(ctx, lazarus.CompletePasswordResetMessage{Token: token, Password: "brand-new-secret"})
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeInvalidResetToken))

	_, err = w.resolver.ValidateCredentials(ctx, "bomberos@lazarus.test", testPassword)
	assert.NoError(t, err)
}

func TestPasswordResetDeliveryFailureRollsBack(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	w.citizen(t, "ana@lazarus.test", "1-1111-1111")

	w.notifier.resetErr = errors.New("smtp down")
	flow := lazarus.NewPasswordResetFlow(w.repo, w.resolver, w.notifier)

	sent, err := flow.Request(ctx, lazarus.RequestPasswordResetMessage{Email: "ana@lazarus.test"})
	require.Error(t, err)
	assert.False(t, sent)
	assert.True(t, lazarus.HasTextCode(err, "RESET_DELIVERY_FAILED"))
}

func TestPasswordResetValidation(t *testing.T) {
	w := newWorld(t)
	flow := lazarus.NewPasswordResetFlow(w.repo, w.resolver, w.notifier)

	_, err := flow.Request(context.Background(), lazarus.RequestPasswordResetMessage{Email: "not-an-email"})
	assert.True(t, lazarus.IsValidation(err))

	err = flow.Complete(context.Background(), lazarus.CompletePasswordResetMessage{Token: "abc", Password: "short"})
	assert.True(t, lazarus.IsValidation(err))

	err = flow.Complete(context.Background(), lazarus.CompletePasswordResetMessage{Token: "unknown", Password: "long-enough-password"})
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeInvalidResetToken))
}
