package lazarus

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// DefaultResetTokenExpiration is how long a reset token stays usable
const DefaultResetTokenExpiration = time.Hour

// resetTokenBytes gives 256 bits of entropy
const resetTokenBytes = 32

type RequestPasswordResetMessage struct {
	Email string `json:"email"`
}

func (e RequestPasswordResetMessage) Type() string { return "identity.password_reset.request" }

func (e RequestPasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
	)
}

type CompletePasswordResetMessage struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (e CompletePasswordResetMessage) Type() string { return "identity.password_reset.complete" }

func (e CompletePasswordResetMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
	)
}

// PasswordResetFlow issues and redeems single use reset tokens
type PasswordResetFlow struct {
	repo     RepositoryManager
	resolver IdentityResolver
	notifier Notifier
	activity ActivitySink
	logger   Logger
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// NewPasswordResetFlow creates a flow with sane defaults.
func NewPasswordResetFlow(repo RepositoryManager, resolver IdentityResolver, notifier Notifier) *PasswordResetFlow {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &PasswordResetFlow{
		repo:     repo,
		resolver: resolver,
		notifier: notifier,
		activity: noopActivitySink{},
		logger:   defLogger{},
		ttl:      DefaultResetTokenExpiration,
		now:      time.Now,
		newToken: randomResetToken,
	}
}

func (f *PasswordResetFlow) WithActivitySink(sink ActivitySink) *PasswordResetFlow {
	f.activity = normalizeActivitySink(sink)
	return f
}

func (f *PasswordResetFlow) WithLogger(logger Logger) *PasswordResetFlow {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// WithTTL overrides the token lifetime
func (f *PasswordResetFlow) WithTTL(ttl time.Duration) *PasswordResetFlow {
	if ttl > 0 {
		f.ttl = ttl
	}
	return f
}

func (f *PasswordResetFlow) WithClock(clock func() time.Time) *PasswordResetFlow {
	if clock != nil {
		f.now = clock
	}
	return f
}

// Request creates a reset token for a known email and delivers it. The
// returned flag is false for an unknown email, in which case nothing is
// written. A delivery failure rolls back the token row.
func (f *PasswordResetFlow) Request(ctx context.Context, event RequestPasswordResetMessage) (bool, error) {
	select {
	case <-ctx.Done():
		return false, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset request")
	default:
	}

	if err := event.Validate(); err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset request").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identity, err := f.resolver.ResolveByEmail(ctx, event.Email)
	if err != nil {
		if IsNotFound(err) {
			f.logger.Debug("password reset requested for unknown email")
			return false, nil
		}
		return false, err
	}

	token, err := f.newToken()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate reset token")
	}

	now := f.now()
	err = f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &PasswordResetToken{
			Email:     identity.Email(),
			Token:     token,
			Role:      identity.Role,
			ExpiresAt: now.Add(f.ttl),
			CreatedAt: now,
		}
		if _, err := f.repo.PasswordResets().CreateTx(ctx, tx, record); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		}

		if err := f.notifier.SendPasswordReset(ctx, identity.Email(), identity.DisplayName(), token); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver password reset").
				WithTextCode("RESET_DELIVERY_FAILED")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return false, richErr
		}
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	recordActivity(ctx, f.activity, f.logger, f.now, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Actor:     identity.ActorRef(),
		Subject:   identity.Ref(),
	})

	return true, nil
}

// Complete redeems a token and stores the new credential. The token is
// consumed with a conditional update so only one completion can succeed.
func (f *PasswordResetFlow) Complete(ctx context.Context, event CompletePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset completion")
	default:
	}

	if err := event.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password reset payload").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	var identity *Identity
	err = f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset, err := f.repo.PasswordResets().ConsumeTx(ctx, tx, event.Token, f.now())
		if err != nil {
			return err
		}

		identity, err = f.repo.Identities().FindByEmailTx(ctx, tx, reset.Role, reset.Email)
		if err != nil {
			if IsNotFound(err) {
				return ErrInvalidResetToken.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve identity for password reset")
		}

		if err := f.repo.Identities().UpdatePasswordTx(ctx, tx, identity.Ref(), hash); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update password")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, f.activity, f.logger, f.now, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor:     identity.ActorRef(),
		Subject:   identity.Ref(),
	})

	return nil
}

func randomResetToken() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
