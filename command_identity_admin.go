package lazarus

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IdentityAdmin holds the admin operations over all three collections
type IdentityAdmin struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewIdentityAdmin(repo RepositoryManager) *IdentityAdmin {
	return &IdentityAdmin{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

func (a *IdentityAdmin) WithActivitySink(sink ActivitySink) *IdentityAdmin {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a *IdentityAdmin) WithLogger(logger Logger) *IdentityAdmin {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// List returns every identity of the role
func (a *IdentityAdmin) List(ctx context.Context, actor *Identity, role RoleTag) ([]*Identity, error) {
	if !actor.IsAdmin() {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "list_identities"})
	}
	if !role.IsValid() {
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}
	return a.repo.Identities().List(ctx, role)
}

// Get returns one identity of the role
func (a *IdentityAdmin) Get(ctx context.Context, actor *Identity, role RoleTag, id uuid.UUID) (*Identity, error) {
	if !actor.IsAdmin() && actor.Ref() != (IdentityRef{ID: id, Role: role}) {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "get_identity"})
	}
	if !role.IsValid() {
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}
	return a.repo.Identities().FindByID(ctx, role, id)
}

// SetActive toggles the active flag. Admins cannot disable themselves.
// Enabling a citizen at the strike cap also lowers the counter to one under
// the cap so later strikes still apply.
func (a *IdentityAdmin) SetActive(ctx context.Context, actor *Identity, ref IdentityRef, active bool) (*Identity, error) {
	if !actor.IsAdmin() {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "set_active"})
	}
	if !ref.Role.IsValid() {
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": ref.Role})
	}
	if !active && actor.Ref() == ref {
		return nil, withMeta(ErrForbidden, map[string]any{
			"operation": "set_active",
			"reason":    "admins cannot disable their own account",
		})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var (
		updated     *Identity
		reactivated StrikeUpdate
	)
	err := a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = a.repo.Identities().SetActiveTx(ctx, tx, ref, active)
		if err != nil {
			return err
		}
		if !active || ref.Role != RoleCitizen || updated.Citizen.Strikes < MaxStrikes {
			return nil
		}
		// a capped citizen would never be struck again, drop them under the cap
		reactivated, err = a.repo.Identities().ReactivateTx(ctx, tx, ref.ID, MaxStrikes-1)
		if err != nil {
			return err
		}
		updated, err = a.repo.Identities().FindByIDTx(ctx, tx, ref.Role, ref.ID)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update identity status")
	}

	recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
		EventType: ActivityEventActiveChanged,
		Actor:     actor.ActorRef(),
		Subject:   ref,
		Metadata:  map[string]any{"active": active},
	})

	if reactivated.Applied {
		recordActivity(ctx, a.activity, a.logger, a.now, ActivityEvent{
			EventType: ActivityEventCitizenReactivated,
			Actor:     actor.ActorRef(),
			Subject:   ref,
			Metadata:  map[string]any{"strikes": reactivated.Strikes},
		})
	}

	return updated, nil
}
