package lazarus

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StrikeResult is the outcome of a strike increment
type StrikeResult struct {
	Strikes  int  `json:"strikes"`
	Disabled bool `json:"disabled"`
	// Applied is false when the citizen was already at the cap
	Applied bool `json:"-"`
}

func strikeResult(update StrikeUpdate, threshold int) StrikeResult {
	return StrikeResult{
		Strikes:  update.Strikes,
		Disabled: update.Applied && update.Strikes >= threshold,
		Applied:  update.Applied,
	}
}

// StrikeLedger accumulates misconduct strikes against citizens and suspends
// the account when the cap is reached.
type StrikeLedger struct {
	repo      RepositoryManager
	notifier  Notifier
	activity  ActivitySink
	logger    Logger
	threshold int
	now       func() time.Time
}

// NewStrikeLedger creates a ledger with the default threshold
func NewStrikeLedger(repo RepositoryManager, notifier Notifier) *StrikeLedger {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &StrikeLedger{
		repo:      repo,
		notifier:  notifier,
		activity:  noopActivitySink{},
		logger:    defLogger{},
		threshold: MaxStrikes,
		now:       time.Now,
	}
}

func (l *StrikeLedger) WithActivitySink(sink ActivitySink) *StrikeLedger {
	l.activity = normalizeActivitySink(sink)
	return l
}

func (l *StrikeLedger) WithLogger(logger Logger) *StrikeLedger {
	if logger != nil {
		l.logger = logger
	}
	return l
}

// Threshold is the strike count that disables an account
func (l *StrikeLedger) Threshold() int {
	return l.threshold
}

// IncrementTx records a strike inside the caller's transaction. The
// notification is left to the caller so it can run after commit.
func (l *StrikeLedger) IncrementTx(ctx context.Context, tx bun.IDB, citizenID uuid.UUID) (StrikeResult, error) {
	update, err := l.repo.Identities().IncrementStrikesTx(ctx, tx, citizenID, l.threshold)
	if err != nil {
		if IsNotFound(err) {
			return StrikeResult{}, err
		}
		return StrikeResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to record strike")
	}
	return strikeResult(update, l.threshold), nil
}

// Increment records a strike in its own transaction and notifies the citizen
func (l *StrikeLedger) Increment(ctx context.Context, citizenID, incidentID uuid.UUID) (StrikeResult, error) {
	return l.increment(ctx, SystemActor, citizenID, incidentID)
}

// Strike records a strike by hand, outside any incident rejection. Entities
// and admins only.
func (l *StrikeLedger) Strike(ctx context.Context, actor *Identity, citizenID uuid.UUID) (StrikeResult, error) {
	if actor == nil || actor.Role == RoleCitizen {
		return StrikeResult{}, withMeta(ErrForbidden, map[string]any{
			"operation":  "strike_citizen",
			"citizen_id": citizenID.String(),
		})
	}
	return l.increment(ctx, actor.ActorRef(), citizenID, uuid.Nil)
}

func (l *StrikeLedger) increment(ctx context.Context, actor ActorRef, citizenID, incidentID uuid.UUID) (StrikeResult, error) {
	var result StrikeResult
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = l.IncrementTx(ctx, tx, citizenID)
		return err
	})
	if err != nil {
		return StrikeResult{}, err
	}

	if result.Applied {
		citizen, err := l.repo.Identities().FindByID(ctx, RoleCitizen, citizenID)
		if err != nil {
			l.logger.Warn("strike recorded but citizen lookup failed", "citizen_id", citizenID, "error", err)
			return result, nil
		}
		l.Notify(ctx, actor, citizen.Citizen, incidentID, result)
	}

	return result, nil
}

// Notify emits the strike notification and audit event for an applied
// strike. Failures are logged and swallowed.
func (l *StrikeLedger) Notify(ctx context.Context, actor ActorRef, citizen *Citizen, incidentID uuid.UUID, result StrikeResult) {
	if !result.Applied || citizen == nil {
		return
	}

	citizen.Strikes = result.Strikes
	citizen.Active = !result.Disabled && citizen.Active

	event := ActivityEvent{
		EventType: ActivityEventStrikeRecorded,
		Actor:     actor,
		Subject:   IdentityRef{ID: citizen.ID, Role: RoleCitizen},
		Metadata: map[string]any{
			"strikes":  result.Strikes,
			"disabled": result.Disabled,
		},
	}
	if incidentID != uuid.Nil {
		event.IncidentID = incidentID.String()
	}
	recordActivity(ctx, l.activity, l.logger, l.now, event)

	if err := l.notifier.SendStrike(ctx, citizen, result.Strikes, incidentID, result.Disabled); err != nil {
		l.logger.Warn("strike notification failed", "citizen_id", citizen.ID, "error", err)
	}
}

// Reactivate lowers a suspended citizen to one strike under the cap and
// enables the account. Admin only.
func (l *StrikeLedger) Reactivate(ctx context.Context, actor *Identity, citizenID uuid.UUID) (StrikeResult, error) {
	if !actor.IsAdmin() {
		return StrikeResult{}, withMeta(ErrForbidden, map[string]any{"operation": "reactivate_citizen"})
	}

	var update StrikeUpdate
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		update, err = l.repo.Identities().ReactivateTx(ctx, tx, citizenID, l.threshold-1)
		return err
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return StrikeResult{}, richErr
		}
		return StrikeResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reactivate citizen")
	}

	result := StrikeResult{Strikes: update.Strikes, Disabled: !update.Active, Applied: update.Applied}
	if !update.Applied {
		return result, nil
	}

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType: ActivityEventCitizenReactivated,
		Actor:     actor.ActorRef(),
		Subject:   IdentityRef{ID: citizenID, Role: RoleCitizen},
		Metadata:  map[string]any{"strikes": update.Strikes},
	})

	citizen, err := l.repo.Identities().FindByID(ctx, RoleCitizen, citizenID)
	if err != nil {
		l.logger.Warn("citizen reactivated but lookup failed", "citizen_id", citizenID, "error", err)
		return result, nil
	}
	if err := l.notifier.SendReactivated(ctx, citizen.Citizen, update.Strikes); err != nil {
		l.logger.Warn("reactivation notification failed", "citizen_id", citizenID, "error", err)
	}

	return result, nil
}
