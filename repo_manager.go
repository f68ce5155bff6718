package lazarus

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Identities() Identities
	Incidents() Incidents
	PasswordResets() PasswordResets
	Notifications() Notifications
}

type mngr struct {
	db             *bun.DB
	identities     Identities
	incidents      Incidents
	passwordResets PasswordResets
	notifications  Notifications
}

// NewRepositoryManager wires every bun repository on the same connection
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		identities:     NewIdentitiesRepository(db),
		incidents:      NewIncidentsRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
		notifications:  NewNotificationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.incidents == nil {
		return errors.New("repository incidents should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	if m.notifications == nil {
		return errors.New("repository notifications should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

// utcNow is the repository clock. sqlite compares timestamps as text so
// every stored time is UTC.
func utcNow() time.Time {
	return time.Now().UTC()
}

func (m mngr) Identities() Identities {
	return m.identities
}

func (m mngr) Incidents() Incidents {
	return m.incidents
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}

func (m mngr) Notifications() Notifications {
	return m.notifications
}
