package lazarus

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConsumeResetTokenSQL marks a token used only if it is still usable, so at
// most one caller ever gets the row back.
var ConsumeResetTokenSQL = `UPDATE "password_reset_tokens"
SET
	"used" = TRUE
WHERE
	"token" = ?
AND "used" = FALSE
AND "expires_at" > ?
RETURNING "id", "email", "token", "role", "expires_at", "used", "created_at";`

// PasswordResets stores single use reset tokens
type PasswordResets interface {
	CreateTx(ctx context.Context, tx bun.IDB, token *PasswordResetToken) (*PasswordResetToken, error)
	// ConsumeTx returns ErrInvalidResetToken for unknown, used or expired tokens
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PasswordResetToken, error)
}

type passwordResets struct {
	repo repository.Repository[*PasswordResetToken]
}

var _ PasswordResets = (*passwordResets)(nil)

// NewPasswordResetsRepository returns the bun backed token store
func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	handlers := repository.ModelHandlers[*PasswordResetToken]{
		NewRecord: func() *PasswordResetToken {
			return &PasswordResetToken{}
		},
		GetID: func(record *PasswordResetToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordResetToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "token"
		},
	}
	return &passwordResets{repo: repository.NewRepository(db, handlers)}
}

func (r *passwordResets) CreateTx(ctx context.Context, tx bun.IDB, token *PasswordResetToken) (*PasswordResetToken, error) {
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	token.Email = NormalizeEmail(token.Email)
	if token.CreatedAt.IsZero() {
		token.CreatedAt = utcNow()
	}
	token.CreatedAt = token.CreatedAt.UTC()
	token.ExpiresAt = token.ExpiresAt.UTC()
	return r.repo.CreateTx(ctx, tx, token)
}

func (r *passwordResets) ConsumeTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PasswordResetToken, error) {
	record := &PasswordResetToken{}
	err := tx.NewRaw(ConsumeResetTokenSQL, token, now.UTC()).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err) {
			return nil, ErrInvalidResetToken.Clone()
		}
		return nil, err
	}
	return record, nil
}
