package lazarus

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IncrementStrikesSQL bumps the counter and disables the account in one
// statement. Rows already at the threshold are not touched.
var IncrementStrikesSQL = `UPDATE "citizens"
SET
	"strikes" = "strikes" + 1,
	"is_active" = CASE WHEN "strikes" + 1 >= ? THEN FALSE ELSE "is_active" END,
	"updated_at" = ?
WHERE
	"id" = ?
AND "strikes" < ?
RETURNING "strikes", "is_active";`

// ReactivateCitizenSQL lowers a suspended citizen back under the threshold
var ReactivateCitizenSQL = `UPDATE "citizens"
SET
	"strikes" = ?,
	"is_active" = TRUE,
	"updated_at" = ?
WHERE
	"id" = ?
AND "strikes" >= ?
RETURNING "strikes", "is_active";`

// StrikeUpdate is the post statement state of a citizen counter
type StrikeUpdate struct {
	Strikes int
	Active  bool
	// Applied is false when the row was already at the threshold
	Applied bool
}

// Identities is the store for the three identity collections
type Identities interface {
	FindByEmail(ctx context.Context, role RoleTag, email string) (*Identity, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, role RoleTag, email string) (*Identity, error)
	FindByID(ctx context.Context, role RoleTag, id uuid.UUID) (*Identity, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, role RoleTag, id uuid.UUID) (*Identity, error)
	List(ctx context.Context, role RoleTag) ([]*Identity, error)
	Count(ctx context.Context, role RoleTag) (int, error)

	// EmailAvailableTx is the single cross collection uniqueness check
	EmailAvailableTx(ctx context.Context, tx bun.IDB, email string) (bool, error)
	LegalIDAvailableTx(ctx context.Context, tx bun.IDB, legalID string) (bool, error)

	CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)
	UpdatePasswordTx(ctx context.Context, tx bun.IDB, ref IdentityRef, passwordHash string) error
	SetActiveTx(ctx context.Context, tx bun.IDB, ref IdentityRef, active bool) (*Identity, error)
	IncrementStrikesTx(ctx context.Context, tx bun.IDB, citizenID uuid.UUID, threshold int) (StrikeUpdate, error)
	ReactivateTx(ctx context.Context, tx bun.IDB, citizenID uuid.UUID, strikes int) (StrikeUpdate, error)
}

type identities struct {
	db       *bun.DB
	citizens repository.Repository[*Citizen]
	entities repository.Repository[*Entity]
	admins   repository.Repository[*Admin]
	now      func() time.Time
}

var _ Identities = (*identities)(nil)

// NewIdentitiesRepository returns the bun backed identity store
func NewIdentitiesRepository(db *bun.DB) Identities {
	return &identities{
		db: db,
		citizens: repository.NewRepository[*Citizen](db, repository.ModelHandlers[*Citizen]{
			NewRecord: func() *Citizen { return &Citizen{} },
			GetID: func(c *Citizen) uuid.UUID {
				if c == nil {
					return uuid.Nil
				}
				return c.ID
			},
			SetID: func(c *Citizen, id uuid.UUID) {
				if c != nil {
					c.ID = id
				}
			},
			GetIdentifier: func() string { return "email" },
		}),
		entities: repository.NewRepository[*Entity](db, repository.ModelHandlers[*Entity]{
			NewRecord: func() *Entity { return &Entity{} },
			GetID: func(e *Entity) uuid.UUID {
				if e == nil {
					return uuid.Nil
				}
				return e.ID
			},
			SetID: func(e *Entity, id uuid.UUID) {
				if e != nil {
					e.ID = id
				}
			},
			GetIdentifier: func() string { return "email" },
		}),
		admins: repository.NewRepository[*Admin](db, repository.ModelHandlers[*Admin]{
			NewRecord: func() *Admin { return &Admin{} },
			GetID: func(a *Admin) uuid.UUID {
				if a == nil {
					return uuid.Nil
				}
				return a.ID
			},
			SetID: func(a *Admin, id uuid.UUID) {
				if a != nil {
					a.ID = id
				}
			},
			GetIdentifier: func() string { return "email" },
		}),
		now: utcNow,
	}
}

func (r *identities) FindByEmail(ctx context.Context, role RoleTag, email string) (*Identity, error) {
	return r.FindByEmailTx(ctx, r.db, role, email)
}

func (r *identities) FindByEmailTx(ctx context.Context, tx bun.IDB, role RoleTag, email string) (*Identity, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrIdentityNotFound
	}

	var (
		identity *Identity
		err      error
	)

	switch role {
	case RoleCitizen:
		var rec *Citizen
		rec, err = r.citizens.GetByIdentifierTx(ctx, tx, email)
		identity = CitizenIdentity(rec)
	case RoleEntity:
		var rec *Entity
		rec, err = r.entities.GetByIdentifierTx(ctx, tx, email)
		identity = EntityIdentity(rec)
	case RoleAdmin:
		var rec *Admin
		rec, err = r.admins.GetByIdentifierTx(ctx, tx, email)
		identity = AdminIdentity(rec)
	default:
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}

	if err != nil {
		return nil, notFoundOr(err, ErrIdentityNotFound, map[string]any{"role": role})
	}

	return identity, nil
}

func (r *identities) FindByID(ctx context.Context, role RoleTag, id uuid.UUID) (*Identity, error) {
	return r.FindByIDTx(ctx, r.db, role, id)
}

func (r *identities) FindByIDTx(ctx context.Context, tx bun.IDB, role RoleTag, id uuid.UUID) (*Identity, error) {
	var (
		identity *Identity
		err      error
	)

	switch role {
	case RoleCitizen:
		rec := &Citizen{}
		err = tx.NewSelect().Model(rec).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
		identity = CitizenIdentity(rec)
	case RoleEntity:
		rec := &Entity{}
		err = tx.NewSelect().Model(rec).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
		identity = EntityIdentity(rec)
	case RoleAdmin:
		rec := &Admin{}
		err = tx.NewSelect().Model(rec).Where("?TableAlias.id = ?", id).Limit(1).Scan(ctx)
		identity = AdminIdentity(rec)
	default:
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}

	if err != nil {
		return nil, notFoundOr(err, ErrIdentityNotFound, map[string]any{
			"role": role,
			"id":   id.String(),
		})
	}

	return identity, nil
}

func (r *identities) List(ctx context.Context, role RoleTag) ([]*Identity, error) {
	out := []*Identity{}
	switch role {
	case RoleCitizen:
		var recs []*Citizen
		if err := r.db.NewSelect().Model(&recs).Order("created_at DESC").Scan(ctx); err != nil {
			return nil, err
		}
		for _, rec := range recs {
			out = append(out, CitizenIdentity(rec))
		}
	case RoleEntity:
		var recs []*Entity
		if err := r.db.NewSelect().Model(&recs).Order("created_at DESC").Scan(ctx); err != nil {
			return nil, err
		}
		for _, rec := range recs {
			out = append(out, EntityIdentity(rec))
		}
	case RoleAdmin:
		var recs []*Admin
		if err := r.db.NewSelect().Model(&recs).Order("created_at DESC").Scan(ctx); err != nil {
			return nil, err
		}
		for _, rec := range recs {
			out = append(out, AdminIdentity(rec))
		}
	default:
		return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
	}
	return out, nil
}

func (r *identities) Count(ctx context.Context, role RoleTag) (int, error) {
	model, err := roleModel(role)
	if err != nil {
		return 0, err
	}
	return r.db.NewSelect().Model(model).Count(ctx)
}

func (r *identities) EmailAvailableTx(ctx context.Context, tx bun.IDB, email string) (bool, error) {
	email = NormalizeEmail(email)
	for _, role := range ResolutionOrder {
		model, _ := roleModel(role)
		exists, err := tx.NewSelect().Model(model).Where("email = ?", email).Exists(ctx)
		if err != nil {
			return false, err
		}
		if exists {
			return false, nil
		}
	}
	return true, nil
}

func (r *identities) LegalIDAvailableTx(ctx context.Context, tx bun.IDB, legalID string) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*Citizen)(nil)).
		Where("legal_id = ?", strings.TrimSpace(legalID)).
		Exists(ctx)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (r *identities) CreateTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	if identity == nil {
		return nil, ErrInvalidRole
	}

	now := r.now()
	switch identity.Role {
	case RoleCitizen:
		rec := identity.Citizen
		prepareCitizenDefaults(rec, now)
		created, err := r.citizens.CreateTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		return CitizenIdentity(created), nil
	case RoleEntity:
		rec := identity.Entity
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Email = NormalizeEmail(rec.Email)
		rec.CreatedAt = now
		created, err := r.entities.CreateTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		return EntityIdentity(created), nil
	case RoleAdmin:
		rec := identity.Admin
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		rec.Email = NormalizeEmail(rec.Email)
		rec.CreatedAt = now
		created, err := r.admins.CreateTx(ctx, tx, rec)
		if err != nil {
			return nil, err
		}
		return AdminIdentity(created), nil
	}

	return nil, withMeta(ErrInvalidRole, map[string]any{"role": identity.Role})
}

func (r *identities) UpdatePasswordTx(ctx context.Context, tx bun.IDB, ref IdentityRef, passwordHash string) error {
	model, err := roleModel(ref.Role)
	if err != nil {
		return err
	}

	res, err := tx.NewUpdate().
		Model(model).
		Set("password_hash = ?", passwordHash).
		Where("id = ?", ref.ID).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return withMeta(ErrIdentityNotFound, map[string]any{
			"role": ref.Role,
			"id":   ref.ID.String(),
		})
	}

	return nil
}

func (r *identities) SetActiveTx(ctx context.Context, tx bun.IDB, ref IdentityRef, active bool) (*Identity, error) {
	model, err := roleModel(ref.Role)
	if err != nil {
		return nil, err
	}

	res, err := tx.NewUpdate().
		Model(model).
		Set("is_active = ?", active).
		Where("id = ?", ref.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, withMeta(ErrIdentityNotFound, map[string]any{
			"role": ref.Role,
			"id":   ref.ID.String(),
		})
	}

	return r.FindByIDTx(ctx, tx, ref.Role, ref.ID)
}

func (r *identities) IncrementStrikesTx(ctx context.Context, tx bun.IDB, citizenID uuid.UUID, threshold int) (StrikeUpdate, error) {
	update := StrikeUpdate{}
	err := tx.NewRaw(IncrementStrikesSQL, threshold, r.now(), citizenID, threshold).
		Scan(ctx, &update.Strikes, &update.Active)

	if err == nil {
		update.Applied = true
		return update, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return update, err
	}

	// nothing matched: either unknown citizen or already at the threshold
	identity, err := r.FindByIDTx(ctx, tx, RoleCitizen, citizenID)
	if err != nil {
		return update, err
	}

	update.Strikes = identity.Citizen.Strikes
	update.Active = identity.Citizen.Active
	return update, nil
}

func (r *identities) ReactivateTx(ctx context.Context, tx bun.IDB, citizenID uuid.UUID, strikes int) (StrikeUpdate, error) {
	update := StrikeUpdate{}
	err := tx.NewRaw(ReactivateCitizenSQL, strikes, r.now(), citizenID, MaxStrikes).
		Scan(ctx, &update.Strikes, &update.Active)

	if err == nil {
		update.Applied = true
		return update, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return update, err
	}

	identity, err := r.FindByIDTx(ctx, tx, RoleCitizen, citizenID)
	if err != nil {
		return update, err
	}

	update.Strikes = identity.Citizen.Strikes
	update.Active = identity.Citizen.Active
	return update, nil
}

func roleModel(role RoleTag) (any, error) {
	switch role {
	case RoleCitizen:
		return (*Citizen)(nil), nil
	case RoleEntity:
		return (*Entity)(nil), nil
	case RoleAdmin:
		return (*Admin)(nil), nil
	}
	return nil, withMeta(ErrInvalidRole, map[string]any{"role": role})
}

func prepareCitizenDefaults(rec *Citizen, now time.Time) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.Email = NormalizeEmail(rec.Email)
	rec.LegalID = strings.TrimSpace(rec.LegalID)
	if rec.Strikes < 0 {
		rec.Strikes = 0
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
}

// NormalizeEmail lower cases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFoundOr(err error, notFound *goerrors.Error, meta map[string]any) error {
	if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
		return withMeta(notFound, meta)
	}
	return err
}
