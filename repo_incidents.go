package lazarus

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ArchiveIncidentsSQL stamps every unarchived incident created before the
// cutoff. Already archived rows are never touched again.
var ArchiveIncidentsSQL = `UPDATE "incidents"
SET
	"archived_at" = ?
WHERE
	"archived_at" IS NULL
AND "created_at" < ?
RETURNING *;`

// IncidentFilter narrows incident listings, zero values are ignored
type IncidentFilter struct {
	Type            IncidentType
	Severity        Severity
	Status          IncidentStatus
	ReporterID      uuid.UUID
	IncludeArchived bool
	Limit           int
}

// IncidentPatch is a partial update. Nil fields are left untouched.
type IncidentPatch struct {
	Type        *IncidentType   `json:"type,omitempty"`
	Description *string         `json:"description,omitempty"`
	Severity    *Severity       `json:"severity,omitempty"`
	Latitude    *float64        `json:"latitude,omitempty"`
	Longitude   *float64        `json:"longitude,omitempty"`
	Address     *string         `json:"address,omitempty"`
	Status      *IncidentStatus `json:"status,omitempty"`
}

// TouchesContent reports whether any non status field is set
func (p IncidentPatch) TouchesContent() bool {
	return p.Type != nil ||
		p.Description != nil ||
		p.Severity != nil ||
		p.Latitude != nil ||
		p.Longitude != nil ||
		p.Address != nil
}

// TouchesStatus reports whether the status field is set
func (p IncidentPatch) TouchesStatus() bool {
	return p.Status != nil
}

// IsEmpty reports a patch without fields
func (p IncidentPatch) IsEmpty() bool {
	return !p.TouchesContent() && !p.TouchesStatus()
}

// Apply copies the set fields into the incident
func (p IncidentPatch) Apply(incident *Incident) {
	if p.Type != nil {
		incident.Type = *p.Type
	}
	if p.Description != nil {
		incident.Description = *p.Description
	}
	if p.Severity != nil {
		incident.Severity = *p.Severity
	}
	if p.Latitude != nil {
		incident.Latitude = RoundCoordinate(*p.Latitude)
	}
	if p.Longitude != nil {
		incident.Longitude = RoundCoordinate(*p.Longitude)
	}
	if p.Address != nil {
		incident.Address = *p.Address
	}
	if p.Status != nil {
		incident.Status = *p.Status
	}
}

// CountBucket is a grouped count row
type CountBucket struct {
	Key   string `bun:"key" json:"key"`
	Count int    `bun:"count" json:"count"`
}

// Incidents is the incident and media store
type Incidents interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Incident, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Incident, error)
	List(ctx context.Context, filter IncidentFilter) ([]*Incident, error)
	WithinBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64) ([]*Incident, error)

	CreateTx(ctx context.Context, tx bun.IDB, incident *Incident) (*Incident, error)
	// UpdateTx writes the patch only if the row still has the expected status
	// and is not archived. ErrConcurrentModification otherwise.
	UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected IncidentStatus, patch IncidentPatch) (*Incident, error)
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	// ArchiveOlderThanTx marks unarchived incidents created before cutoff and
	// returns only the rows changed by this call.
	ArchiveOlderThanTx(ctx context.Context, tx bun.IDB, cutoff, now time.Time) ([]*Incident, error)

	AttachMediaTx(ctx context.Context, tx bun.IDB, media []*IncidentMedia) error
	ListMedia(ctx context.Context, incidentID uuid.UUID) ([]*IncidentMedia, error)
	GetMedia(ctx context.Context, id uuid.UUID) (*IncidentMedia, error)
	// DeleteMediaTx removes the incident attachments, or only the listed
	// ones when ids is not empty, and returns the removed rows.
	DeleteMediaTx(ctx context.Context, tx bun.IDB, incidentID uuid.UUID, ids ...uuid.UUID) ([]*IncidentMedia, error)

	CountTotal(ctx context.Context) (int, error)
	CountArchived(ctx context.Context) (int, error)
	CountBy(ctx context.Context, column string) ([]CountBucket, error)
	CountByReporter(ctx context.Context, reporterID uuid.UUID) ([]CountBucket, error)
	// DailyCounts groups incidents created since the cutoff by UTC day
	DailyCounts(ctx context.Context, since time.Time) ([]CountBucket, error)
	Points(ctx context.Context) ([]IncidentPoint, error)
}

// IncidentPoint is the map marker projection of an unarchived incident
type IncidentPoint struct {
	ID        uuid.UUID      `bun:"id" json:"id"`
	Latitude  float64        `bun:"latitude" json:"latitude"`
	Longitude float64        `bun:"longitude" json:"longitude"`
	Type      IncidentType   `bun:"type" json:"type"`
	Severity  Severity       `bun:"severity" json:"severity"`
	Status    IncidentStatus `bun:"status" json:"status"`
}

type incidents struct {
	db   *bun.DB
	repo repository.Repository[*Incident]
	now  func() time.Time
}

var _ Incidents = (*incidents)(nil)

// NewIncidentsRepository returns the bun backed incident store
func NewIncidentsRepository(db *bun.DB) Incidents {
	return &incidents{
		db: db,
		repo: repository.NewRepository[*Incident](db, repository.ModelHandlers[*Incident]{
			NewRecord: func() *Incident { return &Incident{} },
			GetID: func(i *Incident) uuid.UUID {
				if i == nil {
					return uuid.Nil
				}
				return i.ID
			},
			SetID: func(i *Incident, id uuid.UUID) {
				if i != nil {
					i.ID = id
				}
			},
		}),
		now: utcNow,
	}
}

func (r *incidents) GetByID(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *incidents) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Incident, error) {
	record := &Incident{}
	err := tx.NewSelect().
		Model(record).
		Relation("Reporter").
		Relation("Media").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrIncidentNotFound, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (r *incidents) List(ctx context.Context, filter IncidentFilter) ([]*Incident, error) {
	records := []*Incident{}
	q := r.db.NewSelect().
		Model(&records).
		Relation("Reporter")

	if filter.Type != "" {
		q = q.Where("?TableAlias.type = ?", filter.Type)
	}
	if filter.Severity != "" {
		q = q.Where("?TableAlias.severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}
	if filter.ReporterID != uuid.Nil {
		q = q.Where("?TableAlias.reporter_id = ?", filter.ReporterID)
	}
	if !filter.IncludeArchived {
		q = q.Where("?TableAlias.archived_at IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	if err := q.Order("inc.created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *incidents) WithinBox(ctx context.Context, minLat, maxLat, minLng, maxLng float64) ([]*Incident, error) {
	records := []*Incident{}
	err := r.db.NewSelect().
		Model(&records).
		Relation("Reporter").
		Where("?TableAlias.archived_at IS NULL").
		Where("?TableAlias.latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("?TableAlias.longitude BETWEEN ? AND ?", minLng, maxLng).
		Order("inc.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *incidents) CreateTx(ctx context.Context, tx bun.IDB, incident *Incident) (*Incident, error) {
	prepareIncidentDefaults(incident, r.now())
	return r.repo.CreateTx(ctx, tx, incident)
}

func (r *incidents) UpdateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, expected IncidentStatus, patch IncidentPatch) (*Incident, error) {
	q := tx.NewUpdate().
		Model((*Incident)(nil)).
		Set("updated_at = ?", r.now())

	if patch.Type != nil {
		q = q.Set("type = ?", *patch.Type)
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}
	if patch.Severity != nil {
		q = q.Set("severity = ?", *patch.Severity)
	}
	if patch.Latitude != nil {
		q = q.Set("latitude = ?", RoundCoordinate(*patch.Latitude))
	}
	if patch.Longitude != nil {
		q = q.Set("longitude = ?", RoundCoordinate(*patch.Longitude))
	}
	if patch.Address != nil {
		q = q.Set("address = ?", *patch.Address)
	}
	if patch.Status != nil {
		q = q.Set("status = ?", *patch.Status)
	}

	res, err := q.
		Where("id = ?", id).
		Where("status = ?", expected).
		Where("archived_at IS NULL").
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		// tell a missing row apart from a lost race
		if _, err := r.GetByIDTx(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, withMeta(ErrConcurrentModification, map[string]any{
			"id":       id.String(),
			"expected": expected,
		})
	}

	return r.GetByIDTx(ctx, tx, id)
}

func (r *incidents) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	if _, err := tx.NewDelete().
		Model((*IncidentMedia)(nil)).
		Where("incident_id = ?", id).
		Exec(ctx); err != nil {
		return err
	}

	res, err := tx.NewDelete().
		Model((*Incident)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return withMeta(ErrIncidentNotFound, map[string]any{"id": id.String()})
	}
	return nil
}

func (r *incidents) ArchiveOlderThanTx(ctx context.Context, tx bun.IDB, cutoff, now time.Time) ([]*Incident, error) {
	archived := []*Incident{}
	err := tx.NewRaw(ArchiveIncidentsSQL, now.UTC(), cutoff.UTC()).Scan(ctx, &archived)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return archived, nil
}

func (r *incidents) AttachMediaTx(ctx context.Context, tx bun.IDB, media []*IncidentMedia) error {
	if len(media) == 0 {
		return nil
	}
	now := r.now()
	for _, m := range media {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.UploadedAt.IsZero() {
			m.UploadedAt = now
		}
	}
	_, err := tx.NewInsert().Model(&media).Exec(ctx)
	return err
}

func (r *incidents) ListMedia(ctx context.Context, incidentID uuid.UUID) ([]*IncidentMedia, error) {
	records := []*IncidentMedia{}
	err := r.db.NewSelect().
		Model(&records).
		Where("incident_id = ?", incidentID).
		Order("uploaded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *incidents) GetMedia(ctx context.Context, id uuid.UUID) (*IncidentMedia, error) {
	record := &IncidentMedia{}
	err := r.db.NewSelect().
		Model(record).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFoundOr(err, ErrMediaNotFound, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (r *incidents) DeleteMediaTx(ctx context.Context, tx bun.IDB, incidentID uuid.UUID, ids ...uuid.UUID) ([]*IncidentMedia, error) {
	removed := []*IncidentMedia{}
	q := tx.NewSelect().
		Model(&removed).
		Where("incident_id = ?", incidentID)
	if len(ids) > 0 {
		q = q.Where("id IN (?)", bun.In(ids))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return removed, nil
	}

	found := make([]uuid.UUID, 0, len(removed))
	for _, m := range removed {
		found = append(found, m.ID)
	}
	if _, err := tx.NewDelete().
		Model((*IncidentMedia)(nil)).
		Where("id IN (?)", bun.In(found)).
		Exec(ctx); err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *incidents) CountTotal(ctx context.Context) (int, error) {
	return r.db.NewSelect().Model((*Incident)(nil)).Count(ctx)
}

func (r *incidents) CountArchived(ctx context.Context) (int, error) {
	return r.db.NewSelect().
		Model((*Incident)(nil)).
		Where("archived_at IS NOT NULL").
		Count(ctx)
}

func (r *incidents) CountBy(ctx context.Context, column string) ([]CountBucket, error) {
	switch column {
	case "status", "severity", "type":
	default:
		return nil, withMeta(ErrInvalidGrouping, map[string]any{"column": column})
	}

	rows := []CountBucket{}
	err := r.db.NewSelect().
		Model((*Incident)(nil)).
		ColumnExpr("? AS key", bun.Ident(column)).
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("?", bun.Ident(column)).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *incidents) CountByReporter(ctx context.Context, reporterID uuid.UUID) ([]CountBucket, error) {
	rows := []CountBucket{}
	err := r.db.NewSelect().
		Model((*Incident)(nil)).
		ColumnExpr("status AS key").
		ColumnExpr("COUNT(*) AS count").
		Where("reporter_id = ?", reporterID).
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *incidents) DailyCounts(ctx context.Context, since time.Time) ([]CountBucket, error) {
	rows := []CountBucket{}
	err := r.db.NewSelect().
		Model((*Incident)(nil)).
		ColumnExpr("CAST(DATE(created_at) AS TEXT) AS key").
		ColumnExpr("COUNT(*) AS count").
		Where("created_at >= ?", since.UTC()).
		GroupExpr("CAST(DATE(created_at) AS TEXT)").
		OrderExpr("key ASC").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *incidents) Points(ctx context.Context) ([]IncidentPoint, error) {
	points := []IncidentPoint{}
	err := r.db.NewSelect().
		Model((*Incident)(nil)).
		Column("id", "latitude", "longitude", "type", "severity", "status").
		Where("archived_at IS NULL").
		Order("created_at DESC").
		Scan(ctx, &points)
	if err != nil {
		return nil, err
	}
	return points, nil
}

func prepareIncidentDefaults(incident *Incident, now time.Time) {
	if incident.ID == uuid.Nil {
		incident.ID = uuid.New()
	}
	incident.EnsureStatus()
	incident.Latitude = RoundCoordinate(incident.Latitude)
	incident.Longitude = RoundCoordinate(incident.Longitude)
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	incident.UpdatedAt = now
}

// HaversineKm is the great circle distance between two coordinates
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox returns a lat/lng box enclosing the radius around a point. It
// is only a prefilter, so it errs on the large side.
func BoundingBox(lat, lng, radiusKm float64) (minLat, maxLat, minLng, maxLng float64) {
	const kmPerDegree = 111.0
	dLat := radiusKm / kmPerDegree
	cos := math.Cos(lat * math.Pi / 180)
	dLng := 180.0
	if cos > 1e-9 {
		dLng = math.Min(180, radiusKm/(kmPerDegree*cos))
	}
	return lat - dLat, lat + dLat, lng - dLng, lng + dLng
}
