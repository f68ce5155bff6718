package lazarus

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Notifications is the inbox store
type Notifications interface {
	CreateTx(ctx context.Context, tx bun.IDB, notification *Notification) (*Notification, error)
	ListFor(ctx context.Context, recipient IdentityRef, unreadOnly bool) ([]*Notification, error)
	MarkRead(ctx context.Context, recipient IdentityRef, id uuid.UUID) (*Notification, error)
	MarkAllRead(ctx context.Context, recipient IdentityRef) (int, error)
	Delete(ctx context.Context, recipient IdentityRef, id uuid.UUID) error
	CountFor(ctx context.Context, recipient IdentityRef) (NotificationCounts, error)
}

// NotificationCounts summarizes a recipient inbox
type NotificationCounts struct {
	Total  int `json:"total"`
	Read   int `json:"read"`
	Unread int `json:"unread"`
}

type notifications struct {
	db   *bun.DB
	repo repository.Repository[*Notification]
}

var _ Notifications = (*notifications)(nil)

// NewNotificationsRepository returns the bun backed inbox store
func NewNotificationsRepository(db *bun.DB) Notifications {
	return &notifications{
		db: db,
		repo: repository.NewRepository[*Notification](db, repository.ModelHandlers[*Notification]{
			NewRecord: func() *Notification { return &Notification{} },
			GetID: func(n *Notification) uuid.UUID {
				if n == nil {
					return uuid.Nil
				}
				return n.ID
			},
			SetID: func(n *Notification, id uuid.UUID) {
				if n != nil {
					n.ID = id
				}
			},
		}),
	}
}

func (r *notifications) CreateTx(ctx context.Context, tx bun.IDB, notification *Notification) (*Notification, error) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	if notification.Status == "" {
		notification.Status = NotificationSent
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = utcNow()
	}
	return r.repo.CreateTx(ctx, tx, notification)
}

func (r *notifications) ListFor(ctx context.Context, recipient IdentityRef, unreadOnly bool) ([]*Notification, error) {
	records := []*Notification{}
	q := r.db.NewSelect().
		Model(&records).
		Where("recipient_role = ?", recipient.Role).
		Where("recipient_id = ?", recipient.ID)

	if unreadOnly {
		q = q.Where("status = ?", NotificationSent)
	}

	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *notifications) MarkRead(ctx context.Context, recipient IdentityRef, id uuid.UUID) (*Notification, error) {
	res, err := r.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("status = ?", NotificationRead).
		Where("id = ?", id).
		Where("recipient_role = ?", recipient.Role).
		Where("recipient_id = ?", recipient.ID).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return nil, withMeta(ErrNotificationNotFound, map[string]any{"id": id.String()})
	}

	record := &Notification{}
	if err := r.db.NewSelect().Model(record).Where("id = ?", id).Scan(ctx); err != nil {
		return nil, notFoundOr(err, ErrNotificationNotFound, map[string]any{"id": id.String()})
	}
	return record, nil
}

func (r *notifications) MarkAllRead(ctx context.Context, recipient IdentityRef) (int, error) {
	res, err := r.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("status = ?", NotificationRead).
		Where("recipient_role = ?", recipient.Role).
		Where("recipient_id = ?", recipient.ID).
		Where("status = ?", NotificationSent).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *notifications) Delete(ctx context.Context, recipient IdentityRef, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*Notification)(nil)).
		Where("id = ?", id).
		Where("recipient_role = ?", recipient.Role).
		Where("recipient_id = ?", recipient.ID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return withMeta(ErrNotificationNotFound, map[string]any{"id": id.String()})
	}
	return nil
}

func (r *notifications) CountFor(ctx context.Context, recipient IdentityRef) (NotificationCounts, error) {
	rows := []CountBucket{}
	err := r.db.NewSelect().
		Model((*Notification)(nil)).
		ColumnExpr("status AS key").
		ColumnExpr("COUNT(*) AS count").
		Where("recipient_role = ?", recipient.Role).
		Where("recipient_id = ?", recipient.ID).
		GroupExpr("status").
		Scan(ctx, &rows)
	if err != nil {
		return NotificationCounts{}, err
	}

	counts := NotificationCounts{}
	for _, row := range rows {
		counts.Total += row.Count
		if NotificationStatus(row.Key) == NotificationRead {
			counts.Read += row.Count
		} else {
			counts.Unread += row.Count
		}
	}
	return counts, nil
}
