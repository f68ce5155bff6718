package lazarus

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrMediaUnavailable is returned when no media host is configured
var ErrMediaUnavailable = goerrors.New("media storage not configured", goerrors.CategoryOperation).
	WithCode(goerrors.CodeInternal)

// AddMedia uploads attachments to an existing incident. Unlike creation, a
// failed upload fails the call and nothing is linked.
func (l *IncidentLifecycle) AddMedia(ctx context.Context, actor *Identity, incidentID uuid.UUID, files []MediaFile) ([]*IncidentMedia, error) {
	if actor == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "add_media"})
	}
	if l.media == nil {
		return nil, ErrMediaUnavailable.Clone()
	}
	if len(files) == 0 {
		return nil, withMeta(ErrUnsupportedMedia, map[string]any{"reason": "no files"})
	}
	if err := ValidateMediaFiles(files); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*60)
	defer cancel()

	incident, err := l.writableForMedia(ctx, actor, incidentID)
	if err != nil {
		return nil, err
	}

	uploaded, err := l.media.UploadMany(ctx, incident.ID, files)
	if err != nil {
		l.dropStored(ctx, incident.ID, uploaded)
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "media upload failed").
			WithMetadata(map[string]any{"incident_id": incident.ID.String()})
	}
	for _, m := range uploaded {
		m.IncidentID = incident.ID
	}

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.repo.Incidents().AttachMediaTx(ctx, tx, uploaded)
	})
	if err != nil {
		l.dropStored(ctx, incident.ID, uploaded)
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to link incident media").
			WithMetadata(map[string]any{"incident_id": incident.ID.String()})
	}

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType:  ActivityEventMediaAdded,
		Actor:      actor.ActorRef(),
		Subject:    IdentityRef{ID: incident.ReporterID, Role: RoleCitizen},
		IncidentID: incident.ID.String(),
		Metadata:   map[string]any{"count": len(uploaded)},
	})

	return uploaded, nil
}

// ListMedia returns the incident attachments oldest first
func (l *IncidentLifecycle) ListMedia(ctx context.Context, incidentID uuid.UUID) ([]*IncidentMedia, error) {
	if _, err := l.repo.Incidents().GetByID(ctx, incidentID); err != nil {
		return nil, err
	}
	return l.repo.Incidents().ListMedia(ctx, incidentID)
}

// RemoveMedia unlinks one attachment and deletes it from the media host
func (l *IncidentLifecycle) RemoveMedia(ctx context.Context, actor *Identity, mediaID uuid.UUID) error {
	if actor == nil {
		return withMeta(ErrForbidden, map[string]any{"operation": "remove_media"})
	}

	media, err := l.repo.Incidents().GetMedia(ctx, mediaID)
	if err != nil {
		return err
	}

	_, err = l.removeMedia(ctx, actor, media.IncidentID, mediaID)
	return err
}

// RemoveAllMedia unlinks every attachment of the incident and returns how
// many were removed.
func (l *IncidentLifecycle) RemoveAllMedia(ctx context.Context, actor *Identity, incidentID uuid.UUID) (int, error) {
	if actor == nil {
		return 0, withMeta(ErrForbidden, map[string]any{"operation": "remove_media"})
	}
	return l.removeMedia(ctx, actor, incidentID)
}

func (l *IncidentLifecycle) removeMedia(ctx context.Context, actor *Identity, incidentID uuid.UUID, ids ...uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	incident, err := l.writableForMedia(ctx, actor, incidentID)
	if err != nil {
		return 0, err
	}

	var removed []*IncidentMedia
	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		removed, err = l.repo.Incidents().DeleteMediaTx(ctx, tx, incident.ID, ids...)
		return err
	})
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove incident media").
			WithMetadata(map[string]any{"incident_id": incident.ID.String()})
	}

	if len(ids) > 0 && len(removed) == 0 {
		return 0, withMeta(ErrMediaNotFound, map[string]any{"incident_id": incident.ID.String()})
	}

	l.dropStored(ctx, incident.ID, removed)

	if len(removed) > 0 {
		recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
			EventType:  ActivityEventMediaRemoved,
			Actor:      actor.ActorRef(),
			Subject:    IdentityRef{ID: incident.ReporterID, Role: RoleCitizen},
			IncidentID: incident.ID.String(),
			Metadata:   map[string]any{"count": len(removed)},
		})
	}

	return len(removed), nil
}

func (l *IncidentLifecycle) writableForMedia(ctx context.Context, actor *Identity, incidentID uuid.UUID) (*Incident, error) {
	incident, err := l.repo.Incidents().GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if incident.IsArchived() {
		return nil, withMeta(ErrTerminalState, map[string]any{
			"incident_id": incidentID.String(),
			"reason":      "incident is archived",
		})
	}
	if err := l.policy.AuthorizeMedia(actor, incident); err != nil {
		return nil, err
	}
	return incident, nil
}
