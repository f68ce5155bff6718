package lazarus

import (
	"context"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultNearbyRadiusKm is the proximity alert radius
const DefaultNearbyRadiusKm = 5.0

type CreateIncidentMessage struct {
	Type        IncidentType `json:"type"`
	Description string       `json:"description"`
	Severity    Severity     `json:"severity"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Address     string       `json:"address"`
	Media       []MediaFile  `json:"media,omitempty"`
}

func (e CreateIncidentMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In(IncidentTypes...)),
		validation.Field(&e.Description, validation.Required, validation.Length(1, 2000)),
		validation.Field(&e.Severity, validation.Required, validation.In(Severities...)),
		validation.Field(&e.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&e.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		validation.Field(&e.Address, validation.Length(0, 500)),
	)
}

// validatePatch checks the values carried by a patch
func validatePatch(p IncidentPatch) error {
	return validation.Errors{
		"type":        validation.Validate(p.Type, validation.NilOrNotEmpty, validation.In(IncidentTypes...)),
		"description": validation.Validate(p.Description, validation.NilOrNotEmpty, validation.Length(1, 2000)),
		"severity":    validation.Validate(p.Severity, validation.NilOrNotEmpty, validation.In(Severities...)),
		"latitude":    validation.Validate(p.Latitude, validation.Min(-90.0), validation.Max(90.0)),
		"longitude":   validation.Validate(p.Longitude, validation.Min(-180.0), validation.Max(180.0)),
		"status":      validation.Validate(p.Status, validation.NilOrNotEmpty, validation.In(IncidentStatuses...)),
	}.Filter()
}

// LifecycleOption customizes the incident lifecycle
type LifecycleOption func(*IncidentLifecycle)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if clock != nil {
			l.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish incident events.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(l *IncidentLifecycle) {
		l.activity = normalizeActivitySink(sink)
	}
}

func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithLifecycleNotifier(n Notifier) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if n != nil {
			l.notifier = n
		}
	}
}

func WithLifecycleBroadcaster(b Broadcaster) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if b != nil {
			l.broadcaster = b
		}
	}
}

func WithLifecycleMediaStore(store MediaStore) LifecycleOption {
	return func(l *IncidentLifecycle) {
		l.media = store
	}
}

// WithLifecycleLocations enables proximity alerts on creation
func WithLifecycleLocations(registry *LocationRegistry) LifecycleOption {
	return func(l *IncidentLifecycle) {
		l.locations = registry
	}
}

func WithNearbyRadius(km float64) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if km > 0 {
			l.nearbyRadiusKm = km
		}
	}
}

func WithLifecyclePolicy(p *IncidentPolicy) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if p != nil {
			l.policy = p
		}
	}
}

func WithLifecycleStateMachine(sm IncidentStateMachine) LifecycleOption {
	return func(l *IncidentLifecycle) {
		if sm != nil {
			l.machine = sm
		}
	}
}

// IncidentLifecycle owns incident creation, role gated updates and removal.
type IncidentLifecycle struct {
	repo           RepositoryManager
	ledger         *StrikeLedger
	policy         *IncidentPolicy
	machine        IncidentStateMachine
	notifier       Notifier
	broadcaster    Broadcaster
	media          MediaStore
	locations      *LocationRegistry
	activity       ActivitySink
	logger         Logger
	nearbyRadiusKm float64
	now            func() time.Time
}

// NewIncidentLifecycle wires the lifecycle. The ledger receives strikes for
// rejected incidents.
func NewIncidentLifecycle(repo RepositoryManager, ledger *StrikeLedger, opts ...LifecycleOption) *IncidentLifecycle {
	l := &IncidentLifecycle{
		repo:           repo,
		ledger:         ledger,
		machine:        NewIncidentStateMachine(nil),
		notifier:       noopNotifier{},
		broadcaster:    noopBroadcaster{},
		activity:       noopActivitySink{},
		logger:         defLogger{},
		nearbyRadiusKm: DefaultNearbyRadiusKm,
		now:            time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	if l.policy == nil {
		l.policy = MustIncidentPolicy()
	}
	if l.ledger == nil {
		l.ledger = NewStrikeLedger(repo, l.notifier).WithLogger(l.logger).WithActivitySink(l.activity)
	}

	return l
}

// Create files a new incident on behalf of a citizen
func (l *IncidentLifecycle) Create(ctx context.Context, actor *Identity, event CreateIncidentMessage) (*Incident, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during incident creation")
	default:
	}

	if actor == nil || actor.Role != RoleCitizen || actor.Citizen == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "create_incident", "reason": "only citizens report incidents"})
	}
	if !actor.IsActive() {
		return nil, withMeta(ErrAccountDisabled, map[string]any{"role": actor.Role})
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid incident payload").
			WithCode(goerrors.CodeBadRequest)
	}
	if err := ValidateMediaFiles(event.Media); err != nil {
		return nil, err
	}

	incident := &Incident{
		ReporterID:  actor.ID(),
		Type:        event.Type,
		Description: strings.TrimSpace(event.Description),
		Severity:    event.Severity,
		Latitude:    RoundCoordinate(event.Latitude),
		Longitude:   RoundCoordinate(event.Longitude),
		Address:     strings.TrimSpace(event.Address),
		Status:      IncidentStatusNew,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var created *Incident
	err := l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if created, err = l.repo.Incidents().CreateTx(ctx, tx, incident); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create incident")
		}
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "incident creation transaction failed")
	}

	created.Reporter = actor.Citizen
	created.Media = l.attachMedia(ctx, created.ID, event.Media)

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType:  ActivityEventIncidentCreated,
		Actor:      actor.ActorRef(),
		Subject:    actor.Ref(),
		IncidentID: created.ID.String(),
		ToStatus:   created.Status,
	})

	if err := l.broadcaster.IncidentCreated(ctx, IncidentCreatedEvent{
		Incident:     created,
		ReporterID:   actor.ID(),
		ReporterName: actor.DisplayName(),
	}); err != nil {
		l.logger.Warn("incident created broadcast failed", "incident_id", created.ID, "error", err)
	}

	l.alertNearby(ctx, created)

	return created, nil
}

// attachMedia uploads and links attachments. Failures leave the incident
// without media.
func (l *IncidentLifecycle) attachMedia(ctx context.Context, incidentID uuid.UUID, files []MediaFile) []*IncidentMedia {
	if l.media == nil || len(files) == 0 {
		return nil
	}

	uploaded, err := l.media.UploadMany(ctx, incidentID, files)
	if err != nil {
		l.logger.Warn("incident media upload failed", "incident_id", incidentID, "error", err)
		l.dropStored(ctx, incidentID, uploaded)
		return nil
	}
	if len(uploaded) == 0 {
		return nil
	}

	for _, m := range uploaded {
		m.IncidentID = incidentID
	}

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.repo.Incidents().AttachMediaTx(ctx, tx, uploaded)
	})
	if err != nil {
		l.logger.Warn("incident media could not be linked", "incident_id", incidentID, "error", err)
		l.dropStored(ctx, incidentID, uploaded)
		return nil
	}

	return uploaded
}

// dropStored deletes files from the media host. Failures only leave orphans
// behind, so they are logged.
func (l *IncidentLifecycle) dropStored(ctx context.Context, incidentID uuid.UUID, media []*IncidentMedia) {
	if l.media == nil || len(media) == 0 {
		return
	}
	ids := make([]string, 0, len(media))
	for _, m := range media {
		ids = append(ids, m.PublicID)
	}
	if err := l.media.Delete(ctx, ids...); err != nil {
		l.logger.Warn("incident media could not be deleted from host", "incident_id", incidentID, "error", err)
	}
}

func (l *IncidentLifecycle) alertNearby(ctx context.Context, incident *Incident) {
	if l.locations == nil {
		return
	}

	for _, userID := range l.locations.UsersWithin(incident.Latitude, incident.Longitude, l.nearbyRadiusKm) {
		if userID == incident.ReporterID {
			continue
		}
		loc, ok := l.locations.Get(userID)
		if !ok {
			continue
		}

		event := NearbyIncidentEvent{Incidents: []NearbyIncident{
			nearbyEntry(incident, HaversineKm(loc.Latitude, loc.Longitude, incident.Latitude, incident.Longitude)),
		}}
		if err := l.broadcaster.NearbyIncident(ctx, []uuid.UUID{userID}, event); err != nil {
			l.logger.Warn("nearby incident broadcast failed", "user_id", userID, "error", err)
		}
	}
}

// Update applies a patch under the permission matrix. Status changes go
// through the state machine and a compare-and-set on the previous status.
func (l *IncidentLifecycle) Update(ctx context.Context, actor *Identity, id uuid.UUID, patch IncidentPatch) (*Incident, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during incident update")
	default:
	}

	if actor == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "update_incident"})
	}

	if patch.IsEmpty() {
		return nil, withMeta(ErrEmptyPatch, map[string]any{"incident_id": id.String()})
	}

	if err := validatePatch(patch); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid incident patch").
			WithCode(goerrors.CodeBadRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	current, err := l.repo.Incidents().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.IsArchived() {
		return nil, withMeta(ErrTerminalState, map[string]any{
			"incident_id": id.String(),
			"reason":      "incident is archived",
		})
	}

	if err := l.policy.AuthorizePatch(actor, current, patch); err != nil {
		return nil, err
	}

	from := current.Status
	statusChanged := patch.TouchesStatus()
	if statusChanged {
		if err := l.machine.Check(current, *patch.Status); err != nil {
			return nil, err
		}
	}

	var updated *Incident
	var strike StrikeResult
	rejected := statusChanged && *patch.Status == IncidentStatusRejected

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if updated, err = l.repo.Incidents().UpdateTx(ctx, tx, id, from, patch); err != nil {
			return err
		}
		if rejected {
			if strike, err = l.ledger.IncrementTx(ctx, tx, current.ReporterID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "incident update transaction failed")
	}

	if updated.Reporter == nil {
		updated.Reporter = current.Reporter
	}

	if !statusChanged {
		recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
			EventType:  ActivityEventIncidentUpdated,
			Actor:      actor.ActorRef(),
			Subject:    IdentityRef{ID: current.ReporterID, Role: RoleCitizen},
			IncidentID: id.String(),
		})
		return updated, nil
	}

	to := *patch.Status
	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType:  ActivityEventIncidentStatusChanged,
		Actor:      actor.ActorRef(),
		Subject:    IdentityRef{ID: current.ReporterID, Role: RoleCitizen},
		IncidentID: id.String(),
		FromStatus: from,
		ToStatus:   to,
	})

	if err := l.broadcaster.IncidentUpdated(ctx, IncidentUpdatedEvent{
		IncidentID: id,
		OldStatus:  from,
		NewStatus:  to,
		UpdatedBy:  actor.Ref(),
		UpdatedAt:  updated.UpdatedAt,
	}); err != nil {
		l.logger.Warn("incident updated broadcast failed", "incident_id", id, "error", err)
	}

	reporter := l.reporterOf(ctx, updated)
	if reporter != nil {
		if err := l.notifier.SendStatusChange(ctx, reporter, id, from, to, updated.Description); err != nil {
			l.logger.Warn("status change notification failed", "incident_id", id, "error", err)
		}
	}

	if rejected {
		l.ledger.Notify(ctx, actor.ActorRef(), reporter, id, strike)
	}

	return updated, nil
}

func (l *IncidentLifecycle) reporterOf(ctx context.Context, incident *Incident) *Citizen {
	if incident.Reporter != nil {
		return incident.Reporter
	}
	identity, err := l.repo.Identities().FindByID(ctx, RoleCitizen, incident.ReporterID)
	if err != nil {
		l.logger.Warn("incident reporter lookup failed", "incident_id", incident.ID, "error", err)
		return nil
	}
	return identity.Citizen
}

// Remove deletes an incident and its media. Reporter or admin only.
func (l *IncidentLifecycle) Remove(ctx context.Context, actor *Identity, id uuid.UUID) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during incident removal")
	default:
	}

	if actor == nil {
		return withMeta(ErrForbidden, map[string]any{"operation": "remove_incident"})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	current, err := l.repo.Incidents().GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := l.policy.AuthorizeRemove(actor, current); err != nil {
		return err
	}

	err = l.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return l.repo.Incidents().DeleteTx(ctx, tx, id)
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove incident")
	}

	l.dropStored(ctx, id, current.Media)

	recordActivity(ctx, l.activity, l.logger, l.now, ActivityEvent{
		EventType:  ActivityEventIncidentRemoved,
		Actor:      actor.ActorRef(),
		Subject:    IdentityRef{ID: current.ReporterID, Role: RoleCitizen},
		IncidentID: id.String(),
		FromStatus: current.Status,
	})

	return nil
}

// Get returns one incident with reporter and media
func (l *IncidentLifecycle) Get(ctx context.Context, id uuid.UUID) (*Incident, error) {
	return l.repo.Incidents().GetByID(ctx, id)
}

// List returns incidents newest first
func (l *IncidentLifecycle) List(ctx context.Context, filter IncidentFilter) ([]*Incident, error) {
	if filter.Type != "" && validation.Validate(filter.Type, validation.In(IncidentTypes...)) != nil {
		return nil, goerrors.New("unknown incident type filter", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"type": filter.Type})
	}
	if filter.Severity != "" && validation.Validate(filter.Severity, validation.In(Severities...)) != nil {
		return nil, goerrors.New("unknown severity filter", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"severity": filter.Severity})
	}
	if filter.Status != "" && validation.Validate(filter.Status, validation.In(IncidentStatuses...)) != nil {
		return nil, goerrors.New("unknown status filter", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"status": filter.Status})
	}
	return l.repo.Incidents().List(ctx, filter)
}

// Nearby returns unarchived incidents within radiusKm, closest first
func (l *IncidentLifecycle) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]NearbyIncident, error) {
	if radiusKm <= 0 {
		radiusKm = l.nearbyRadiusKm
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil, goerrors.New("coordinates out of range", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"lat": lat, "lng": lng})
	}

	minLat, maxLat, minLng, maxLng := BoundingBox(lat, lng, radiusKm)
	candidates, err := l.repo.Incidents().WithinBox(ctx, minLat, maxLat, minLng, maxLng)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query nearby incidents")
	}

	out := []NearbyIncident{}
	for _, inc := range candidates {
		d := HaversineKm(lat, lng, inc.Latitude, inc.Longitude)
		if d <= radiusKm {
			out = append(out, nearbyEntry(inc, d))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

func nearbyEntry(incident *Incident, distanceKm float64) NearbyIncident {
	return NearbyIncident{
		ID:         incident.ID,
		Type:       incident.Type,
		Severity:   incident.Severity,
		Latitude:   incident.Latitude,
		Longitude:  incident.Longitude,
		DistanceKm: distanceKm,
	}
}
