package lazarus

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess          ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure          ActivityEventType = "auth.login.failure"
	ActivityEventRegistered            ActivityEventType = "identity.registered"
	ActivityEventActiveChanged         ActivityEventType = "identity.active.changed"
	ActivityEventPasswordResetRequest  ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess  ActivityEventType = "auth.password.reset"
	ActivityEventIncidentCreated       ActivityEventType = "incident.created"
	ActivityEventIncidentUpdated       ActivityEventType = "incident.updated"
	ActivityEventIncidentStatusChanged ActivityEventType = "incident.status.changed"
	ActivityEventIncidentRemoved       ActivityEventType = "incident.removed"
	ActivityEventIncidentArchived      ActivityEventType = "incident.archived"
	ActivityEventStrikeRecorded        ActivityEventType = "citizen.strike.recorded"
	ActivityEventCitizenReactivated    ActivityEventType = "citizen.reactivated"
	ActivityEventMediaAdded            ActivityEventType = "incident.media.added"
	ActivityEventMediaRemoved          ActivityEventType = "incident.media.removed"
	ActivityEventSystemMessage         ActivityEventType = "notification.system.sent"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for scheduled work
var SystemActor = ActorRef{Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	Subject    IdentityRef
	IncidentID string
	FromStatus IncidentStatus
	ToStatus   IncidentStatus
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity emits best-effort, sink errors are only logged
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = SystemActor
	}

	if event.OccurredAt.IsZero() {
		if now == nil {
			now = time.Now
		}
		event.OccurredAt = now()
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink record error", "event", event.EventType, "error", err)
	}
}
