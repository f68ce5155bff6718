package activitymap

import (
	"context"
	"strings"
	"time"

	lazarus "github.com/goliatone/go-lazarus"
)

const (
	// MetadataKeyActorType stores the actor type derived from lazarus.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the source incident status for transitions.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the target incident status for transitions.
	MetadataKeyToStatus = "to_status"
	// MetadataKeySubject stores the role:id of the affected identity.
	MetadataKeySubject = "subject"
)

const (
	defaultChannel = "lazarus"
	defaultActorID = "system"
	objectIncident = "incident"
	objectIdentity = "identity"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
}

// Normalize converts a lazarus.ActivityEvent into the normalized shape. The
// object is the incident when the event carries one, the subject identity
// otherwise.
func Normalize(event lazarus.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(options.actorFallback),
	)

	objectType, objectID := objectIdentity, ""
	if !event.Subject.IsZero() {
		objectID = event.Subject.ID.String()
	}
	if id := strings.TrimSpace(event.IncidentID); id != "" {
		objectType, objectID = objectIncident, id
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(options.channel),
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the actor id used when the event has none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// LogSink returns an ActivitySink that writes normalized records to logger
func LogSink(logger lazarus.Logger, opts ...Option) lazarus.ActivitySink {
	return lazarus.ActivitySinkFunc(func(_ context.Context, event lazarus.ActivityEvent) error {
		out := Normalize(event, opts...)
		logger.Info("activity",
			"verb", out.Verb,
			"actor_id", out.ActorID,
			"object_type", out.ObjectType,
			"object_id", out.ObjectID,
			"channel", out.Channel,
			"metadata", out.Metadata,
			"occurred_at", out.OccurredAt,
		)
		return nil
	})
}

func normalizeMetadata(event lazarus.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)
	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			set(MetadataKeyActorType, actorType)
		}
	}

	// incident events still say whose report it was
	if objectType == objectIncident && !event.Subject.IsZero() {
		set(MetadataKeySubject, event.Subject.String())
	}

	if event.FromStatus != "" {
		set(MetadataKeyFromStatus, string(event.FromStatus))
	}
	if event.ToStatus != "" {
		set(MetadataKeyToStatus, string(event.ToStatus))
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
