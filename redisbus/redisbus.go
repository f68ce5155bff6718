// Package redisbus publishes realtime incident events over redis pub/sub.
// Every node subscribes to the channel and a Hub fans envelopes out to the
// event streams connected to it.
package redisbus

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/google/uuid"
)

// DefaultChannel is the pub/sub channel used when none is configured
const DefaultChannel = "lazarus:realtime"

// Envelope is the published payload. UserIDs restricts delivery to the
// listed users; empty means every connected client.
type Envelope struct {
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
	UserIDs []uuid.UUID     `json:"user_ids,omitempty"`
}

// Publisher is the subset of the redis client used here
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Broadcaster implements lazarus.Broadcaster
type Broadcaster struct {
	client  Publisher
	channel string
	logger  lazarus.Logger
}

var _ lazarus.Broadcaster = (*Broadcaster)(nil)

// Options configures the redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewClient builds a redis client and pings it
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "redis is not reachable").
			WithMetadata(map[string]any{"addr": opts.Addr})
	}
	return client, nil
}

func New(client Publisher, channel string, logger lazarus.Logger) *Broadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Broadcaster{client: client, channel: channel, logger: logger}
}

func (b *Broadcaster) IncidentCreated(ctx context.Context, event lazarus.IncidentCreatedEvent) error {
	return b.publish(ctx, lazarus.EventIncidentCreated, event, nil)
}

func (b *Broadcaster) IncidentUpdated(ctx context.Context, event lazarus.IncidentUpdatedEvent) error {
	return b.publish(ctx, lazarus.EventIncidentUpdated, event, nil)
}

// NearbyIncident targets the listed users only. An empty list publishes
// nothing.
func (b *Broadcaster) NearbyIncident(ctx context.Context, userIDs []uuid.UUID, event lazarus.NearbyIncidentEvent) error {
	if len(userIDs) == 0 {
		return nil
	}
	return b.publish(ctx, lazarus.EventNearbyIncident, event, userIDs)
}

// LocationUpdated forwards an entity location to every client
func (b *Broadcaster) LocationUpdated(ctx context.Context, update lazarus.LocationUpdate) error {
	return b.publish(ctx, lazarus.EventLocationUpdated, update, nil)
}

func (b *Broadcaster) publish(ctx context.Context, event string, data any, userIDs []uuid.UUID) error {
	payload, err := Encode(event, data, userIDs)
	if err != nil {
		return err
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		if b.logger != nil {
			b.logger.Error("realtime publish failed", "event", event, "channel", b.channel, "error", err)
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to publish realtime event").
			WithMetadata(map[string]any{"event": event})
	}
	return nil
}

// Encode builds the wire form of an envelope
func Encode(event string, data any, userIDs []uuid.UUID) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode realtime payload").
			WithMetadata(map[string]any{"event": event})
	}
	out, err := json.Marshal(Envelope{Event: event, Data: raw, UserIDs: userIDs})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode realtime envelope")
	}
	return out, nil
}

// Decode parses a message received from the channel
func Decode(payload string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Envelope{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed realtime envelope")
	}
	return env, nil
}

// Targets reports whether the envelope should reach userID
func (e Envelope) Targets(userID uuid.UUID) bool {
	if len(e.UserIDs) == 0 {
		return true
	}
	for _, id := range e.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
