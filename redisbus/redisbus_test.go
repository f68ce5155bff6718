package redisbus_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/redisbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	calls []published
	err   error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.calls = append(f.calls, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func TestIncidentCreatedPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	b := redisbus.New(pub, "", nil)

	incident := &lazarus.Incident{ID: uuid.New(), Type: lazarus.IncidentFire}
	err := b.IncidentCreated(context.Background(), lazarus.IncidentCreatedEvent{
		Incident:     incident,
		ReporterID:   uuid.New(),
		ReporterName: "Ana Mora",
	})
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, redisbus.DefaultChannel, pub.calls[0].channel)

	env, err := redisbus.Decode(string(pub.calls[0].payload))
	require.NoError(t, err)
	assert.Equal(t, lazarus.EventIncidentCreated, env.Event)
	assert.Empty(t, env.UserIDs)

	var data map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.NotEmpty(t, data)
}

func TestNearbyIncidentTargetsUsers(t *testing.T) {
	pub := &fakePublisher{}
	b := redisbus.New(pub, "custom", nil)

	user := uuid.New()
	err := b.NearbyIncident(context.Background(), []uuid.UUID{user}, lazarus.NearbyIncidentEvent{
		Incidents: []lazarus.NearbyIncident{{ID: uuid.New(), DistanceKm: 1.2}},
	})
	require.NoError(t, err)
	require.Len(t, pub.calls, 1)
	assert.Equal(t, "custom", pub.calls[0].channel)

	env, err := redisbus.Decode(string(pub.calls[0].payload))
	require.NoError(t, err)
	assert.True(t, env.Targets(user))
	assert.False(t, env.Targets(uuid.New()))
}

func TestNearbyIncidentWithoutUsersIsNoop(t *testing.T) {
	pub := &fakePublisher{}
	b := redisbus.New(pub, "", nil)

	require.NoError(t, b.NearbyIncident(context.Background(), nil, lazarus.NearbyIncidentEvent{}))
	assert.Empty(t, pub.calls)
}

func TestPublishFailureIsReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	b := redisbus.New(pub, "", nil)

	err := b.IncidentUpdated(context.Background(), lazarus.IncidentUpdatedEvent{IncidentID: uuid.New()})
	require.Error(t, err)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := redisbus.Decode("{not json")
	require.Error(t, err)
}
