package redisbus_test

import (
	"context"
	"encoding/json"
	"testing"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/redisbus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubBroadcastReachesEveryStream(t *testing.T) {
	hub := redisbus.NewHub(nil)
	a, cancelA := hub.Register(uuid.New())
	b, cancelB := hub.Register(uuid.New())
	defer cancelA()
	defer cancelB()

	require.NoError(t, hub.IncidentUpdated(context.Background(), lazarus.IncidentUpdatedEvent{
		IncidentID: uuid.New(),
		OldStatus:  lazarus.IncidentStatusNew,
		NewStatus:  lazarus.IncidentStatusInProgress,
	}))

	for _, ch := range []<-chan redisbus.Envelope{a, b} {
		select {
		case env := <-ch:
			assert.Equal(t, lazarus.EventIncidentUpdated, env.Event)
			var data map[string]any
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, "IN_PROGRESS", data["new_status"])
		default:
			t.Fatal("expected an envelope")
		}
	}
}

func TestHubTargetsNearbyUsersOnly(t *testing.T) {
	hub := redisbus.NewHub(nil)
	near, far := uuid.New(), uuid.New()
	nearCh, cancelNear := hub.Register(near)
	farCh, cancelFar := hub.Register(far)
	defer cancelNear()
	defer cancelFar()

	require.NoError(t, hub.NearbyIncident(context.Background(), []uuid.UUID{near}, lazarus.NearbyIncidentEvent{
		Incidents: []lazarus.NearbyIncident{{ID: uuid.New(), DistanceKm: 0.4}},
	}))

	assert.Len(t, nearCh, 1)
	assert.Len(t, farCh, 0)
}

func TestHubUnregisterClosesStream(t *testing.T) {
	hub := redisbus.NewHub(nil)
	user := uuid.New()
	ch, cancel := hub.Register(user)
	assert.Equal(t, 1, hub.Connected())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, hub.Connected())
	assert.Equal(t, 0, hub.Dispatch(redisbus.Envelope{Event: "x"}))
}

func TestHubCountsConnectionsPerUser(t *testing.T) {
	hub := redisbus.NewHub(nil)
	user := uuid.New()

	_, first := hub.Register(user)
	_, second := hub.Register(user)
	_, other := hub.Register(uuid.New())
	defer other()

	assert.Equal(t, 2, hub.Connections(user))
	assert.Equal(t, 2, hub.Connected())

	first()
	assert.Equal(t, 1, hub.Connections(user))

	second()
	assert.Equal(t, 0, hub.Connections(user))
	assert.Equal(t, 1, hub.Connected())
}

func TestHubDropsWhenClientIsSlow(t *testing.T) {
	hub := redisbus.NewHub(nil)
	_, cancel := hub.Register(uuid.New())
	defer cancel()

	delivered := 0
	for i := 0; i < redisbus.DefaultClientBuffer+5; i++ {
		delivered += hub.Dispatch(redisbus.Envelope{Event: "x"})
	}
	assert.Equal(t, redisbus.DefaultClientBuffer, delivered)
}
