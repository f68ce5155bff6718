package redisbus

import (
	"context"
	"encoding/json"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/google/uuid"
)

// DefaultClientBuffer is the per connection queue size. Envelopes for a
// client whose queue is full are dropped.
const DefaultClientBuffer = 32

// Hub fans envelopes out to the streams connected to this process. It also
// implements lazarus.Broadcaster for single node deployments without redis.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*hubClient]struct{}
	buffer  int
	logger  lazarus.Logger
}

type hubClient struct {
	ch   chan Envelope
	once sync.Once
}

var _ lazarus.Broadcaster = (*Hub)(nil)

func NewHub(logger lazarus.Logger) *Hub {
	return &Hub{
		clients: map[uuid.UUID]map[*hubClient]struct{}{},
		buffer:  DefaultClientBuffer,
		logger:  logger,
	}
}

// Register adds a stream for userID. The returned func unregisters it and
// closes the channel; it is safe to call more than once.
func (h *Hub) Register(userID uuid.UUID) (<-chan Envelope, func()) {
	c := &hubClient{ch: make(chan Envelope, h.buffer)}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*hubClient]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	return c.ch, func() {
		c.once.Do(func() {
			h.mu.Lock()
			delete(h.clients[userID], c)
			if len(h.clients[userID]) == 0 {
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			close(c.ch)
		})
	}
}

// Connected is the number of users with at least one open stream
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Connections is the number of open streams for userID
func (h *Hub) Connections(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Dispatch delivers env to its targets and returns how many streams got it
func (h *Hub) Dispatch(env Envelope) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered, dropped := 0, 0
	send := func(clients map[*hubClient]struct{}) {
		for c := range clients {
			select {
			case c.ch <- env:
				delivered++
			default:
				dropped++
			}
		}
	}

	if len(env.UserIDs) == 0 {
		for _, clients := range h.clients {
			send(clients)
		}
	} else {
		for _, id := range env.UserIDs {
			send(h.clients[id])
		}
	}

	if dropped > 0 && h.logger != nil {
		h.logger.Warn("realtime envelopes dropped for slow clients", "event", env.Event, "dropped", dropped)
	}
	return delivered
}

// Run feeds the hub from a redis subscription until ctx ends
func (h *Hub) Run(ctx context.Context, sub *Subscriber) error {
	return sub.Listen(ctx, func(env Envelope) {
		h.Dispatch(env)
	})
}

func (h *Hub) IncidentCreated(_ context.Context, event lazarus.IncidentCreatedEvent) error {
	return h.local(lazarus.EventIncidentCreated, event, nil)
}

func (h *Hub) IncidentUpdated(_ context.Context, event lazarus.IncidentUpdatedEvent) error {
	return h.local(lazarus.EventIncidentUpdated, event, nil)
}

func (h *Hub) NearbyIncident(_ context.Context, userIDs []uuid.UUID, event lazarus.NearbyIncidentEvent) error {
	if len(userIDs) == 0 {
		return nil
	}
	return h.local(lazarus.EventNearbyIncident, event, userIDs)
}

func (h *Hub) LocationUpdated(_ context.Context, update lazarus.LocationUpdate) error {
	return h.local(lazarus.EventLocationUpdated, update, nil)
}

func (h *Hub) local(event string, data any, userIDs []uuid.UUID) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode realtime payload").
			WithMetadata(map[string]any{"event": event})
	}
	h.Dispatch(Envelope{Event: event, Data: raw, UserIDs: userIDs})
	return nil
}
