package lazarus

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocationRegistry tracks the last reported position of connected users.
// Entries live only while the connection is open.
type LocationRegistry struct {
	mu        sync.RWMutex
	locations map[uuid.UUID]LocationUpdate
	now       func() time.Time
}

// NewLocationRegistry returns an empty registry
func NewLocationRegistry() *LocationRegistry {
	return &LocationRegistry{
		locations: map[uuid.UUID]LocationUpdate{},
		now:       time.Now,
	}
}

// Update stores the latest position of a user
func (r *LocationRegistry) Update(update LocationUpdate) {
	if update.UserID == uuid.Nil {
		return
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = r.now()
	}

	r.mu.Lock()
	r.locations[update.UserID] = update
	r.mu.Unlock()
}

// Remove clears a user on disconnect
func (r *LocationRegistry) Remove(userID uuid.UUID) {
	r.mu.Lock()
	delete(r.locations, userID)
	r.mu.Unlock()
}

// Get returns the last position of a user
func (r *LocationRegistry) Get(userID uuid.UUID) (LocationUpdate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[userID]
	return loc, ok
}

// Len is the number of tracked users
func (r *LocationRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations)
}

// EntityLocations lists the positions reported by entity users
func (r *LocationRegistry) EntityLocations() []LocationUpdate {
	r.mu.RLock()
	out := make([]LocationUpdate, 0, len(r.locations))
	for _, loc := range r.locations {
		if loc.Role == RoleEntity {
			out = append(out, loc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// UsersWithin returns the ids of users inside radiusKm of the point
func (r *LocationRegistry) UsersWithin(lat, lng, radiusKm float64) []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []uuid.UUID{}
	for id, loc := range r.locations {
		if HaversineKm(lat, lng, loc.Latitude, loc.Longitude) <= radiusKm {
			out = append(out, id)
		}
	}
	return out
}
