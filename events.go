package lazarus

import (
	"time"

	"github.com/google/uuid"
)

// Realtime event names
const (
	EventIncidentCreated = "incident:created"
	EventIncidentUpdated = "incident:updated"
	EventNearbyIncident  = "incident:nearby"
	EventLocationUpdated = "location:updated"
)

// IncidentCreatedEvent is broadcast to every connected client
type IncidentCreatedEvent struct {
	Incident     *Incident `json:"incident"`
	ReporterID   uuid.UUID `json:"reporter_id"`
	ReporterName string    `json:"reporter_name"`
}

// IncidentUpdatedEvent is broadcast after a status transition
type IncidentUpdatedEvent struct {
	IncidentID uuid.UUID      `json:"incident_id"`
	OldStatus  IncidentStatus `json:"old_status"`
	NewStatus  IncidentStatus `json:"new_status"`
	UpdatedBy  IdentityRef    `json:"updated_by"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NearbyIncident is one entry of a proximity alert
type NearbyIncident struct {
	ID         uuid.UUID    `json:"id"`
	Type       IncidentType `json:"type"`
	Severity   Severity     `json:"severity"`
	Latitude   float64      `json:"latitude"`
	Longitude  float64      `json:"longitude"`
	DistanceKm float64      `json:"distance_km"`
}

// NearbyIncidentEvent is delivered only to users inside the alert radius
type NearbyIncidentEvent struct {
	Incidents []NearbyIncident `json:"incidents"`
}

// LocationUpdate is the payload a connected client reports
type LocationUpdate struct {
	UserID    uuid.UUID `json:"user_id"`
	Role      RoleTag   `json:"user_type"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}
