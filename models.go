package lazarus

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxStrikes is the strike count at which a citizen is disabled
const MaxStrikes = 3

// Citizen is a person that reports incidents
type Citizen struct {
	bun.BaseModel `bun:"table:citizens,alias:ctz"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName     string    `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string    `bun:"last_name,notnull" json:"last_name,omitempty"`
	LegalID       string    `bun:"legal_id,notnull,unique" json:"legal_id,omitempty"`
	Email         string    `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string    `bun:"password_hash,notnull" json:"-"`
	Phone         string    `bun:"phone_number" json:"phone_number,omitempty"`
	Province      string    `bun:"province" json:"province,omitempty"`
	Canton        string    `bun:"canton" json:"canton,omitempty"`
	District      string    `bun:"district" json:"district,omitempty"`
	Address       string    `bun:"address" json:"address,omitempty"`
	Strikes       int       `bun:"strikes,notnull" json:"strikes"`
	Active        bool      `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// FullName returns first and last name
func (c *Citizen) FullName() string {
	if c == nil {
		return ""
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Entity is a public safety organization
type Entity struct {
	bun.BaseModel  `bun:"table:entities,alias:ent"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name           string         `bun:"name,notnull" json:"name,omitempty"`
	Category       EntityCategory `bun:"category,notnull" json:"category,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash,notnull" json:"-"`
	EmergencyPhone string         `bun:"emergency_phone" json:"emergency_phone,omitempty"`
	Province       string         `bun:"province" json:"province,omitempty"`
	Canton         string         `bun:"canton" json:"canton,omitempty"`
	District       string         `bun:"district" json:"district,omitempty"`
	Location       string         `bun:"location" json:"location,omitempty"`
	Active         bool           `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Admin governs the system
type Admin struct {
	bun.BaseModel `bun:"table:admins,alias:adm"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName     string      `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string      `bun:"last_name,notnull" json:"last_name,omitempty"`
	Email         string      `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string      `bun:"password_hash,notnull" json:"-"`
	AccessLevel   AccessLevel `bun:"access_level,notnull" json:"access_level,omitempty"`
	Province      string      `bun:"province" json:"province,omitempty"`
	Canton        string      `bun:"canton" json:"canton,omitempty"`
	District      string      `bun:"district" json:"district,omitempty"`
	Active        bool        `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     time.Time   `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// IncidentType classifies the emergency
type IncidentType string

const (
	IncidentFire       IncidentType = "FIRE"
	IncidentAccident   IncidentType = "ACCIDENT"
	IncidentFlood      IncidentType = "FLOOD"
	IncidentLandslide  IncidentType = "LANDSLIDE"
	IncidentEarthquake IncidentType = "EARTHQUAKE"
	IncidentOther      IncidentType = "OTHER"
)

// IncidentTypes lists the accepted incident types
var IncidentTypes = []any{
	IncidentFire,
	IncidentAccident,
	IncidentFlood,
	IncidentLandslide,
	IncidentEarthquake,
	IncidentOther,
}

// Severity of an incident
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists the accepted severities
var Severities = []any{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// IncidentStatus is the lifecycle state of an incident
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "NEW"
	IncidentStatusInProgress IncidentStatus = "IN_PROGRESS"
	IncidentStatusResolved   IncidentStatus = "RESOLVED"
	IncidentStatusRejected   IncidentStatus = "REJECTED"
)

// IncidentStatuses lists the accepted statuses
var IncidentStatuses = []any{
	IncidentStatusNew,
	IncidentStatusInProgress,
	IncidentStatusResolved,
	IncidentStatusRejected,
}

// IsTerminal reports whether no transition leaves the status
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved || s == IncidentStatusRejected
}

// IsMutable reports whether the reporter can still edit content
func (s IncidentStatus) IsMutable() bool {
	return s == IncidentStatusNew || s == IncidentStatusInProgress
}

// Incident is an emergency report filed by a citizen
type Incident struct {
	bun.BaseModel `bun:"table:incidents,alias:inc"`
	ID            uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ReporterID    uuid.UUID        `bun:"reporter_id,notnull,type:uuid" json:"reporter_id"`
	Reporter      *Citizen         `bun:"rel:belongs-to,join:reporter_id=id" json:"reporter,omitempty"`
	Type          IncidentType     `bun:"type,notnull" json:"type"`
	Description   string           `bun:"description,notnull" json:"description"`
	Severity      Severity         `bun:"severity,notnull" json:"severity"`
	Latitude      float64          `bun:"latitude,notnull,type:decimal(10,8)" json:"latitude"`
	Longitude     float64          `bun:"longitude,notnull,type:decimal(11,8)" json:"longitude"`
	Address       string           `bun:"address" json:"address,omitempty"`
	Status        IncidentStatus   `bun:"status,notnull" json:"status"`
	ArchivedAt    *time.Time       `bun:"archived_at,nullzero" json:"archived_at,omitempty"`
	Media         []*IncidentMedia `bun:"rel:has-many,join:id=incident_id" json:"media,omitempty"`
	CreatedAt     time.Time        `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time        `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// ReporterView is the public part of a reporter shown next to an incident
type ReporterView struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Province string    `json:"province,omitempty"`
	Canton   string    `json:"canton,omitempty"`
	District string    `json:"district,omitempty"`
}

// PublicView projects the citizen to the fields other users may see
func (c *Citizen) PublicView() *ReporterView {
	if c == nil {
		return nil
	}
	return &ReporterView{
		ID:       c.ID,
		Name:     c.FullName(),
		Province: c.Province,
		Canton:   c.Canton,
		District: c.District,
	}
}

// MarshalJSON writes the reporter as a ReporterView. Contact data, legal id
// and strike state never leave through an incident.
func (i Incident) MarshalJSON() ([]byte, error) {
	type incident Incident
	return json.Marshal(struct {
		incident
		Reporter *ReporterView `json:"reporter,omitempty"`
	}{
		incident: incident(i),
		Reporter: i.Reporter.PublicView(),
	})
}

// IsArchived reports whether the sweep marked the incident
func (i *Incident) IsArchived() bool {
	return i != nil && i.ArchivedAt != nil
}

// EnsureStatus defaults an empty status to NEW
func (i *Incident) EnsureStatus() {
	if i != nil && i.Status == "" {
		i.Status = IncidentStatusNew
	}
}

// RoundCoordinate rounds to the eight decimal places stored by the schema
func RoundCoordinate(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// MediaKind is the attachment kind
type MediaKind string

const (
	MediaPhoto MediaKind = "PHOTO"
	MediaVideo MediaKind = "VIDEO"
)

// IncidentMedia is an attachment stored by the media provider
type IncidentMedia struct {
	bun.BaseModel `bun:"table:incident_media,alias:med"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	IncidentID    uuid.UUID `bun:"incident_id,notnull,type:uuid" json:"incident_id"`
	URL           string    `bun:"url,notnull" json:"url"`
	PublicID      string    `bun:"public_id,notnull" json:"public_id"`
	Kind          MediaKind `bun:"kind,notnull" json:"kind"`
	Format        string    `bun:"format" json:"format,omitempty"`
	Size          int64     `bun:"size_bytes" json:"size_bytes,omitempty"`
	UploadedAt    time.Time `bun:"uploaded_at,nullzero,notnull,default:current_timestamp" json:"uploaded_at"`
}

// MediaFile is an upload candidate. Data travels base64 encoded in JSON.
type MediaFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

const (
	MaxMediaBytes     = 10 << 20
	MaxMediaPerUpload = 10
)

// AcceptedMediaTypes are the photo and video types an incident may carry
var AcceptedMediaTypes = []string{
	"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp",
	"video/mp4", "video/mpeg", "video/quicktime", "video/webm",
}

// ValidateMediaFiles rejects the whole batch if one file is unusable
func ValidateMediaFiles(files []MediaFile) error {
	if len(files) > MaxMediaPerUpload {
		return withMeta(ErrUnsupportedMedia, map[string]any{
			"reason":   "too many files",
			"max":      MaxMediaPerUpload,
			"received": len(files),
		})
	}
	for _, f := range files {
		meta := map[string]any{"file": f.Filename, "content_type": f.ContentType}
		switch {
		case len(f.Data) == 0:
			meta["reason"] = "empty file"
		case len(f.Data) > MaxMediaBytes:
			meta["reason"] = "file too large"
			meta["max_bytes"] = MaxMediaBytes
		case !slices.Contains(AcceptedMediaTypes, strings.ToLower(f.ContentType)):
			meta["reason"] = "content type not accepted"
		default:
			continue
		}
		return withMeta(ErrUnsupportedMedia, meta)
	}
	return nil
}

// PasswordResetToken is a single use credential reset grant
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string    `bun:"email,notnull" json:"email"`
	Token         string    `bun:"token,notnull,unique" json:"-"`
	Role          RoleTag   `bun:"role,notnull" json:"role"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
	Used          bool      `bun:"used,notnull" json:"used"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// IsUsable reports whether the token can still be consumed at now
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return t != nil && !t.Used && now.Before(t.ExpiresAt)
}

// NotificationStatus is the inbox state of a notification
type NotificationStatus string

const (
	NotificationSent NotificationStatus = "SENT"
	NotificationRead NotificationStatus = "READ"
)

// Notification is an inbox message addressed to any identity
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:ntf"`
	ID            uuid.UUID          `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	RecipientRole RoleTag            `bun:"recipient_role,notnull" json:"recipient_role"`
	RecipientID   uuid.UUID          `bun:"recipient_id,notnull,type:uuid" json:"recipient_id"`
	IncidentID    *uuid.UUID         `bun:"incident_id,type:uuid" json:"incident_id,omitempty"`
	Message       string             `bun:"message,notnull" json:"message"`
	Status        NotificationStatus `bun:"status,notnull" json:"status"`
	CreatedAt     time.Time          `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
