package lazarus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the package. Arguments after
// the message are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() time.Duration
	GetIssuer() string
	GetAudience() []string
	GetResetTokenExpiration() time.Duration
}

// IdentityResolver finds identities across the three account collections
type IdentityResolver interface {
	ResolveByEmail(ctx context.Context, email string) (*Identity, error)
	ResolveByID(ctx context.Context, id uuid.UUID, role RoleTag) (*Identity, error)
}

// CredentialValidator authenticates an email/password pair
type CredentialValidator interface {
	IdentityResolver
	ValidateCredentials(ctx context.Context, email, password string) (*Identity, error)
}

// TokenIssuer issues and verifies session credentials
type TokenIssuer interface {
	Issue(ctx context.Context, identity *Identity) (string, time.Time, error)
	Verify(ctx context.Context, token string) (*JWTClaims, error)
}

// Notifier is the outbound notification fan-out. Implementations deliver
// out-of-band (email, inbox); callers decide whether a failure matters.
type Notifier interface {
	SendWelcome(ctx context.Context, identity *Identity) error
	SendStatusChange(ctx context.Context, citizen *Citizen, incidentID uuid.UUID, from, to IncidentStatus, description string) error
	SendStrike(ctx context.Context, citizen *Citizen, strikes int, incidentID uuid.UUID, disabled bool) error
	SendPasswordReset(ctx context.Context, email, displayName, token string) error
	SendReactivated(ctx context.Context, citizen *Citizen, strikes int) error
}

// Broadcaster pushes realtime incident events to connected clients
type Broadcaster interface {
	IncidentCreated(ctx context.Context, event IncidentCreatedEvent) error
	IncidentUpdated(ctx context.Context, event IncidentUpdatedEvent) error
	NearbyIncident(ctx context.Context, userIDs []uuid.UUID, event NearbyIncidentEvent) error
}

// MediaStore uploads incident attachments to external storage
type MediaStore interface {
	UploadMany(ctx context.Context, incidentID uuid.UUID, files []MediaFile) ([]*IncidentMedia, error)
	// Delete removes stored files by their public id. Unknown ids are not an
	// error.
	Delete(ctx context.Context, publicIDs ...string) error
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(logLine("ERR", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(logLine("WRN", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(logLine("INF", msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(logLine("DBG", msg, args...))
}

func logLine(level, msg string, args ...any) string {
	line := fmt.Sprintf("[%s] LAZARUS %s", level, msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			line += fmt.Sprintf(" %v=%v", args[i], args[i+1])
		} else {
			line += fmt.Sprintf(" %v", args[i])
		}
	}
	return line + "\n"
}

type noopNotifier struct{}

func (noopNotifier) SendWelcome(context.Context, *Identity) error { return nil }
func (noopNotifier) SendStatusChange(context.Context, *Citizen, uuid.UUID, IncidentStatus, IncidentStatus, string) error {
	return nil
}
func (noopNotifier) SendStrike(context.Context, *Citizen, int, uuid.UUID, bool) error { return nil }
func (noopNotifier) SendPasswordReset(context.Context, string, string, string) error   { return nil }
func (noopNotifier) SendReactivated(context.Context, *Citizen, int) error              { return nil }

type noopBroadcaster struct{}

func (noopBroadcaster) IncidentCreated(context.Context, IncidentCreatedEvent) error { return nil }
func (noopBroadcaster) IncidentUpdated(context.Context, IncidentUpdatedEvent) error { return nil }
func (noopBroadcaster) NearbyIncident(context.Context, []uuid.UUID, NearbyIncidentEvent) error {
	return nil
}
