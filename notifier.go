package lazarus

import (
	"context"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Mail is a rendered outbound message
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered messages out of band
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// MailerFunc adapts a function to Mailer
type MailerFunc func(ctx context.Context, mail Mail) error

func (f MailerFunc) Send(ctx context.Context, mail Mail) error {
	if f == nil {
		return nil
	}
	return f(ctx, mail)
}

// LogMailer writes messages to the logger instead of delivering them
type LogMailer struct {
	Logger Logger
}

func (m LogMailer) Send(_ context.Context, mail Mail) error {
	logger := m.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info("outbound mail", "to", mail.To, "subject", mail.Subject)
	return nil
}

// InboxNotifier implements Notifier by writing an inbox row for the
// recipient and then mailing them. Password reset mail has no inbox entry.
type InboxNotifier struct {
	repo     RepositoryManager
	mailer   Mailer
	logger   Logger
	resetURL string
}

var _ Notifier = (*InboxNotifier)(nil)

// NewInboxNotifier returns a notifier backed by the inbox store
func NewInboxNotifier(repo RepositoryManager, mailer Mailer) *InboxNotifier {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &InboxNotifier{
		repo:   repo,
		mailer: mailer,
		logger: defLogger{},
	}
}

func (n *InboxNotifier) WithLogger(logger Logger) *InboxNotifier {
	if logger != nil {
		n.logger = logger
	}
	return n
}

// WithResetURL sets the link prefix used in reset mail. The token is
// appended to it.
func (n *InboxNotifier) WithResetURL(url string) *InboxNotifier {
	n.resetURL = url
	return n
}

func (n *InboxNotifier) SendWelcome(ctx context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}
	msg := fmt.Sprintf("Welcome to Lazarus, %s.", identity.DisplayName())
	if err := n.store(ctx, identity.Ref(), nil, msg); err != nil {
		return err
	}
	return n.mailer.Send(ctx, Mail{To: identity.Email(), Subject: "Welcome to Lazarus", Body: msg})
}

func (n *InboxNotifier) SendStatusChange(ctx context.Context, citizen *Citizen, incidentID uuid.UUID, from, to IncidentStatus, description string) error {
	if citizen == nil {
		return nil
	}
	msg := fmt.Sprintf("Your incident report changed from %s to %s: %s", from, to, summarize(description, 80))
	if err := n.store(ctx, IdentityRef{ID: citizen.ID, Role: RoleCitizen}, &incidentID, msg); err != nil {
		return err
	}
	return n.mailer.Send(ctx, Mail{To: citizen.Email, Subject: "Incident status update", Body: msg})
}

func (n *InboxNotifier) SendStrike(ctx context.Context, citizen *Citizen, strikes int, incidentID uuid.UUID, disabled bool) error {
	if citizen == nil {
		return nil
	}
	msg := fmt.Sprintf("A report of yours was rejected. You now have %d of %d strikes.", strikes, MaxStrikes)
	ref := &incidentID
	if incidentID == uuid.Nil {
		msg = fmt.Sprintf("A strike was recorded against your account. You now have %d of %d strikes.", strikes, MaxStrikes)
		ref = nil
	}
	if disabled {
		msg += " Your account has been disabled."
	}
	if err := n.store(ctx, IdentityRef{ID: citizen.ID, Role: RoleCitizen}, ref, msg); err != nil {
		return err
	}
	return n.mailer.Send(ctx, Mail{To: citizen.Email, Subject: "Strike recorded", Body: msg})
}

func (n *InboxNotifier) SendPasswordReset(ctx context.Context, email, displayName, token string) error {
	body := fmt.Sprintf("Hello %s, use this code to reset your password within the hour: %s", displayName, token)
	if n.resetURL != "" {
		body = fmt.Sprintf("Hello %s, reset your password within the hour: %s%s", displayName, n.resetURL, token)
	}
	return n.mailer.Send(ctx, Mail{To: email, Subject: "Password reset", Body: body})
}

func (n *InboxNotifier) SendReactivated(ctx context.Context, citizen *Citizen, strikes int) error {
	if citizen == nil {
		return nil
	}
	msg := fmt.Sprintf("Your account has been reactivated with %d strikes.", strikes)
	if err := n.store(ctx, IdentityRef{ID: citizen.ID, Role: RoleCitizen}, nil, msg); err != nil {
		return err
	}
	return n.mailer.Send(ctx, Mail{To: citizen.Email, Subject: "Account reactivated", Body: msg})
}

func (n *InboxNotifier) store(ctx context.Context, recipient IdentityRef, incidentID *uuid.UUID, message string) error {
	return n.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := n.repo.Notifications().CreateTx(ctx, tx, &Notification{
			RecipientRole: recipient.Role,
			RecipientID:   recipient.ID,
			IncidentID:    incidentID,
			Message:       message,
			Status:        NotificationSent,
		})
		return err
	})
}

func summarize(s string, max int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

type CreateNotificationMessage struct {
	RecipientRole RoleTag    `json:"recipient_type"`
	RecipientID   uuid.UUID  `json:"recipient_id"`
	IncidentID    *uuid.UUID `json:"incident_id,omitempty"`
	Message       string     `json:"message"`
}

func (e CreateNotificationMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RecipientRole, validation.Required, validation.In(RoleCitizen, RoleEntity, RoleAdmin)),
		validation.Field(&e.RecipientID, validation.By(notNilUUID)),
		validation.Field(&e.Message, validation.Required, validation.Length(1, 1000)),
	)
}

func notNilUUID(value interface{}) error {
	if id, ok := value.(uuid.UUID); ok && id == uuid.Nil {
		return fmt.Errorf("cannot be blank")
	}
	return nil
}

// NotificationService is the per recipient inbox
type NotificationService struct {
	repo     RepositoryManager
	logger   Logger
	activity ActivitySink
	now      func() time.Time
}

func NewNotificationService(repo RepositoryManager) *NotificationService {
	return &NotificationService{repo: repo, logger: defLogger{}, activity: noopActivitySink{}, now: time.Now}
}

// WithActivitySink sets the ActivitySink used to audit system messages.
func (s *NotificationService) WithActivitySink(sink ActivitySink) *NotificationService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *NotificationService) WithLogger(logger Logger) *NotificationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// List returns the caller's notifications newest first
func (s *NotificationService) List(ctx context.Context, actor *Identity, unreadOnly bool) ([]*Notification, error) {
	if actor == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "list_notifications"})
	}
	return s.repo.Notifications().ListFor(ctx, actor.Ref(), unreadOnly)
}

// MarkRead marks one of the caller's notifications read
func (s *NotificationService) MarkRead(ctx context.Context, actor *Identity, id uuid.UUID) (*Notification, error) {
	if actor == nil {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "read_notification"})
	}
	return s.repo.Notifications().MarkRead(ctx, actor.Ref(), id)
}

// MarkAllRead returns how many notifications changed
func (s *NotificationService) MarkAllRead(ctx context.Context, actor *Identity) (int, error) {
	if actor == nil {
		return 0, withMeta(ErrForbidden, map[string]any{"operation": "read_notifications"})
	}
	return s.repo.Notifications().MarkAllRead(ctx, actor.Ref())
}

func (s *NotificationService) Delete(ctx context.Context, actor *Identity, id uuid.UUID) error {
	if actor == nil {
		return withMeta(ErrForbidden, map[string]any{"operation": "delete_notification"})
	}
	return s.repo.Notifications().Delete(ctx, actor.Ref(), id)
}

// Create sends a direct message. Only entities and admins may do this.
func (s *NotificationService) Create(ctx context.Context, actor *Identity, event CreateNotificationMessage) (*Notification, error) {
	if actor == nil || actor.Role == RoleCitizen {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "create_notification"})
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid notification payload").
			WithCode(goerrors.CodeBadRequest)
	}

	if _, err := s.repo.Identities().FindByID(ctx, event.RecipientRole, event.RecipientID); err != nil {
		return nil, err
	}

	var created *Notification
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		created, err = s.repo.Notifications().CreateTx(ctx, tx, &Notification{
			RecipientRole: event.RecipientRole,
			RecipientID:   event.RecipientID,
			IncidentID:    event.IncidentID,
			Message:       strings.TrimSpace(event.Message),
			Status:        NotificationSent,
			CreatedAt:     s.now(),
		})
		return err
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create notification")
	}
	return created, nil
}

// SystemMessage is an admin notice. Without a recipient id every active
// identity of the role receives it.
type SystemMessage struct {
	RecipientRole RoleTag    `json:"recipient_type"`
	RecipientID   *uuid.UUID `json:"recipient_id,omitempty"`
	Message       string     `json:"message"`
}

func (e SystemMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.RecipientRole, validation.Required, validation.In(RoleCitizen, RoleEntity, RoleAdmin)),
		validation.Field(&e.RecipientID, validation.NilOrNotEmpty),
		validation.Field(&e.Message, validation.Required, validation.Length(1, 1000)),
	)
}

// SendSystemMessage stores an admin notice in the recipients' inboxes and
// returns how many were written.
func (s *NotificationService) SendSystemMessage(ctx context.Context, actor *Identity, event SystemMessage) (int, error) {
	if !actor.IsAdmin() {
		return 0, withMeta(ErrForbidden, map[string]any{"operation": "system_message"})
	}

	if err := event.Validate(); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid system message").
			WithCode(goerrors.CodeBadRequest)
	}

	var recipients []IdentityRef
	if event.RecipientID != nil {
		identity, err := s.repo.Identities().FindByID(ctx, event.RecipientRole, *event.RecipientID)
		if err != nil {
			return 0, err
		}
		recipients = append(recipients, identity.Ref())
	} else {
		all, err := s.repo.Identities().List(ctx, event.RecipientRole)
		if err != nil {
			return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list recipients").
				WithMetadata(map[string]any{"role": event.RecipientRole})
		}
		for _, identity := range all {
			if identity.IsActive() {
				recipients = append(recipients, identity.Ref())
			}
		}
	}

	message := "[System] " + strings.TrimSpace(event.Message)
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, ref := range recipients {
			if _, err := s.repo.Notifications().CreateTx(ctx, tx, &Notification{
				RecipientRole: ref.Role,
				RecipientID:   ref.ID,
				Message:       message,
				Status:        NotificationSent,
				CreatedAt:     s.now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store system message")
	}

	recordActivity(ctx, s.activity, s.logger, s.now, ActivityEvent{
		EventType: ActivityEventSystemMessage,
		Actor:     actor.ActorRef(),
		Metadata: map[string]any{
			"recipient_role": event.RecipientRole,
			"recipients":     len(recipients),
		},
	})

	return len(recipients), nil
}
