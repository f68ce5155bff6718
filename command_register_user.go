package lazarus

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix
const DefaultPhoneRegion = "CR"

// AddressFields is the province/canton/district hierarchy shared by all identities
type AddressFields struct {
	Province string `json:"province"`
	Canton   string `json:"canton"`
	District string `json:"district"`
}

type RegisterCitizenMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	LegalID   string `json:"legal_id"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Phone     string `json:"phone_number"`
	Address   string `json:"address"`
	AddressFields
}

func (e RegisterCitizenMessage) Type() string { return "citizen.register" }

func (e RegisterCitizenMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&e.LastName, validation.Required, validation.Length(1, 100)),
		validation.Field(&e.LegalID, validation.Required, validation.Length(5, 20)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.Phone, validation.Length(7, 20)),
	)
}

type RegisterEntityMessage struct {
	Name           string         `json:"name"`
	Category       EntityCategory `json:"category"`
	Email          string         `json:"email"`
	Password       string         `json:"password"`
	EmergencyPhone string         `json:"emergency_phone"`
	Location       string         `json:"location"`
	AddressFields
}

func (e RegisterEntityMessage) Type() string { return "entity.register" }

func (e RegisterEntityMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Category, validation.Required, validation.In(EntityCategories...)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.EmergencyPhone, validation.Required, validation.Length(3, 20)),
	)
}

type RegisterAdminMessage struct {
	FirstName   string      `json:"first_name"`
	LastName    string      `json:"last_name"`
	Email       string      `json:"email"`
	Password    string      `json:"password"`
	AccessLevel AccessLevel `json:"access_level"`
	AddressFields
	// UseHashid derives the id from the email, so reseeding is stable
	UseHashid bool `json:"-"`
}

func (e RegisterAdminMessage) Type() string { return "admin.register" }

func (e RegisterAdminMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required, validation.Length(1, 100)),
		validation.Field(&e.LastName, validation.Length(0, 100)),
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(&e.AccessLevel, validation.In(AccessLevels...)),
	)
}

// RegisterHandler creates identities of the three kinds. Every path goes
// through the same EmailAvailableTx check.
type RegisterHandler struct {
	repo         RepositoryManager
	notifier     Notifier
	activity     ActivitySink
	logger       Logger
	phoneRegion  string
	now          func() time.Time
	hashPassword func(string) (string, error)
}

// NewRegisterHandler creates a handler with sane defaults.
func NewRegisterHandler(repo RepositoryManager) *RegisterHandler {
	return &RegisterHandler{
		repo:         repo,
		notifier:     noopNotifier{},
		activity:     noopActivitySink{},
		logger:       defLogger{},
		phoneRegion:  DefaultPhoneRegion,
		now:          time.Now,
		hashPassword: HashPassword,
	}
}

func (h *RegisterHandler) WithNotifier(n Notifier) *RegisterHandler {
	if n != nil {
		h.notifier = n
	}
	return h
}

func (h *RegisterHandler) WithActivitySink(sink ActivitySink) *RegisterHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterHandler) WithLogger(logger Logger) *RegisterHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithPhoneRegion sets the default region used to parse phone numbers
func (h *RegisterHandler) WithPhoneRegion(region string) *RegisterHandler {
	if region != "" {
		h.phoneRegion = strings.ToUpper(region)
	}
	return h
}

// WithPasswordHasher overrides the credential hasher
func (h *RegisterHandler) WithPasswordHasher(fn func(string) (string, error)) *RegisterHandler {
	if fn != nil {
		h.hashPassword = fn
	}
	return h
}

// RegisterCitizen is open to anyone
func (h *RegisterHandler) RegisterCitizen(ctx context.Context, event RegisterCitizenMessage) (*Identity, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during citizen registration")
	default:
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid citizen registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	phone, err := h.normalizePhone(event.Phone, false)
	if err != nil {
		return nil, err
	}

	citizen := &Citizen{
		FirstName: strings.TrimSpace(event.FirstName),
		LastName:  strings.TrimSpace(event.LastName),
		LegalID:   strings.TrimSpace(event.LegalID),
		Email:     NormalizeEmail(event.Email),
		Phone:     phone,
		Province:  event.Province,
		Canton:    event.Canton,
		District:  event.District,
		Address:   event.Address,
		Strikes:   0,
		Active:    true,
	}

	return h.register(ctx, ActorRef{Type: "anonymous"}, CitizenIdentity(citizen), event.Password, func(ctx context.Context, tx bun.IDB) error {
		available, err := h.repo.Identities().LegalIDAvailableTx(ctx, tx, citizen.LegalID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check legal id availability")
		}
		if !available {
			return withMeta(ErrLegalIDTaken, map[string]any{"legal_id": citizen.LegalID})
		}
		return nil
	})
}

// RegisterEntity requires an admin actor
func (h *RegisterHandler) RegisterEntity(ctx context.Context, actor *Identity, event RegisterEntityMessage) (*Identity, error) {
	if !actor.IsAdmin() {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "register_entity"})
	}

	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid entity registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	phone := strings.TrimSpace(event.EmergencyPhone)
	if !isShortCode(phone) {
		var err error
		if phone, err = h.normalizePhone(phone, true); err != nil {
			return nil, err
		}
	}

	entity := &Entity{
		Name:           strings.TrimSpace(event.Name),
		Category:       event.Category,
		Email:          NormalizeEmail(event.Email),
		EmergencyPhone: phone,
		Province:       event.Province,
		Canton:         event.Canton,
		District:       event.District,
		Location:       event.Location,
		Active:         true,
	}

	return h.register(ctx, actor.ActorRef(), EntityIdentity(entity), event.Password, nil)
}

// RegisterAdmin requires an admin actor
func (h *RegisterHandler) RegisterAdmin(ctx context.Context, actor *Identity, event RegisterAdminMessage) (*Identity, error) {
	if !actor.IsAdmin() {
		return nil, withMeta(ErrForbidden, map[string]any{"operation": "register_admin"})
	}
	return h.registerAdmin(ctx, actor.ActorRef(), event)
}

// SeedAdmin creates the bootstrap administrator when its email is free. It
// is a no-op when the account already exists.
func (h *RegisterHandler) SeedAdmin(ctx context.Context, event RegisterAdminMessage) (*Identity, bool, error) {
	existing, err := h.repo.Identities().FindByEmail(ctx, RoleAdmin, event.Email)
	if err == nil {
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up bootstrap admin")
	}

	event.UseHashid = true
	if event.AccessLevel == "" {
		event.AccessLevel = AccessSuperAdmin
	}

	identity, err := h.registerAdmin(ctx, SystemActor, event)
	if err != nil {
		return nil, false, err
	}
	return identity, true, nil
}

func (h *RegisterHandler) registerAdmin(ctx context.Context, actor ActorRef, event RegisterAdminMessage) (*Identity, error) {
	if err := event.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid admin registration payload").
			WithCode(goerrors.CodeBadRequest)
	}

	level := event.AccessLevel
	if level == "" {
		level = AccessAdmin
	}

	admin := &Admin{
		FirstName:   strings.TrimSpace(event.FirstName),
		LastName:    strings.TrimSpace(event.LastName),
		Email:       NormalizeEmail(event.Email),
		AccessLevel: level,
		Province:    event.Province,
		Canton:      event.Canton,
		District:    event.District,
		Active:      true,
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(admin.Email); err == nil {
			admin.ID = id
		}
	}

	return h.register(ctx, actor, AdminIdentity(admin), event.Password, nil)
}

func (h *RegisterHandler) register(ctx context.Context, actor ActorRef, identity *Identity, password string, extra func(context.Context, bun.IDB) error) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	hash, err := h.hashPassword(password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	setPasswordHash(identity, hash)

	var created *Identity
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		available, err := h.repo.Identities().EmailAvailableTx(ctx, tx, identity.Email())
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email availability")
		}
		if !available {
			return withMeta(ErrEmailTaken, map[string]any{"email": identity.Email()})
		}

		if extra != nil {
			if err := extra(ctx, tx); err != nil {
				return err
			}
		}

		if created, err = h.repo.Identities().CreateTx(ctx, tx, identity); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create identity").
				WithCode(goerrors.CodeConflict)
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "identity registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, h.now, ActivityEvent{
		EventType: ActivityEventRegistered,
		Actor:     actor,
		Subject:   created.Ref(),
	})

	if err := h.notifier.SendWelcome(ctx, created); err != nil {
		h.logger.Warn("welcome notification failed", "role", created.Role, "error", err)
	}

	return created, nil
}

// normalizePhone formats the number as E.164
func (h *RegisterHandler) normalizePhone(raw string, required bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return "", goerrors.New("phone number is required", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest)
		}
		return "", nil
	}

	num, err := phonenumbers.Parse(raw, h.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("invalid phone number", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"phone": raw})
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// isShortCode matches emergency short numbers such as 911 or 1028
func isShortCode(raw string) bool {
	if len(raw) < 3 || len(raw) > 6 {
		return false
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func setPasswordHash(identity *Identity, hash string) {
	switch {
	case identity.Citizen != nil:
		identity.Citizen.PasswordHash = hash
	case identity.Entity != nil:
		identity.Entity.PasswordHash = hash
	case identity.Admin != nil:
		identity.Admin.PasswordHash = hash
	}
}
