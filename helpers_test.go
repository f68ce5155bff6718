package lazarus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testConfig struct {
	expiration time.Duration
}

func (testConfig) GetSigningKey() string { return "a-test-signing-key-that-is-long-enough" }
func (c testConfig) GetTokenExpiration() time.Duration {
	if c.expiration == 0 {
		return time.Hour
	}
	return c.expiration
}
func (testConfig) GetIssuer() string                      { return "lazarus" }
func (testConfig) GetAudience() []string                  { return nil }
func (testConfig) GetResetTokenExpiration() time.Duration { return time.Hour }

func newRepo(t *testing.T) lazarus.RepositoryManager {
	t.Helper()
	ctx := context.Background()

	store, err := database.Open(ctx, database.Options{
		Driver: database.DriverSQLite,
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	return lazarus.NewRepositoryManager(store.DB())
}

func cheapHash(password string) (string, error) {
	if password == "" {
		return "", lazarus.ErrNoEmptyString
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(h), err
}

type strikeCall struct {
	CitizenID  uuid.UUID
	Strikes    int
	IncidentID uuid.UUID
	Disabled   bool
}

type statusCall struct {
	CitizenID  uuid.UUID
	IncidentID uuid.UUID
	From, To   lazarus.IncidentStatus
}

// captureNotifier records every notification it is asked to send
type captureNotifier struct {
	mu          sync.Mutex
	welcomes    []lazarus.IdentityRef
	statuses    []statusCall
	strikes     []strikeCall
	reactivated []uuid.UUID
	resets      map[string]string
	resetErr    error
}

func newCaptureNotifier() *captureNotifier {
	return &captureNotifier{resets: map[string]string{}}
}

func (n *captureNotifier) SendWelcome(_ context.Context, identity *lazarus.Identity) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.welcomes = append(n.welcomes, identity.Ref())
	return nil
}

func (n *captureNotifier) SendStatusChange(_ context.Context, citizen *lazarus.Citizen, incidentID uuid.UUID, from, to lazarus.IncidentStatus, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, statusCall{CitizenID: citizen.ID, IncidentID: incidentID, From: from, To: to})
	return nil
}

func (n *captureNotifier) SendStrike(_ context.Context, citizen *lazarus.Citizen, strikes int, incidentID uuid.UUID, disabled bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.strikes = append(n.strikes, strikeCall{CitizenID: citizen.ID, Strikes: strikes, IncidentID: incidentID, Disabled: disabled})
	return nil
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, email, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.resetErr != nil {
		return n.resetErr
	}
	n.resets[email] = token
	return nil
}

func (n *captureNotifier) SendReactivated(_ context.Context, citizen *lazarus.Citizen, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reactivated = append(n.reactivated, citizen.ID)
	return nil
}

func (n *captureNotifier) strikeCalls() []strikeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]strikeCall(nil), n.strikes...)
}

func (n *captureNotifier) token(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resets[email]
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) IncidentCreated(ctx context.Context, event lazarus.IncidentCreatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBroadcaster) IncidentUpdated(ctx context.Context, event lazarus.IncidentUpdatedEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockBroadcaster) NearbyIncident(ctx context.Context, userIDs []uuid.UUID, event lazarus.NearbyIncidentEvent) error {
	args := m.Called(ctx, userIDs, event)
	return args.Error(0)
}

// recordingSink keeps activity events in memory
type recordingSink struct {
	mu     sync.Mutex
	events []lazarus.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event lazarus.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) ofType(eventType lazarus.ActivityEventType) []lazarus.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []lazarus.ActivityEvent{}
	for _, e := range s.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// world is a fully wired set of services over one database
type world struct {
	repo      lazarus.RepositoryManager
	notifier  *captureNotifier
	sink      *recordingSink
	register  *lazarus.RegisterHandler
	resolver  *lazarus.AuthResolver
	tokens    *lazarus.TokenService
	auth      *lazarus.Auther
	ledger    *lazarus.StrikeLedger
	locations *lazarus.LocationRegistry
	admin     *lazarus.Identity
}

const testPassword = "correct-horse-battery"

func newWorld(t *testing.T) *world {
	t.Helper()

	repo := newRepo(t)
	notifier := newCaptureNotifier()
	sink := &recordingSink{}

	w := &world{
		repo:      repo,
		notifier:  notifier,
		sink:      sink,
		locations: lazarus.NewLocationRegistry(),
	}
	w.register = lazarus.NewRegisterHandler(repo).
		WithNotifier(notifier).
		WithActivitySink(sink).
		WithPasswordHasher(cheapHash)
	w.resolver = lazarus.NewAuthResolver(repo.Identities())
	w.tokens = lazarus.NewTokenService(testConfig{}, w.resolver, nil)
	w.auth = lazarus.NewAuthenticator(w.resolver, w.tokens).WithActivitySink(sink)
	w.ledger = lazarus.NewStrikeLedger(repo, notifier).WithActivitySink(sink)

	admin, created, err := w.register.SeedAdmin(context.Background(), lazarus.RegisterAdminMessage{
		FirstName: "Root",
		Email:     "root@lazarus.test",
		Password:  testPassword,
	})
	require.NoError(t, err)
	require.True(t, created)
	w.admin = admin

	return w
}

func (w *world) lifecycle(opts ...lazarus.LifecycleOption) *lazarus.IncidentLifecycle {
	base := []lazarus.LifecycleOption{
		lazarus.WithLifecycleNotifier(w.notifier),
		lazarus.WithLifecycleActivitySink(w.sink),
		lazarus.WithLifecycleLocations(w.locations),
	}
	return lazarus.NewIncidentLifecycle(w.repo, w.ledger, append(base, opts...)...)
}

func (w *world) citizen(t *testing.T, email, legalID string) *lazarus.Identity {
	t.Helper()
	identity, err := w.register.RegisterCitizen(context.Background(), lazarus.RegisterCitizenMessage{
		FirstName: "Ana",
		LastName:  "Mora",
		LegalID:   legalID,
		Email:     email,
		Password:  testPassword,
	})
	require.NoError(t, err)
	return identity
}

func (w *world) entity(t *testing.T, email string) *lazarus.Identity {
	t.Helper()
	identity, err := w.register.RegisterEntity(context.Background(), w.admin, lazarus.RegisterEntityMessage{
		Name:           "Bomberos Central",
		Category:       lazarus.EntityFirefighters,
		Email:          email,
		Password:       testPassword,
		EmergencyPhone: "911",
	})
	require.NoError(t, err)
	return identity
}

func (w *world) reload(t *testing.T, identity *lazarus.Identity) *lazarus.Identity {
	t.Helper()
	fresh, err := w.repo.Identities().FindByID(context.Background(), identity.Role, identity.ID())
	require.NoError(t, err)
	return fresh
}

func fireReport(lat, lng float64) lazarus.CreateIncidentMessage {
	return lazarus.CreateIncidentMessage{
		Type:        lazarus.IncidentFire,
		Description: "Smoke coming out of a warehouse",
		Severity:    lazarus.SeverityHigh,
		Latitude:    lat,
		Longitude:   lng,
		Address:     "Avenida 2, San José",
	}
}

func statusPtr(s lazarus.IncidentStatus) *lazarus.IncidentStatus { return &s }

func strPtr(s string) *string { return &s }
