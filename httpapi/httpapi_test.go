package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	lazarus "github.com/goliatone/go-lazarus"
	"github.com/goliatone/go-lazarus/database"
	"github.com/goliatone/go-lazarus/httpapi"
	"github.com/goliatone/go-lazarus/middleware/jwtware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct{}

func (testConfig) GetSigningKey() string                  { return "an-http-test-signing-key-of-32-chars!" }
func (testConfig) GetTokenExpiration() time.Duration      { return time.Hour }
func (testConfig) GetIssuer() string                      { return "lazarus" }
func (testConfig) GetAudience() []string                  { return nil }
func (testConfig) GetResetTokenExpiration() time.Duration { return time.Hour }

type resetCapture struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (r *resetCapture) SendWelcome(context.Context, *lazarus.Identity) error { return nil }
func (r *resetCapture) SendStatusChange(context.Context, *lazarus.Citizen, uuid.UUID, lazarus.IncidentStatus, lazarus.IncidentStatus, string) error {
	return nil
}
func (r *resetCapture) SendStrike(context.Context, *lazarus.Citizen, int, uuid.UUID, bool) error {
	return nil
}
func (r *resetCapture) SendReactivated(context.Context, *lazarus.Citizen, int) error { return nil }
func (r *resetCapture) SendPasswordReset(_ context.Context, email, _ string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[email] = token
	return nil
}

func (r *resetCapture) token(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[email]
}

type fixture struct {
	app        *fiber.App
	resets     *resetCapture
	media      *memMedia
	adminToken string
}

const (
	adminEmail    = "root@lazarus.test"
	adminPassword = "root-password"
)

// memMedia stands in for the media host
type memMedia struct {
	mu      sync.Mutex
	deleted []string
}

func (m *memMedia) UploadMany(_ context.Context, incidentID uuid.UUID, files []lazarus.MediaFile) ([]*lazarus.IncidentMedia, error) {
	out := make([]*lazarus.IncidentMedia, 0, len(files))
	for _, f := range files {
		out = append(out, &lazarus.IncidentMedia{
			IncidentID: incidentID,
			URL:        "https://media.test/" + f.Filename,
			PublicID:   "lazarus/" + uuid.NewString(),
			Kind:       lazarus.MediaPhoto,
			Size:       int64(len(f.Data)),
		})
	}
	return out, nil
}

func (m *memMedia) Delete(_ context.Context, publicIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, publicIDs...)
	return nil
}

func (m *memMedia) deletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}

func setup(t *testing.T, opts ...httpapi.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := database.Open(ctx, database.Options{
		Driver: database.DriverSQLite,
		URL:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	repo := lazarus.NewRepositoryManager(store.DB())
	notifier := &resetCapture{tokens: map[string]string{}}
	media := &memMedia{}

	resolver := lazarus.NewAuthResolver(repo.Identities())
	tokens := lazarus.NewTokenService(testConfig{}, resolver, nil)
	auther := lazarus.NewAuthenticator(resolver, tokens)
	register := lazarus.NewRegisterHandler(repo).WithNotifier(notifier)
	ledger := lazarus.NewStrikeLedger(repo, notifier)

	_, _, err = register.SeedAdmin(ctx, lazarus.RegisterAdminMessage{
		FirstName: "Root",
		Email:     adminEmail,
		Password:  adminPassword,
	})
	require.NoError(t, err)

	controller := httpapi.NewController(httpapi.Services{
		Auth:       auther,
		Register:   register,
		Resets:     lazarus.NewPasswordResetFlow(repo, resolver, notifier),
		Identities: lazarus.NewIdentityAdmin(repo),
		Strikes:    ledger,
		Incidents: lazarus.NewIncidentLifecycle(repo, ledger,
			lazarus.WithLifecycleNotifier(notifier),
			lazarus.WithLifecycleMediaStore(media),
		),
		Notifications: lazarus.NewNotificationService(repo),
		Stats:         lazarus.NewStatisticsService(repo),
		Archiver:      lazarus.NewArchiver(repo),
	}, opts...)

	f := &fixture{
		app:    httpapi.NewServer(controller).WrappedRouter(),
		resets: notifier,
		media:  media,
	}
	f.adminToken = f.login(t, adminEmail, adminPassword)
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (f *fixture) login(t *testing.T, email, password string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, status, body)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func (f *fixture) registerCitizen(t *testing.T, email, legalID string) (string, string) {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Ana",
		"last_name":  "Mora",
		"legal_id":   legalID,
		"email":      email,
		"password":   "citizen-password",
	})
	require.Equal(t, http.StatusCreated, status, body)

	user, _ := body["user"].(map[string]any)
	require.NotNil(t, user)
	assert.Equal(t, "CITIZEN", user["role"])
	return body["access_token"].(string), user["id"].(string)
}

func (f *fixture) registerEntity(t *testing.T, email string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/entities", f.adminToken, map[string]any{
		"name":            "Bomberos Central",
		"category":        "FIREFIGHTERS",
		"email":           email,
		"password":        "entity-password",
		"emergency_phone": "911",
	})
	require.Equal(t, http.StatusCreated, status, body)
	return f.login(t, email, "entity-password")
}

func (f *fixture) createIncident(t *testing.T, token string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/incidents", token, map[string]any{
		"type":        "FIRE",
		"description": "smoke coming out of a warehouse",
		"severity":    "HIGH",
		"latitude":    9.9281,
		"longitude":   -84.0907,
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "NEW", body["status"])
	return body["id"].(string)
}

func TestHealth(t *testing.T) {
	f := setup(t)
	status, body := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestRegisterCitizenLogsIn(t *testing.T) {
	f := setup(t)
	token, id := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")

	status, body := f.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "ana@lazarus.test", body["email"])
	assert.NotContains(t, body, "password_hash")
}

func TestRegisterDuplicateEmailAcrossRoles(t *testing.T) {
	f := setup(t)

	status, body := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"first_name": "Ana",
		"last_name":  "Mora",
		"legal_id":   "1-2222-2222",
		"email":      adminEmail,
		"password":   "citizen-password",
	})
	assert.Equal(t, http.StatusConflict, status)

	errBody, _ := body["error"].(map[string]any)
	require.NotNil(t, errBody)
	assert.Equal(t, lazarus.TextCodeEmailTaken, errBody["text_code"])
}

func TestRegisterValidationErrorsListFields(t *testing.T) {
	f := setup(t)

	status, body := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	errBody, _ := body["error"].(map[string]any)
	require.NotNil(t, errBody)
	fields, _ := errBody["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")
}

func TestLoginFailures(t *testing.T) {
	f := setup(t)

	status, _ := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    adminEmail,
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email":    "nobody@lazarus.test",
		"password": "whatever-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := setup(t)

	status, _ := f.do(t, http.MethodGet, "/api/incidents", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.do(t, http.MethodGet, "/api/incidents", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestIncidentLifecycleOverHTTP(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := f.registerEntity(t, "bomberos@lazarus.test")

	// only citizens report
	status, _ := f.do(t, http.MethodPost, "/api/incidents", entity, map[string]any{
		"type": "FIRE", "description": "x", "severity": "LOW", "latitude": 1, "longitude": 1,
	})
	assert.Equal(t, http.StatusForbidden, status)

	id := f.createIncident(t, citizen)

	// the reporter cannot change status
	status, _ = f.do(t, http.MethodPatch, "/api/incidents/"+id, citizen, map[string]any{"status": "RESOLVED"})
	assert.Equal(t, http.StatusForbidden, status)

	// the reporter can edit content
	status, body := f.do(t, http.MethodPatch, "/api/incidents/"+id, citizen, map[string]any{"description": "warehouse on fire"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "warehouse on fire", body["description"])

	// an entity cannot edit content
	status, _ = f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{"description": "x"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "IN_PROGRESS", body["status"])

	// NEW is not reachable again
	status, _ = f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{"status": "NEW"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{"status": "RESOLVED"})
	require.Equal(t, http.StatusOK, status, body)

	// terminal
	status, _ = f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{"status": "REJECTED"})
	assert.Equal(t, http.StatusConflict, status)

	status, body = f.do(t, http.MethodGet, "/api/incidents/"+id, entity, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "RESOLVED", body["status"])

	status, body = f.do(t, http.MethodGet, "/api/incidents/mine", citizen, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, _ = f.do(t, http.MethodGet, "/api/notifications?unread=true", citizen, nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = f.do(t, http.MethodDelete, "/api/incidents/"+id, citizen, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = f.do(t, http.MethodGet, "/api/incidents/"+id, citizen, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestEmptyPatchIsRejected(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	id := f.createIncident(t, citizen)

	status, body := f.do(t, http.MethodPatch, "/api/incidents/"+id, citizen, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)
	errBody, _ := body["error"].(map[string]any)
	assert.Equal(t, lazarus.TextCodeEmptyPatch, errBody["text_code"])
}

func TestNearbyIncidents(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	f.createIncident(t, citizen)

	status, body := f.do(t, http.MethodGet, "/api/incidents/nearby?lat=9.93&lng=-84.09&radius=2", citizen, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["count"])

	status, body = f.do(t, http.MethodGet, "/api/incidents/nearby?lat=10.5&lng=-85.5&radius=2", citizen, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 0, body["count"])

	status, _ = f.do(t, http.MethodGet, "/api/incidents/nearby?lng=-84.09", citizen, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPasswordResetFlow(t *testing.T) {
	f := setup(t)
	f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")

	// unknown emails get the same answer
	status, unknown := f.do(t, http.MethodPost, "/api/auth/password-reset/request", "", map[string]any{"email": "ghost@lazarus.test"})
	require.Equal(t, http.StatusOK, status)

	status, known := f.do(t, http.MethodPost, "/api/auth/password-reset/request", "", map[string]any{"email": "ana@lazarus.test"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, unknown, known)

	token := f.resets.token("ana@lazarus.test")
	require.NotEmpty(t, token)

	status, _ = f.do(t, http.MethodPost, "/api/auth/password-reset/complete", "", map[string]any{
		"token": token, "password": "brand-new-password",
	})
	require.Equal(t, http.StatusOK, status)

	// single use
	status, _ = f.do(t, http.MethodPost, "/api/auth/password-reset/complete", "", map[string]any{
		"token": token, "password": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	f.login(t, "ana@lazarus.test", "brand-new-password")
}

func TestAdminOnlyRoutes(t *testing.T) {
	f := setup(t)
	citizen, citizenID := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")

	status, _ := f.do(t, http.MethodGet, "/api/identities/citizens", citizen, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodGet, "/api/stats/dashboard", citizen, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodGet, "/api/identities/citizens", f.adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = f.do(t, http.MethodGet, "/api/stats/dashboard", f.adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["citizens"])
	assert.EqualValues(t, 1, body["admins"])

	status, body = f.do(t, http.MethodPost, "/api/archive/run", f.adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["archived"])

	// disabling revokes the session on the next request
	status, body = f.do(t, http.MethodPatch, "/api/identities/citizens/"+citizenID+"/active", f.adminToken, map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["is_active"])

	status, _ = f.do(t, http.MethodGet, "/api/auth/me", citizen, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", lazarus.ErrIncidentNotFound, http.StatusNotFound},
		{"auth", lazarus.ErrInvalidCredentials, http.StatusUnauthorized},
		{"authz", lazarus.ErrForbidden, http.StatusForbidden},
		{"conflict", lazarus.ErrEmailTaken, http.StatusConflict},
		{"validation", lazarus.ErrInvalidTransition, http.StatusBadRequest},
		{"bad input", lazarus.ErrInvalidRole, http.StatusBadRequest},
		{"missing token", jwtware.ErrJWTMissingOrMalformed, http.StatusUnauthorized},
		{"fiber", fiber.ErrMethodNotAllowed, http.StatusMethodNotAllowed},
		{"internal", goerrors.New("boom", goerrors.CategoryInternal), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, httpapi.StatusFor(tc.err))
		})
	}
}

func TestPatchRejectsUnknownFields(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := f.registerEntity(t, "bomberos@lazarus.test")
	id := f.createIncident(t, citizen)

	status, body := f.do(t, http.MethodPatch, "/api/incidents/"+id, entity, map[string]any{
		"status": "RESOLVED",
		"notes":  "x",
	})
	require.Equal(t, http.StatusBadRequest, status, body)
	errBody, _ := body["error"].(map[string]any)
	meta, _ := errBody["metadata"].(map[string]any)
	assert.Equal(t, []any{"notes"}, meta["fields"])

	// nothing was applied
	_, body = f.do(t, http.MethodGet, "/api/incidents/"+id, entity, nil)
	assert.Equal(t, "NEW", body["status"])
}

func TestManualStrikeRoute(t *testing.T) {
	f := setup(t)
	citizen, citizenID := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := f.registerEntity(t, "bomberos@lazarus.test")

	status, _ := f.do(t, http.MethodPatch, "/api/identities/citizens/"+citizenID+"/strike", citizen, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPatch, "/api/identities/citizens/"+citizenID+"/strike", entity, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["strikes"])
	assert.Equal(t, false, body["disabled"])

	status, _ = f.do(t, http.MethodPatch, "/api/identities/citizens/"+uuid.NewString()+"/strike", entity, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestIncidentMediaRoutes(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := f.registerEntity(t, "bomberos@lazarus.test")
	id := f.createIncident(t, citizen)

	photo := func(name string) map[string]any {
		return map[string]any{"filename": name, "content_type": "image/jpeg", "data": []byte("jpeg")}
	}

	status, body := f.do(t, http.MethodPost, "/api/incidents/"+id+"/media", citizen, map[string]any{
		"media": []any{photo("front.jpg"), photo("side.jpg")},
	})
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 2, body["count"])

	status, _ = f.do(t, http.MethodPost, "/api/incidents/"+id+"/media", entity, map[string]any{
		"media": []any{photo("entity.jpg")},
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodPost, "/api/incidents/"+id+"/media", citizen, map[string]any{
		"media": []any{map[string]any{"filename": "notes.txt", "content_type": "text/plain", "data": []byte("x")}},
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = f.do(t, http.MethodGet, "/api/incidents/"+id+"/media", entity, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["count"])

	items, _ := body["data"].([]any)
	first, _ := items[0].(map[string]any)
	status, _ = f.do(t, http.MethodDelete, "/api/media/"+first["id"].(string), citizen, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = f.do(t, http.MethodDelete, "/api/incidents/"+id+"/media", citizen, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["removed"])
	assert.Equal(t, 2, f.media.deletedCount())

	status, _ = f.do(t, http.MethodDelete, "/api/media/"+uuid.NewString(), citizen, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStatisticsRoutes(t *testing.T) {
	f := setup(t)
	citizen, citizenID := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	_, otherID := f.registerCitizen(t, "luis@lazarus.test", "2-2222-2222")
	entity := f.registerEntity(t, "bomberos@lazarus.test")
	f.createIncident(t, citizen)
	f.createIncident(t, citizen)

	status, body := f.do(t, http.MethodGet, "/api/stats/incidents/recent?limit=1", entity, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 1, body["count"])

	status, body = f.do(t, http.MethodGet, "/api/stats/incidents/trends?days=7", entity, nil)
	require.Equal(t, http.StatusOK, status, body)
	points, _ := body["data"].([]any)
	require.Len(t, points, 1)
	assert.EqualValues(t, 2, points[0].(map[string]any)["count"])

	status, body = f.do(t, http.MethodGet, "/api/stats/incidents/locations", entity, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["count"])

	status, _ = f.do(t, http.MethodGet, "/api/stats/incidents/recent", citizen, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodGet, "/api/stats/users/types", entity, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, body = f.do(t, http.MethodGet, "/api/stats/users/types", f.adminToken, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["CITIZEN"])
	assert.EqualValues(t, 1, body["ENTITY"])
	assert.EqualValues(t, 1, body["ADMIN"])

	status, body = f.do(t, http.MethodGet, "/api/stats/users/citizens/"+citizenID+"/activity", citizen, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.EqualValues(t, 2, body["total_incidents"])

	status, _ = f.do(t, http.MethodGet, "/api/stats/users/citizens/"+otherID+"/activity", citizen, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = f.do(t, http.MethodGet, "/api/stats/incidents/trends?days=many", entity, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSystemMessageRoute(t *testing.T) {
	f := setup(t)
	citizen, _ := f.registerCitizen(t, "ana@lazarus.test", "1-1111-1111")
	entity := f.registerEntity(t, "bomberos@lazarus.test")

	msg := map[string]any{"recipient_type": "CITIZEN", "message": "scheduled maintenance tonight"}

	status, _ := f.do(t, http.MethodPost, "/api/notifications/system", entity, msg)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPost, "/api/notifications/system", f.adminToken, msg)
	require.Equal(t, http.StatusCreated, status, body)
	assert.EqualValues(t, 1, body["recipients"])

	status, body = f.do(t, http.MethodGet, "/api/notifications", citizen, nil)
	require.Equal(t, http.StatusOK, status)
	items, _ := body["data"].([]any)
	var messages []string
	for _, item := range items {
		messages = append(messages, item.(map[string]any)["message"].(string))
	}
	assert.Contains(t, messages, "[System] scheduled maintenance tonight")
}

func TestEntityLocationsStartEmpty(t *testing.T) {
	f := setup(t)
	status, body := f.do(t, http.MethodGet, "/api/locations/entities", f.adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}
