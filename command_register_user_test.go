package lazarus_test

import (
	"context"
	"testing"

	lazarus "github.com/goliatone/go-lazarus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCitizenDefaults(t *testing.T) {
	w := newWorld(t)

	identity, err := w.register.RegisterCitizen(context.Background(), lazarus.RegisterCitizenMessage{
		FirstName: " Ana ",
		LastName:  "Mora",
		LegalID:   "1-1111-1111",
		Email:     "Ana@Example.COM",
		Password:  testPassword,
		Phone:     "8888 1234",
	})
	require.NoError(t, err)

	require.Equal(t, lazarus.RoleCitizen, identity.Role)
	require.NotNil(t, identity.Citizen)
	assert.Equal(t, "Ana", identity.Citizen.FirstName)
	assert.Equal(t, "ana@example.com", identity.Email())
	assert.Equal(t, "+50688881234", identity.Citizen.Phone)
	assert.Equal(t, 0, identity.Citizen.Strikes)
	assert.True(t, identity.IsActive())
	assert.NotEqual(t, testPassword, identity.PasswordHash())
	assert.NoError(t, lazarus.ComparePasswordAndHash(testPassword, identity.PasswordHash()))

	assert.Len(t, w.sink.ofType(lazarus.ActivityEventRegistered), 2)
	assert.Contains(t, w.notifier.welcomes, identity.Ref())
}

func TestRegisterEmailIsUniqueAcrossRoles(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	w.citizen(t, "shared@lazarus.test", "1-2222-2222")

	_, err := w.register.RegisterEntity(ctx, w.admin, lazarus.RegisterEntityMessage{
		Name:           "Cruz Roja",
		Category:       lazarus.EntityRedCross,
		Email:          "SHARED@lazarus.test",
		Password:       testPassword,
		EmergencyPhone: "128",
	})
	require.Error(t, err)
	assert.True(t, lazarus.IsConflict(err))
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeEmailTaken))

	_, err = w.register.RegisterCitizen(ctx, lazarus.RegisterCitizenMessage{
		FirstName: "Luis",
		LastName:  "Soto",
		LegalID:   "1-3333-3333",
		Email:     "root@lazarus.test",
		Password:  testPassword,
	})
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeEmailTaken))

	count, err := w.repo.Identities().Count(ctx, lazarus.RoleCitizen)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRegisterCitizenLegalIDTaken(t *testing.T) {
	w := newWorld(t)
	w.citizen(t, "first@lazarus.test", "1-4444-4444")

	_, err := w.register.RegisterCitizen(context.Background(), lazarus.RegisterCitizenMessage{
		FirstName: "Otra",
		LastName:  "Persona",
		LegalID:   "1-4444-4444",
		Email:     "second@lazarus.test",
		Password:  testPassword,
	})
	require.Error(t, err)
	assert.True(t, lazarus.HasTextCode(err, lazarus.TextCodeLegalIDTaken))
}

func TestRegisterCitizenValidation(t *testing.T) {
	w := newWorld(t)

	cases := []struct {
		name string
		msg  lazarus.RegisterCitizenMessage
	}{
		{"missing email", lazarus.RegisterCitizenMessage{FirstName: "A", LastName: "B", LegalID: "123456", Password: testPassword}},
		{"short password", lazarus.RegisterCitizenMessage{FirstName: "A", LastName: "B", LegalID: "123456", Email: "a@b.test", Password: "short"}},
		{"bad email", lazarus.RegisterCitizenMessage{FirstName: "A", LastName: "B", LegalID: "123456", Email: "nope", Password: testPassword}},
		{"bad phone", lazarus.RegisterCitizenMessage{FirstName: "A", LastName: "B", LegalID: "123456", Email: "a@b.test", Password: testPassword, Phone: "1234567"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.register.RegisterCitizen(context.Background(), tc.msg)
			require.Error(t, err)
			assert.True(t, lazarus.IsValidation(err))
		})
	}
}

func TestRegisterEntityRequiresAdmin(t *testing.T) {
	w := newWorld(t)
	citizen := w.citizen(t, "ana@lazarus.test", "1-5555-5555")

	_, err := w.register.RegisterEntity(context.Background(), citizen, lazarus.RegisterEntityMessage{
		Name:           "Policía",
		Category:       lazarus.EntityPolice,
		Email:          "policia@lazarus.test",
		Password:       testPassword,
		EmergencyPhone: "911",
	})
	assert.True(t, lazarus.IsForbidden(err))

	entity := w.entity(t, "bomberos@lazarus.test")
	assert.Equal(t, lazarus.RoleEntity, entity.Role)
	assert.Equal(t, "911", entity.Entity.EmergencyPhone)

	_, err = w.register.RegisterAdmin(context.Background(), entity, lazarus.RegisterAdminMessage{
		FirstName: "Mal",
		Email:     "mal@lazarus.test",
		Password:  testPassword,
	})
	assert.True(t, lazarus.IsForbidden(err))
}

func TestSeedAdminIsIdempotent(t *testing.T) {
	w := newWorld(t)

	again, created, err := w.register.SeedAdmin(context.Background(), lazarus.RegisterAdminMessage{
		FirstName: "Root",
		Email:     "root@lazarus.test",
		Password:  testPassword,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, w.admin.ID(), again.ID())
	assert.Equal(t, lazarus.AccessSuperAdmin, w.admin.Admin.AccessLevel)
}
