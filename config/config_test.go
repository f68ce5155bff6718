package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-lazarus/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoadFromEnvironmentAppliesDefaults(t *testing.T) {
	t.Setenv("LAZARUS_SIGNING_KEY", testKey)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.GetTokenExpiration())
	assert.Equal(t, time.Hour, cfg.GetResetTokenExpiration())
	assert.Equal(t, 48*time.Hour, cfg.Incidents.ArchiveAfter)
	assert.Equal(t, "0 3 * * *", cfg.Incidents.ArchiveSchedule)
	assert.Equal(t, 5.0, cfg.Incidents.NearbyRadiusKm)
	assert.Equal(t, "lazarus", cfg.GetIssuer())
	assert.Equal(t, testKey, cfg.GetSigningKey())
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazarus.yml")
	content := []byte(`
app_env: production
auth:
  signing_key: "` + testKey + `"
  token_ttl: 2h
incidents:
  nearby_radius_km: 10
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("LAZARUS_TOKEN_TTL", "3h")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 3*time.Hour, cfg.GetTokenExpiration())
	assert.Equal(t, 10.0, cfg.Incidents.NearbyRadiusKm)
}

func TestLoadRejectsShortSigningKey(t *testing.T) {
	t.Setenv("LAZARUS_SIGNING_KEY", "short")

	_, err := config.Load("")
	require.Error(t, err)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	t.Setenv("LAZARUS_SIGNING_KEY", testKey)
	t.Setenv("LAZARUS_DB_DRIVER", "oracle")

	_, err := config.Load("")
	require.Error(t, err)
}
