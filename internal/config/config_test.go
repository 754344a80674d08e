package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMasterKey = "0123456789abcdef0123456789abcdef"
	testHMACKey   = "fedcba9876543210fedcba9876543210"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/hinweis_test")
	t.Setenv("ENCRYPTION_MASTER_KEY", testMasterKey)
	t.Setenv("AUDIT_HMAC_KEY", testHMACKey)
}

func TestLoadConfigFromYAML(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
  env: production
redis:
  addr: redis.internal:6379
scheduler:
  interval_minutes: 30
  digest_hour: 7
cors:
  allowed_origins:
    - https://app.example
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Scheduler.IntervalMinutes)
	assert.Equal(t, 7, cfg.Scheduler.DigestHour)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORS.AllowedOrigins)
}

func TestEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("REDIS_URL", "override:6379")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"9090\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}

func TestMissingFileUsesEnvOnly(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 8, cfg.Scheduler.DigestHour)
}

func TestHinSchGDefaultsConfigurable(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
hinschg:
  eingangsbestaetigung_tage: 5
  rueckmeldung_tage: 60
  aufbewahrung_jahre: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.HinSchG.EingangsbestaetigungTage)
	assert.Equal(t, 60, cfg.HinSchG.RueckmeldungTage)
	assert.Equal(t, 5, cfg.HinSchG.AufbewahrungJahre)
	assert.Equal(t, 2, cfg.HinSchG.ReminderVorlaufTage)

	// Environment wins over the file.
	t.Setenv("HINSCHG_RUECKMELDUNG_TAGE", "45")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.HinSchG.RueckmeldungTage)
}

func TestHinSchGDefaultsStatutory(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.HinSchG.EingangsbestaetigungTage)
	assert.Equal(t, 90, cfg.HinSchG.RueckmeldungTage)
	assert.Equal(t, 3, cfg.HinSchG.AufbewahrungJahre)
}

func TestValidationRejectsShortKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENCRYPTION_MASTER_KEY", "zu-kurz")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_MASTER_KEY")
}

func TestValidationRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	// Empty env values do not override; clear via Unsetenv after Setenv
	// registered the restore.
	os.Unsetenv("DATABASE_URL")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
