package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://localhost/lk\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/lk", cfg.Database.URL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 24*time.Hour, cfg.Bounce.TickInterval())
	assert.Equal(t, "listkeeper:bounces", cfg.Bounce.QueueKey)
	assert.Equal(t, 3*24*time.Hour, cfg.Pending.SubscriptionLifetime())
	assert.Equal(t, 7*24*time.Hour, cfg.Pending.InvitationLifetime())
	assert.Equal(t, 14*24*time.Hour, cfg.Pending.ProbeLifetime())
	assert.Equal(t, "en", cfg.Site.DefaultLanguage)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadParsesFullFile(t *testing.T) {
	content := `
server:
  port: 9090
redis:
  addr: localhost:6379
bounce:
  verp_probes: true
  tick_interval_seconds: 3600
devmode:
  enabled: true
  recipient: dev@example.com
pending:
  subscription_lifetime_hours: 12
logging:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Bounce.VERPProbes)
	assert.Equal(t, time.Hour, cfg.Bounce.TickInterval())
	assert.True(t, cfg.Devmode.Enabled)
	assert.Equal(t, "dev@example.com", cfg.Devmode.Recipient)
	assert.Equal(t, 12*time.Hour, cfg.Pending.SubscriptionLifetime())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  url: postgres://file/db\n"), 0o644))

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_ADDR", "envhost:6379")
	t.Setenv("BOUNCE_VERP_PROBES", "true")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "envhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Bounce.VERPProbes)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
