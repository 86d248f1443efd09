package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Bus.Driver)
	assert.Equal(t, []string{"general", "random", "help", "announcements"}, cfg.Channels.Defaults)
	assert.Equal(t, 90*time.Second, cfg.PresenceTTL())
	assert.NotEmpty(t, cfg.JWT.Secret, "development gets a fallback secret")
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: "9000"
store:
  driver: sqlite
sqlite:
  path: /tmp/chat.db
jwt:
  secret: from-file
`), 0o600))

	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.SQLite.Path)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "cassandra")
	_, err := Load("")
	assert.Error(t, err)
}

func TestProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	_, err := Load("")
	assert.Error(t, err)
}
