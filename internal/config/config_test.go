package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsToFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_DRIVER", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverNone, cfg.StorageDriver)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, 5*time.Second, cfg.HistoryTimeout)
	assert.Equal(t, "internal/migrations", cfg.MigrationsDir)
}

func TestLoadPicksPostgresFromURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/q")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
}

func TestLoadBuildsPostgresDSN(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverPostgres)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, strings.Contains(cfg.DatabaseURL, "@db.internal:5432/"))
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("HISTORY_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("DEVICE_KEY", "")
	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "discovery", cfg.QuestionnaireID)
	assert.Equal(t, 500*time.Millisecond, cfg.LocalSaveDelay)
	assert.Equal(t, 2*time.Second, cfg.SyncDelay)
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout)

	key, err := cfg.DeviceKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestLoadClientDeviceKey(t *testing.T) {
	t.Setenv("DEVICE_KEY", strings.Repeat("ab", 32))
	cfg, err := LoadClient()
	require.NoError(t, err)
	key, err := cfg.DeviceKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)

	t.Setenv("DEVICE_KEY", "abcd")
	_, err = LoadClient()
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("DEVICE_KEY", "zz")
	_, err = LoadClient()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
