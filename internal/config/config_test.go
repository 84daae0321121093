package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_PORT", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "REDIS_URL",
		"STOCKFISH_PATH", "ENGINE_THREADS", "ENGINE_HASH_MB", "ENGINE_IDLE_TIMEOUT_SEC", "MESSAGE_DIR",
		"LIVE_OUTBOUND_BUFFER", "SHUTDOWN_TIMEOUT_SEC",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "stockfish", cfg.StockfishPath)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 15*time.Minute, cfg.EngineIdleTimeout)
}

func TestEngineIdleTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_IDLE_TIMEOUT_SEC", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.EngineIdleTimeout)

	clearEnv(t)
	t.Setenv("ENGINE_IDLE_TIMEOUT_SEC", "-5")
	_, err = Load()
	assert.ErrorContains(t, err, "ENGINE_IDLE_TIMEOUT_SEC")
}

func TestLoadPostgresFromParts(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "chess")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_PASSWORD", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://app:s3cret@db:5432/chess?sslmode=disable", cfg.DatabaseURL)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "redis")
	_, err := Load()
	assert.ErrorContains(t, err, "REDIS_URL")

	clearEnv(t)
	t.Setenv("STORE_DRIVER", "mongo")
	_, err = Load()
	assert.Error(t, err)

	clearEnv(t)
	t.Setenv("APP_PORT", "70000")
	_, err = Load()
	assert.Error(t, err)
}

func TestInvalidIntFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENGINE_HASH_MB", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.EngineHashMB)
}
