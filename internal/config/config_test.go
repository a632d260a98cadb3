package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	for _, k := range []string{
		"HTTP_ADDR", "REDIS_URL", "DATABASE_URL", "DEFAULT_TIME_CONTROL", "ALLOWED_TIME_CONTROLS",
		"DEFAULT_RATING", "SNAPSHOT_TTL_SEC", "FINALIZE_RETRY_ATTEMPTS", "FINALIZE_RETRY_BACKOFF_MS",
		"WS_SEND_BUFFER", "CHALLENGE_TTL_SEC", "MESSAGE_OVERRIDE_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Minute, cfg.DefaultTimeControl)
	assert.Empty(t, cfg.AllowedTimeControls)
	assert.Equal(t, 800, cfg.DefaultRating)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTL())
	assert.Equal(t, 5, cfg.FinalizeRetries)
	assert.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
}

func TestLoadOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DEFAULT_TIME_CONTROL", "5")
	t.Setenv("ALLOWED_TIME_CONTROLS", "1, 5, 90s")
	t.Setenv("DEFAULT_RATING", "1200")
	t.Setenv("FINALIZE_RETRY_BACKOFF_MS", "250")
	t.Setenv("WS_SEND_BUFFER", "-4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, 5*time.Minute, cfg.DefaultTimeControl)
	assert.Equal(t, []time.Duration{time.Minute, 5 * time.Minute, 90 * time.Second}, cfg.AllowedTimeControls)
	assert.Equal(t, 1200, cfg.DefaultRating)
	assert.Equal(t, 250*time.Millisecond, cfg.FinalizeBackoff)
	assert.Equal(t, 32, cfg.WSSendBuffer, "non-positive values keep the default")
}

func TestLoadRejectsBadTimeControls(t *testing.T) {
	isolate(t)
	t.Setenv("DEFAULT_TIME_CONTROL", "soon")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DEFAULT_TIME_CONTROL", "10")
	t.Setenv("ALLOWED_TIME_CONTROLS", "3,5")
	_, err = Load()
	assert.ErrorContains(t, err, "not in ALLOWED_TIME_CONTROLS")
}

func TestLoadReadsEnvFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "arena.env")
	require.NoError(t, os.WriteFile(path, []byte("HISTORY_LIMIT=25\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { _ = os.Unsetenv("HISTORY_LIMIT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.HistoryLimit)
}
