package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "memory", cfg.KVBackend)
	assert.Equal(t, time.Second, cfg.DraftDebounce)
	assert.Equal(t, 2*time.Second, cfg.AutoReplyDelay)
	assert.Equal(t, 5*time.Second, cfg.VideoPollInterval)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiTextModel)
}

func TestLoadEnvFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("JWT_SECRET=fromfile\nKV_BACKEND=pebble\nVIDEO_MAX_POLLS=3\n"), 0o600))
	t.Setenv("KV_BACKEND", "redis")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "fromfile", cfg.JWTSecret)
	assert.Equal(t, "redis", cfg.KVBackend)
	assert.Equal(t, 3, cfg.VideoMaxPolls)
}
