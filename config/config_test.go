package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phasewatch/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := config.LoadConfig(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultWindowSize, cfg.WindowSize)
	assert.Equal(t, config.DefaultChannels, cfg.Channels)
	assert.InDelta(t, config.DefaultThreshold, cfg.Threshold, 1e-9)
	assert.Equal(t, config.DefaultErrorPolicy, cfg.ErrorPolicy)
	assert.Equal(t, config.DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Redis.TTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, config.DefaultChunkSize, cfg.Store.ChunkSize)
	assert.Equal(t, config.DefaultLimit, cfg.Store.Limit)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeFile(t, "phasewatch.yaml", `window_size: 12
channels: [north, south]
threshold: 2.5
error_policy: skip
store:
  path: /var/lib/phasewatch/scores.db
  chunk_size: 100
redis:
  enabled: false
  ttl: 90s
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.WindowSize)
	assert.Equal(t, []string{"north", "south"}, cfg.Channels)
	assert.InDelta(t, 2.5, cfg.Threshold, 1e-9)
	assert.Equal(t, "skip", cfg.ErrorPolicy)
	assert.Equal(t, "/var/lib/phasewatch/scores.db", cfg.Store.Path)
	assert.Equal(t, 100, cfg.Store.ChunkSize)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 90*time.Second, cfg.Redis.TTL)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PHASEWATCH_WINDOW_SIZE", "7")
	t.Setenv("PHASEWATCH_STORE_LIMIT", "250")

	cfg, err := config.LoadConfig(writeFile(t, "phasewatch.yaml", "window_size: 12\n"))
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.WindowSize)
	assert.Equal(t, 250, cfg.Store.Limit)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"zero window", "window_size: 0\n", config.ErrInvalidWindowSize},
		{"no channels", "channels: []\n", config.ErrNoChannels},
		{"duplicate channel", "channels: [a, b, a]\n", config.ErrDuplicateChannel},
		{"negative threshold", "threshold: -1\n", config.ErrInvalidThreshold},
		{"unknown policy", "error_policy: retry\n", config.ErrInvalidPolicy},
		{"zero chunk", "store:\n  chunk_size: 0\n", config.ErrInvalidChunkSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(writeFile(t, "phasewatch.yaml", tt.content))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_Encrypted(t *testing.T) {
	key, err := config.GenerateKey()
	require.NoError(t, err)
	t.Setenv(config.KeyEnv, key)

	parsed, err := config.ParseKey(key)
	require.NoError(t, err)

	src := writeFile(t, "phasewatch.yaml", "window_size: 9\nredis:\n  password: s3cret\n")
	dst := filepath.Join(t.TempDir(), "phasewatch.enc")
	require.NoError(t, config.EncryptFile(src, dst, parsed))

	sealed, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "s3cret")

	cfg, err := config.LoadConfig(dst)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.WindowSize)
	assert.Equal(t, "s3cret", cfg.Redis.Password)

	other, err := config.GenerateKey()
	require.NoError(t, err)
	t.Setenv(config.KeyEnv, other)
	_, err = config.LoadConfig(dst)
	require.ErrorIs(t, err, config.ErrDecrypt)

	t.Setenv(config.KeyEnv, "")
	_, err = config.LoadConfig(dst)
	require.ErrorIs(t, err, config.ErrMissingKey)
}

func TestParseKey_RejectsWrongLength(t *testing.T) {
	_, err := config.ParseKey("c2hvcnQ=")
	require.ErrorIs(t, err, config.ErrInvalidKey)

	_, err = config.ParseKey("not base64!!")
	require.ErrorIs(t, err, config.ErrInvalidKey)
}
