package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5*time.Second, cfg.Transport.ConnectTimeout)
	assert.Zero(t, cfg.Transport.ReconnectInterval)
	assert.Equal(t, 19*time.Millisecond, cfg.Board.SamplingInterval)
	assert.True(t, cfg.Board.Normalize)
	assert.Equal(t, 20*time.Millisecond, cfg.Input.DebounceInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.Input.SustainedInterval)
	assert.NotEmpty(t, cfg.Profiles.SearchPaths)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  target: tcp://10.0.0.5:3030
board:
  normalize: false
  profile: bench
input:
  debounce_interval: 35ms
`), 0o644))

	t.Setenv("BOARDLINK_SERVER_HTTP_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://10.0.0.5:3030", cfg.Transport.Target)
	assert.False(t, cfg.Board.Normalize)
	assert.Equal(t, "bench", cfg.Board.Profile)
	assert.Equal(t, 35*time.Millisecond, cfg.Input.DebounceInterval)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Transport.Target = ""
	assert.Error(t, cfg.Validate())
}
