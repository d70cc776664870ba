package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
camera:
  url: rtsp://10.0.0.5:554/stream1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "rtsp://10.0.0.5:554/stream1", cfg.Camera.URL)
	require.Equal(t, "info", cfg.Logging.Level)
	require.EqualValues(t, 10_000_000_000, cfg.Camera.Timeout)
}

func TestLoadRejectsMissingURL(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeConfigFile(t, `
camera:
  url: rtsp://10.0.0.5:554/stream1
logging:
  level: verbose
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestReconnectConfigDefaultsWhenEnabled(t *testing.T) {
	path := writeConfigFile(t, `
camera:
  url: rtsp://10.0.0.5:554/stream1
reconnect:
  enabled: true
  max_retries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Reconnect.Enabled)
	require.Equal(t, 5, cfg.Reconnect.MaxRetries)
	require.True(t, cfg.Reconnect.InitialDelay > 0)
	require.True(t, cfg.Reconnect.MaxDelay > 0)
	require.Equal(t, 2.0, cfg.Reconnect.BackoffMultiplier)

	policy := cfg.Reconnect.ToPolicy()
	require.True(t, policy.Enabled)
	require.Equal(t, 5, policy.MaxRetries)
}

func TestSlogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "debug"}}
	require.Equal(t, "DEBUG", cfg.SlogLevel().String())
}
