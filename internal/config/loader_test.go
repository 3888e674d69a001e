package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestLoadWithFile_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadWithFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9191
  shutdown_timeout: 3s
limits:
  max_recipients: 5
nats:
  enabled: true
  embedded: true
  token: hunter2
observability:
  service_name: escrowd-test
  log_level: debug
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 5, cfg.Limits.MaxRecipients)
	assert.Equal(t, 50, cfg.Limits.MaxNameLength, "unset keys keep defaults")
	assert.True(t, cfg.NATS.Embedded)
	assert.Equal(t, "hunter2", cfg.NATS.Token.Value())
	assert.Equal(t, "[REDACTED]", cfg.NATS.Token.String())
	assert.Equal(t, "escrowd-test", cfg.Observability.ServiceName)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n", 0600)
	t.Setenv("ESCROWD_SERVER_PORT", "9292")
	t.Setenv("ESCROWD_LIMITS_MAX_NAME_LENGTH", "12")
	t.Setenv("ESCROWD_NATS_SUBJECT_PREFIX", "escrow.v1")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9292, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Limits.MaxNameLength)
	assert.Equal(t, "escrow.v1", cfg.NATS.SubjectPrefix)
}

func TestLoadWithFile_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}
	path := writeConfig(t, "server:\n  port: 9191\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_RejectsOversizedFile(t *testing.T) {
	path := writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize)+"\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoadWithFile_InvalidValues(t *testing.T) {
	path := writeConfig(t, "limits:\n  max_recipients: 0\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limits.max_recipients")
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"ESCROWD_SERVER_PORT":                 "server.port",
		"ESCROWD_SERVER_SHUTDOWN_TIMEOUT":     "server.shutdown_timeout",
		"ESCROWD_RATELIMIT_REQUESTS_PER_SECOND": "ratelimit.requests_per_second",
		"ESCROWD_VERBOSE":                     "verbose",
	}
	for in, want := range tests {
		assert.Equal(t, want, envKey(in), in)
	}
}
