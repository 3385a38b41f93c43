package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/gfupload/engine"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Retry.InitialWait)
	assert.Equal(t, 100*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, 2*time.Second, cfg.Retry.PollInterval)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, 166*time.Millisecond, cfg.Progress.Interval)
	assert.Equal(t, 2, cfg.Service.MaxConcurrentUploads)
	assert.Equal(t, "bolt", cfg.Journal.Driver)
	assert.Equal(t, "127.0.0.1:8080", cfg.API.Addr)
	assert.True(t, cfg.Notification.Cancelled.AutoClear)

	assert.Equal(t, engine.DefaultRetryPolicy(), cfg.RetryPolicy())
	assert.Equal(t, engine.DefaultCheckpointConfig, cfg.Checkpoint())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GFUPLOAD_SERVICE_MAX_CONCURRENT_UPLOADS", "5")
	t.Setenv("GFUPLOAD_RETRY_MAX_WAIT", "30s")
	t.Setenv("GFUPLOAD_JOURNAL_DRIVER", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Service.MaxConcurrentUploads)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxWait)
	assert.Equal(t, "sqlite", cfg.Journal.Driver)

	svc := cfg.EngineService()
	assert.Equal(t, 5, svc.MaxConcurrentUploads)
	assert.Equal(t, 30*time.Second, svc.Retry.MaxWait)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gfupload.toml")
	content := `
[log]
level = "debug"

[retry]
initial_wait = "500ms"
max_retries = 7

[http]
token_url = "https://auth.example.com/token"
client_id = "uploader"
scopes = ["upload", "read"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialWait)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Retry.PollInterval, "unset keys keep their default")

	hc := cfg.HTTPClient()
	assert.Equal(t, "uploader", hc.ClientID)
	assert.Equal(t, []string{"upload", "read"}, hc.Scopes)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown level", map[string]string{"GFUPLOAD_LOG_LEVEL": "loud"}},
		{"no workers", map[string]string{"GFUPLOAD_SERVICE_MAX_CONCURRENT_UPLOADS": "0"}},
		{"shrinking backoff", map[string]string{"GFUPLOAD_RETRY_MULTIPLIER": "0.5"}},
		{"max below initial", map[string]string{"GFUPLOAD_RETRY_MAX_WAIT": "100ms"}},
		{"unknown driver", map[string]string{"GFUPLOAD_JOURNAL_DRIVER": "postgres"}},
		{"token url without client", map[string]string{"GFUPLOAD_HTTP_TOKEN_URL": "https://auth.example.com/token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultPath)

	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	def, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, def.Retry, cfg.Retry)
	assert.Equal(t, def.Journal, cfg.Journal)
	assert.Equal(t, def.Service, cfg.Service)
	assert.Equal(t, def.Notification, cfg.Notification)

	err = WriteDefault(path)
	assert.ErrorIs(t, err, ErrConfigExists)
}

func TestNotifications(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	n := cfg.Notifications()
	require.NotNil(t, n)
	assert.Equal(t, "uploads", n.LowChannel)
	assert.Contains(t, n.Progress.Message, engine.PlaceholderProgress)
	assert.True(t, n.Cancelled.AutoClear)

	cfg.Notification.Enabled = false
	assert.Nil(t, cfg.Notifications())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.Warn("shown", "task_id", "abc")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"task_id":"abc"`)

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
