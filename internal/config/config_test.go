package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 12, cfg.Polling.MaxProgress)
	assert.Equal(t, 5, cfg.Polling.TransientRetries)
	assert.Equal(t, 3*time.Second, cfg.Polling.TransientDelay)
	assert.Equal(t, Window{Min: 2 * time.Second, Max: 3 * time.Second}, cfg.Polling.Windows.Fast)
	assert.Equal(t, Window{Min: 10 * time.Second, Max: 15 * time.Second}, cfg.Polling.Windows.Long)
	assert.Equal(t, map[string]int{"jobs": 1}, cfg.Worker.Queues)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
api:
  base_url: https://api.example.com
polling:
  transient_delay: 1s
  windows:
    fast:
      min: 500ms
      max: 700ms
history:
  driver: none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("POLLSTER_TOKEN", "jwt-abc")
	t.Setenv("POLLSTER_LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "jwt-abc", cfg.API.SessionToken)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, time.Second, cfg.Polling.TransientDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.Polling.Windows.Fast.Min)
	assert.Equal(t, 10*time.Second, cfg.Polling.Windows.Long.Min, "unset keys keep defaults")
	assert.Equal(t, "none", cfg.History.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"relative base url", func(c *Config) { c.API.BaseURL = "/api" }, "not an absolute URL"},
		{"zero max progress", func(c *Config) { c.Polling.MaxProgress = 0 }, "polling.max_progress"},
		{"zero retries", func(c *Config) { c.Polling.TransientRetries = 0 }, "polling.transient_retries"},
		{"inverted window", func(c *Config) { c.Polling.Windows.Long.Max = time.Second }, "polling.windows.long"},
		{"unknown driver", func(c *Config) { c.History.Driver = "mongo" }, "history.driver"},
		{"postgres without dsn", func(c *Config) { c.History.Driver = "postgres"; c.History.DSN = "" }, "history.dsn"},
		{"bad queue priority", func(c *Config) { c.Worker.Queues = map[string]int{"jobs": 0} }, "worker.queues"},
		{"openai without key", func(c *Config) { c.DevServer.Generator = "openai" }, "devserver.openai_api_key"},
		{"unknown generator", func(c *Config) { c.DevServer.Generator = "llama" }, "devserver.generator"},
		{"negative devserver rate", func(c *Config) { c.DevServer.RequestsPerSecond = -1 }, "devserver.requests_per_second"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
