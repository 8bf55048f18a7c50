package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimingDefaults(t *testing.T) {
	var timing TimingConfig
	timing.ApplyDefaults()

	assert.Equal(t, 500*time.Millisecond, timing.RetryInterval)
	assert.Equal(t, 10, timing.MaxAttempts)
	assert.Equal(t, time.Second, timing.IdleTimeout)
	assert.Equal(t, 5, timing.MaxMissedProbes)
	assert.NoError(t, timing.Validate())
}

func TestTimingValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TimingConfig)
	}{
		{name: "negative retry interval", mutate: func(c *TimingConfig) { c.RetryInterval = -time.Second }},
		{name: "negative attempts", mutate: func(c *TimingConfig) { c.MaxAttempts = -1 }},
		{name: "negative idle timeout", mutate: func(c *TimingConfig) { c.IdleTimeout = -1 }},
		{name: "negative probes", mutate: func(c *TimingConfig) { c.MaxMissedProbes = -2 }},
		{name: "negative inbox", mutate: func(c *TimingConfig) { c.InboxSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var timing TimingConfig
			timing.ApplyDefaults()
			tt.mutate(&timing)
			err := timing.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestLoadServerConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.server.toml")
	content := `
listen_addr = "127.0.0.1:13000"
log_level = "debug"

[timing]
idle_timeout = "250ms"
max_missed_probes = 3

[api_server]
enabled = true
database_path = "games.db"

[metrics]
enabled = true
listen_addr = "127.0.0.1:9091"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:13000", cfg.ListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.Timing.IdleTimeout)
	assert.Equal(t, 3, cfg.Timing.MaxMissedProbes)
	assert.Equal(t, DefaultRetryInterval, cfg.Timing.RetryInterval)
	assert.Equal(t, "games.db", cfg.APIServer.DatabasePath)
	assert.Equal(t, "127.0.0.1:8081", cfg.APIServer.ListenAddr)
}

func TestLoadServerConfigMissingMetricsAddr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.server.toml")
	require.NoError(t, os.WriteFile(path, []byte("[metrics]\nenabled = true\n"), 0o600))

	_, err := LoadServerConfig(path)
	assert.ErrorIs(t, err, ErrMissingConfig)
}

func TestLoadClientConfigDefaults(t *testing.T) {
	cfg, err := LoadClientConfig("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:12000", cfg.ServerAddr)
	assert.Equal(t, ":0", cfg.LocalAddr)
	assert.Equal(t, DefaultMaxAttempts, cfg.Timing.MaxAttempts)
}

func TestLoadClientConfigMissingFile(t *testing.T) {
	_, err := LoadClientConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
