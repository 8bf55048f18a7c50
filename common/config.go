package common

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Protocol constants. They are configuration, not negotiated on the wire.
const (
	DefaultRetryInterval   = 500 * time.Millisecond
	DefaultMaxAttempts     = 10
	DefaultIdleTimeout     = time.Second
	DefaultMaxMissedProbes = 5
	DefaultReceiveTimeout  = time.Second
	DefaultReapInterval    = time.Second
	DefaultInboxSize       = 16

	DefaultServerPort = 12000
	MaxDatagramSize   = 2048
)

// TimingConfig holds the retry and liveness knobs shared by client and server.
type TimingConfig struct {
	RetryInterval   time.Duration `toml:"retry_interval"`
	MaxAttempts     int           `toml:"max_attempts"`
	IdleTimeout     time.Duration `toml:"idle_timeout"`
	MaxMissedProbes int           `toml:"max_missed_probes"`
	ReceiveTimeout  time.Duration `toml:"receive_timeout"`
	ReapInterval    time.Duration `toml:"reap_interval"`
	InboxSize       int           `toml:"inbox_size"`
}

// ApplyDefaults fills zero values with the protocol defaults.
func (t *TimingConfig) ApplyDefaults() {
	if t.RetryInterval == 0 {
		t.RetryInterval = DefaultRetryInterval
	}
	if t.MaxAttempts == 0 {
		t.MaxAttempts = DefaultMaxAttempts
	}
	if t.IdleTimeout == 0 {
		t.IdleTimeout = DefaultIdleTimeout
	}
	if t.MaxMissedProbes == 0 {
		t.MaxMissedProbes = DefaultMaxMissedProbes
	}
	if t.ReceiveTimeout == 0 {
		t.ReceiveTimeout = DefaultReceiveTimeout
	}
	if t.ReapInterval == 0 {
		t.ReapInterval = DefaultReapInterval
	}
	if t.InboxSize == 0 {
		t.InboxSize = DefaultInboxSize
	}
}

// Validate checks that every timing value is usable.
func (t *TimingConfig) Validate() error {
	if t.RetryInterval <= 0 {
		return fmt.Errorf("%w: retry_interval must be positive, got %s", ErrInvalidConfig, t.RetryInterval)
	}
	if t.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be positive, got %d", ErrInvalidConfig, t.MaxAttempts)
	}
	if t.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle_timeout must be positive, got %s", ErrInvalidConfig, t.IdleTimeout)
	}
	if t.MaxMissedProbes <= 0 {
		return fmt.Errorf("%w: max_missed_probes must be positive, got %d", ErrInvalidConfig, t.MaxMissedProbes)
	}
	if t.ReceiveTimeout <= 0 {
		return fmt.Errorf("%w: receive_timeout must be positive, got %s", ErrInvalidConfig, t.ReceiveTimeout)
	}
	if t.ReapInterval <= 0 {
		return fmt.Errorf("%w: reap_interval must be positive, got %s", ErrInvalidConfig, t.ReapInterval)
	}
	if t.InboxSize <= 0 {
		return fmt.Errorf("%w: inbox_size must be positive, got %d", ErrInvalidConfig, t.InboxSize)
	}
	return nil
}

// ClientConfig is the client configuration loaded from a TOML file.
type ClientConfig struct {
	ServerAddr string        `toml:"server_addr"`
	LocalAddr  string        `toml:"local_addr"`
	LogLevel   string        `toml:"log_level"`
	Timing     TimingConfig  `toml:"timing"`
	Metrics    MetricsConfig `toml:"metrics"`
}

// ApplyDefaults fills in unset values.
func (c *ClientConfig) ApplyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = fmt.Sprintf("127.0.0.1:%d", DefaultServerPort)
	}
	if c.LocalAddr == "" {
		c.LocalAddr = ":0"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Timing.ApplyDefaults()
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr", ErrMissingConfig)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("%w: metrics.listen_addr", ErrMissingConfig)
	}
	return c.Timing.Validate()
}

// APIServerConfig configures the admin HTTP API and the game ledger.
type APIServerConfig struct {
	Enabled        bool   `toml:"enabled"`
	ListenAddr     string `toml:"listen_addr"`
	DatabasePath   string `toml:"database_path"`
	AdminTokenHash string `toml:"admin_token_hash"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

// ServerConfig is the server configuration loaded from a TOML file.
type ServerConfig struct {
	ListenAddr string       `toml:"listen_addr"`
	LogLevel   string       `toml:"log_level"`
	Timing     TimingConfig `toml:"timing"`

	// API server configuration
	APIServer APIServerConfig `toml:"api_server"`

	// Metrics configuration
	Metrics MetricsConfig `toml:"metrics"`
}

// ApplyDefaults fills in unset values.
func (c *ServerConfig) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = fmt.Sprintf(":%d", DefaultServerPort)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.APIServer.Enabled && c.APIServer.ListenAddr == "" {
		c.APIServer.ListenAddr = "127.0.0.1:8081"
	}
	c.Timing.ApplyDefaults()
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr", ErrMissingConfig)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("%w: metrics.listen_addr", ErrMissingConfig)
	}
	return c.Timing.Validate()
}

// LoadServerConfig decodes path, applies defaults and validates the result.
// An empty path yields the defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	var cfg ServerConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadClientConfig decodes path, applies defaults and validates the result.
// An empty path yields the defaults.
func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
