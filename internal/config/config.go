// Package config loads client configuration from YAML with ${VAR}
// expansion, environment-variable overrides, defaults, and validation.
package config

import "time"

// Config is the root configuration for the client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Rematch   RematchConfig   `yaml:"rematch"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds backend endpoints and credentials.
type ServerConfig struct {
	APIURL string `yaml:"api_url" env:"CHISME_API_URL"`
	WSURL  string `yaml:"ws_url" env:"CHISME_WS_URL"`
	Token  string `yaml:"token" env:"CHISME_TOKEN"`
}

// TransportConfig holds websocket connection settings.
type TransportConfig struct {
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" env:"CHISME_HANDSHAKE_TIMEOUT"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	CommandTimeout    time.Duration `yaml:"command_timeout"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"CHISME_RECONNECT_ATTEMPTS"`
	ReconnectBase     time.Duration `yaml:"reconnect_base"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	FrameBufferSize   int           `yaml:"frame_buffer_size"`
}

// ReconcileConfig holds snapshot reconciler settings.
type ReconcileConfig struct {
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	FallbackInterval time.Duration `yaml:"fallback_interval" env:"CHISME_FALLBACK_INTERVAL"`
	BufferSize       int           `yaml:"buffer_size"`
}

// RematchConfig holds rematch coordinator settings.
type RematchConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" env:"CHISME_LOG_LEVEL"` // debug, info, warn, error
}

// applyDefaults fills zero values with defaults.
func (c *Config) applyDefaults() {
	if c.Transport.HandshakeTimeout == 0 {
		c.Transport.HandshakeTimeout = 10 * time.Second
	}
	if c.Transport.PingInterval == 0 {
		c.Transport.PingInterval = 25 * time.Second
	}
	if c.Transport.PingTimeout == 0 {
		c.Transport.PingTimeout = 60 * time.Second
	}
	if c.Transport.WriteTimeout == 0 {
		c.Transport.WriteTimeout = 5 * time.Second
	}
	if c.Transport.CommandTimeout == 0 {
		c.Transport.CommandTimeout = 10 * time.Second
	}
	if c.Transport.ReconnectAttempts == 0 {
		c.Transport.ReconnectAttempts = 3
	}
	if c.Transport.ReconnectBase == 0 {
		c.Transport.ReconnectBase = time.Second
	}
	if c.Transport.ReconnectMax == 0 {
		c.Transport.ReconnectMax = 30 * time.Second
	}
	if c.Transport.FrameBufferSize == 0 {
		c.Transport.FrameBufferSize = 1024
	}
	if c.Reconcile.FetchTimeout == 0 {
		c.Reconcile.FetchTimeout = 10 * time.Second
	}
	if c.Reconcile.BufferSize == 0 {
		c.Reconcile.BufferSize = 16
	}
	if c.Rematch.GracePeriod == 0 {
		c.Rematch.GracePeriod = 3 * time.Second
	}
	if c.Rematch.CallTimeout == 0 {
		c.Rematch.CallTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
