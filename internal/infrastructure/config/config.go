package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all agent configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Entropy    EntropyConfig    `yaml:"entropy"`
	Notifier   NotifierConfig   `yaml:"notifier"`
	Engine     EngineConfig     `yaml:"engine"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Logging    LogConfig        `yaml:"logging"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig holds the diagnostics HTTP server configuration.
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8765" yaml:"port"`
	Host        string `envconfig:"HOST" default:"127.0.0.1" yaml:"host"`
	DiagEnabled bool   `envconfig:"DIAG_ENABLED" default:"true" yaml:"diag_enabled"`
}

// EntropyConfig sizes the entropy pool.
type EntropyConfig struct {
	BufferCount int `envconfig:"ENTROPY_BUFFER_COUNT" default:"2" yaml:"buffer_count"`
	BufferSize  int `envconfig:"ENTROPY_BUFFER_SIZE" default:"1024" yaml:"buffer_size"`
}

// NotifierConfig holds control socket and notifier lifecycle configuration.
// An empty SocketDir means the OS temp directory.
type NotifierConfig struct {
	SocketDir        string        `envconfig:"NOTIFIER_SOCKET_DIR" yaml:"socket_dir"`
	SocketPrefix     string        `envconfig:"NOTIFIER_SOCKET_PREFIX" default:"ao-notifier-" yaml:"socket_prefix"`
	BindAttempts     int           `envconfig:"NOTIFIER_BIND_ATTEMPTS" default:"10" yaml:"bind_attempts"`
	StopPollInterval time.Duration `envconfig:"NOTIFIER_STOP_POLL_INTERVAL" default:"5s" yaml:"stop_poll_interval"`
	StopMaxPolls     int           `envconfig:"NOTIFIER_STOP_MAX_POLLS" default:"10" yaml:"stop_max_polls"`
}

// EngineConfig selects the native engine implementation.
type EngineConfig struct {
	Mode      string        `envconfig:"ENGINE_MODE" default:"simulator" yaml:"mode"`
	KeepAlive time.Duration `envconfig:"ENGINE_KEEPALIVE" default:"10s" yaml:"keepalive"`
}

// SupervisorConfig holds notifier supervision configuration.
type SupervisorConfig struct {
	Interval time.Duration `envconfig:"SUPERVISOR_INTERVAL" default:"15s" yaml:"interval"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development"`
}

// RateLimitConfig holds diagnostics API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20" yaml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled"`
}

var (
	// ErrInvalid wraps every validation failure.
	ErrInvalid = errors.New("invalid config")
)

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile loads configuration from the environment and then applies the
// YAML file at path on top. Keys missing from the file keep their
// environment or default values.
func LoadFile(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDerived()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:        "8765",
			Host:        "127.0.0.1",
			DiagEnabled: true,
		},
		Entropy: EntropyConfig{
			BufferCount: 2,
			BufferSize:  1024,
		},
		Notifier: NotifierConfig{
			SocketPrefix:     "ao-notifier-",
			BindAttempts:     10,
			StopPollInterval: 5 * time.Second,
			StopMaxPolls:     10,
		},
		Engine: EngineConfig{
			Mode:      "simulator",
			KeepAlive: 10 * time.Second,
		},
		Supervisor: SupervisorConfig{
			Interval: 15 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
	cfg.applyDerived()
	return cfg
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"ENTROPY_BUFFER_COUNT must be positive", c.Entropy.BufferCount > 0},
		{"ENTROPY_BUFFER_SIZE must be positive", c.Entropy.BufferSize > 0},
		{"NOTIFIER_BIND_ATTEMPTS must be positive", c.Notifier.BindAttempts > 0},
		{"NOTIFIER_STOP_POLL_INTERVAL must be positive", c.Notifier.StopPollInterval > 0},
		{"NOTIFIER_STOP_MAX_POLLS must be positive", c.Notifier.StopMaxPolls > 0},
		{"ENGINE_MODE must be simulator or disabled", c.Engine.Mode == "simulator" || c.Engine.Mode == "disabled"},
		{"ENGINE_KEEPALIVE must be positive", c.Engine.KeepAlive > 0},
		{"SUPERVISOR_INTERVAL must be positive", c.Supervisor.Interval > 0},
		{"RATE_LIMIT_RPS must be positive", !c.RateLimit.Enabled || c.RateLimit.RequestsPerSecond > 0},
	}
	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalid, check.name)
		}
	}
	return nil
}

// Addr returns the diagnostics listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func (c *Config) applyDerived() {
	if c.Notifier.SocketDir == "" {
		c.Notifier.SocketDir = os.TempDir()
	}
}
