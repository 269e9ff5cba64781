package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig
	Plugins   PluginsConfig
	Sandbox   SandboxConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP/WebSocket server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"7420"`
	Host string `envconfig:"HOST" default:"127.0.0.1"`
}

// PluginsConfig holds plugin store configuration.
type PluginsConfig struct {
	// Root is where installed plugin manifests live.
	Root string `envconfig:"PLUGINS_ROOT" default:"./plugins"`
	// DataDir holds the per-plugin filesystem roots exposed through the
	// fs capability. Each plugin sees only its own subtree.
	DataDir string `envconfig:"PLUGINS_DATA_DIR" default:"./plugin-data"`
}

// SandboxConfig holds headless sandbox configuration.
type SandboxConfig struct {
	// ExecTimeout bounds a single script or handler invocation inside a
	// sandbox VM. Zero disables the interrupt.
	ExecTimeout time.Duration `envconfig:"SANDBOX_EXEC_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig bounds inbound message rates on surface channels.
type RateLimitConfig struct {
	MessagesPerSecond int  `envconfig:"RATE_LIMIT_MPS" default:"200"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"400"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
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
	return &Config{
		Server: ServerConfig{
			Port: "7420",
			Host: "127.0.0.1",
		},
		Plugins: PluginsConfig{
			Root:    "./plugins",
			DataDir: "./plugin-data",
		},
		Sandbox: SandboxConfig{
			ExecTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			MessagesPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
	}
}
