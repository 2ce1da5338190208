// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

// Package config loads Relay configuration with koanf: struct defaults first,
// then an optional YAML file, then RELAY_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/relay/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "RELAY_CONFIG_PATH"

// envPrefix is the prefix for environment variable overrides, e.g.
// RELAY_SERVER_PORT maps to server.port.
const envPrefix = "RELAY_"

// Config is the root configuration for the Relay server.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Chat     ChatConfig     `koanf:"chat"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimit       int           `koanf:"rate_limit"`        // requests/minute per IP for the REST surface
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SecurityConfig holds credential verification settings. Token issuance is
// the platform's auth service; Relay only verifies.
type SecurityConfig struct {
	JWTSecret    string        `koanf:"jwt_secret"`
	TokenTimeout time.Duration `koanf:"token_timeout"`
}

// StoreConfig holds BadgerDB settings for the conversation/message store.
type StoreConfig struct {
	Path       string        `koanf:"path"`
	InMemory   bool          `koanf:"in_memory"`
	GCInterval time.Duration `koanf:"gc_interval"`

	// OpTimeout bounds every store operation; a send that cannot reach
	// storage within it fails with a retryable timeout.
	OpTimeout time.Duration `koanf:"op_timeout"`
}

// ChatConfig holds the socket-layer behavior knobs.
type ChatConfig struct {
	// MaxMessageBytes is the maximum accepted message content length.
	MaxMessageBytes int `koanf:"max_message_bytes"`

	// TypingTimeout is how long a typing indicator lives without an
	// explicit stop before the server broadcasts an implicit one.
	TypingTimeout time.Duration `koanf:"typing_timeout"`

	// SendBuffer is the per-connection outbound event buffer. A connection
	// that falls this far behind is dropped and recovers via sync.
	SendBuffer int `koanf:"send_buffer"`

	// EventRate / EventBurst rate-limit inbound events per connection.
	EventRate  float64 `koanf:"event_rate"`
	EventBurst int     `koanf:"event_burst"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{},
			RateLimit:       300,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			JWTSecret:    "",
			TokenTimeout: 24 * time.Hour,
		},
		Store: StoreConfig{
			Path:       "/data/relay",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
			OpTimeout:  5 * time.Second,
		},
		Chat: ChatConfig{
			MaxMessageBytes: 8 * 1024,
			TypingTimeout:   5 * time.Second,
			SendBuffer:      256,
			EventRate:       20,
			EventBurst:      40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from defaults, the first config file found (or the
// path given by RELAY_CONFIG_PATH), and RELAY_* environment variables.
func Load() (*Config, error) {
	return LoadFrom(resolveConfigPath())
}

// LoadFrom loads configuration using the given file path. An empty path skips
// the file layer entirely.
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// RELAY_SERVER_PORT=9090 -> server.port
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveConfigPath returns the configured or first existing config file, or
// "" when none is present.
func resolveConfigPath() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("security.jwt_secret must be at least 32 characters")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Chat.MaxMessageBytes <= 0 {
		return fmt.Errorf("chat.max_message_bytes must be positive")
	}
	if c.Chat.TypingTimeout <= 0 {
		return fmt.Errorf("chat.typing_timeout must be positive")
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("chat.send_buffer must be positive")
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store.op_timeout must be positive")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
