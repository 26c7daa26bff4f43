// Package server provides configuration helpers that define runtime defaults
// and validation for the chat service.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	MaxMessageSize  int64
	DatabasePath    string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// fileConfig is the YAML shape of a config file. Durations are strings in
// time.ParseDuration syntax.
type fileConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	MaxMessageSize  int64    `yaml:"max_message_size"`
	DatabasePath    string   `yaml:"database_path"`
	LogLevel        string   `yaml:"log_level"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  4096,
		DatabasePath:    "yapper.db",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Sanitize replaces zero or invalid fields with their defaults and returns
// the cleaned copy.
func (c Config) Sanitize() Config {
	def := defaultConfig()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		c.DatabasePath = def.DatabasePath
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for anything unset. When CONFIG_FILE is set, the named YAML
// file is loaded first and environment variables override it.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = *fileCfg
	}

	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseInt64Value(maxSize, cfg.MaxMessageSize)
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.DatabasePath = path
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseDurationValue(timeout, cfg.ShutdownTimeout)
	}

	sanitized := cfg.Sanitize()
	return &sanitized, nil
}

// loadConfigFile reads a YAML config file and overlays it on the defaults.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := defaultConfig()
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if fc.DatabasePath != "" {
		cfg.DatabasePath = fc.DatabasePath
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse config file %s: invalid shutdown_timeout %q: %w", path, fc.ShutdownTimeout, err)
		}
		cfg.ShutdownTimeout = d
	}
	return &cfg, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDurationValue(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
