package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":8080" {
		t.Errorf("unexpected default port %q", cfg.Port)
	}
	if cfg.MaxMessageSize <= 0 {
		t.Error("default max message size should be positive")
	}
	if cfg.DatabasePath == "" {
		t.Error("default database path should be set")
	}
	if cfg.ShutdownTimeout <= 0 {
		t.Error("default shutdown timeout should be positive")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("DB_PATH", "/tmp/test.db")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SHUTDOWN_TIMEOUT", "5s")

	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv failed: %v", err)
	}

	if cfg.Port != ":9999" {
		t.Errorf("port = %q", cfg.Port)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "http://a.example" || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxMessageSize != 1024 {
		t.Errorf("max message size = %d", cfg.MaxMessageSize)
	}
	if cfg.DatabasePath != "/tmp/test.db" {
		t.Errorf("db path = %q", cfg.DatabasePath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.ShutdownTimeout)
	}
}

func TestNewConfigFromEnvInvalidValues(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "not-a-number")
	t.Setenv("SHUTDOWN_TIMEOUT", "-3")

	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv failed: %v", err)
	}
	def := defaultConfig()
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("invalid size should fall back to default, got %d", cfg.MaxMessageSize)
	}
	if cfg.ShutdownTimeout != def.ShutdownTimeout {
		t.Errorf("invalid timeout should fall back to default, got %v", cfg.ShutdownTimeout)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
port: ":7070"
allowed_origins:
  - "http://chat.example"
max_message_size: 2048
database_path: chat.db
log_level: warn
shutdown_timeout: 15s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := NewConfigFromEnv()
	if err != nil {
		t.Fatalf("NewConfigFromEnv failed: %v", err)
	}
	if cfg.Port != ":7070" || cfg.MaxMessageSize != 2048 || cfg.LogLevel != "warn" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Errorf("shutdown timeout = %v", cfg.ShutdownTimeout)
	}

	// Environment still wins over the file.
	t.Setenv("SERVER_PORT", ":6060")
	cfg, err = NewConfigFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != ":6060" {
		t.Errorf("env should override file, got %q", cfg.Port)
	}
}

func TestConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("shutdown_timeout: [nonsense"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := NewConfigFromEnv(); err == nil {
		t.Error("expected error for unparseable config file")
	}
}

func TestSanitize(t *testing.T) {
	cfg := Config{}.Sanitize()
	def := defaultConfig()
	if cfg.Port != def.Port || cfg.MaxMessageSize != def.MaxMessageSize || cfg.DatabasePath != def.DatabasePath {
		t.Errorf("zero config not sanitized to defaults: %+v", cfg)
	}
}
