// Package config loads orchestrator configuration from a YAML file (if
// present) and then applies environment variable overrides, matching the
// layered load order the rest of the ambient stack uses elsewhere in this
// codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the thin HTTP surface (Import API + health/metrics).
type ServerConfig struct {
	Host string `yaml:"host" env:"SERVER_HOST"`
	Port int    `yaml:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Persistence Gateway backend.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN             string `yaml:"dsn" env:"DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls pkg/logger output.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// SecurityConfig controls the Encryption Collaborator.
type SecurityConfig struct {
	MasterKeyHex string `yaml:"master_key_hex" env:"ENCRYPTION_MASTER_KEY_HEX"`
}

// RunnerConfig bounds the Tool Runner's concurrency and defaults.
type RunnerConfig struct {
	MaxConcurrentJobs int    `yaml:"max_concurrent_jobs" env:"RUNNER_MAX_CONCURRENT_JOBS"`
	DefaultTimeoutSec int    `yaml:"default_timeout_seconds" env:"RUNNER_DEFAULT_TIMEOUT_SECONDS"`
	ToolsFile         string `yaml:"tools_file" env:"RUNNER_TOOLS_FILE"`
}

// NotifyConfig controls the Notification Collaborator.
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url" env:"NOTIFY_WEBHOOK_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"NOTIFY_TIMEOUT_SECONDS"`
}

// Config is the top-level orchestrator configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Runner   RunnerConfig   `yaml:"runner"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Runner: RunnerConfig{
			MaxConcurrentJobs: 10,
			DefaultTimeoutSec: 300,
			ToolsFile:         "configs/tools.yaml",
		},
		Notify: NotifyConfig{TimeoutSeconds: 10},
	}
}

// Load loads configuration from CONFIG_FILE (or configs/config.yaml if
// unset) and then applies environment variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
