// Package config loads the relay configuration from YAML or JSON5 files,
// with environment variable expansion and $include composition.
package config

import (
	"fmt"
	"time"
)

// Config is the main configuration structure for the relay service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
	Files    FilesConfig    `yaml:"files"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Agent    AgentConfig    `yaml:"agent"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// RuntimeConfig points at the hosted agent runtime that streams turns.
type RuntimeConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	APIVersion string        `yaml:"api_version"`
	AgentID    string        `yaml:"agent_id"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// FilesConfig configures the assistants-compatible side channel used for
// thread history and file downloads. When BaseURL is empty the runtime
// endpoint is reused.
type FilesConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	// Driver selects session persistence: "memory" or "postgres".
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type SessionConfig struct {
	// LockTimeout bounds how long a turn waits for a busy session.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

type AgentConfig struct {
	// MaxApprovalRounds caps the auto-approve resubmission cycle.
	MaxApprovalRounds int `yaml:"max_approval_rounds"`

	// SubmitTimeout bounds one full turn end to end.
	SubmitTimeout time.Duration `yaml:"submit_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the configuration file, resolving includes and
// expanding environment variables.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Runtime.Endpoint == "" {
		return fmt.Errorf("runtime.endpoint is required")
	}
	if c.Runtime.APIKey == "" {
		return fmt.Errorf("runtime.api_key is required")
	}
	if c.Runtime.AgentID == "" {
		return fmt.Errorf("runtime.agent_id is required")
	}
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Runtime.APIVersion == "" {
		cfg.Runtime.APIVersion = "2025-05-01"
	}
	if cfg.Runtime.MaxRetries == 0 {
		cfg.Runtime.MaxRetries = 3
	}
	if cfg.Runtime.RetryDelay == 0 {
		cfg.Runtime.RetryDelay = time.Second
	}
	if cfg.Files.APIKey == "" {
		cfg.Files.APIKey = cfg.Runtime.APIKey
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "memory"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.Session.LockTimeout == 0 {
		cfg.Session.LockTimeout = 30 * time.Second
	}
	if cfg.Agent.MaxApprovalRounds == 0 {
		cfg.Agent.MaxApprovalRounds = 8
	}
	if cfg.Agent.SubmitTimeout == 0 {
		cfg.Agent.SubmitTimeout = 5 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}
