package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Credential backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds runtime settings for the voicescreen CLI.
type Config struct {
	BaseURL           string `env:"BASE_URL" validate:"required,url"`
	DatabasePath      string `env:"DATABASE_PATH" validate:"required_if=CredentialBackend sqlite"`
	CredentialBackend string `env:"CREDENTIAL_BACKEND" validate:"oneof=sqlite redis memory"`
	RedisAddr         string `env:"REDIS_ADDR" validate:"required_if=CredentialBackend redis"`
	Profile           string `env:"PROFILE" validate:"required"`

	RequestTTL     time.Duration `env:"REQUEST_TTL" validate:"gt=0"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	BreakerEnabled bool          `env:"BREAKER_ENABLED"`

	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=text json"`

	// StatusCheckInterval is how often the CLI re-evaluates the session state.
	StatusCheckInterval time.Duration `env:"STATUS_CHECK_INTERVAL" validate:"gt=0"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BaseURL = "http://localhost:5000"
	c.DatabasePath = "voicescreen.db"
	c.CredentialBackend = BackendSQLite
	c.RedisAddr = "127.0.0.1:6379"
	c.Profile = "default"
	c.RequestTTL = 30 * time.Second
	c.HTTPTimeout = 30 * time.Second
	c.BreakerEnabled = true
	c.LogLevel = "info"
	c.LogFormat = "text"
	c.StatusCheckInterval = 3 * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config, then the environment, then command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJSON(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
