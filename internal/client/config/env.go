package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "VOICESCREEN_"

// baseURLEnv is the unprefixed BASE_URL the web client is deployed with.
type baseURLEnv struct {
	BaseURL string `env:"BASE_URL"`
}

// parseEnv overlays cfg with environment variables. Unset variables leave
// the current value alone. VOICESCREEN_BASE_URL wins over BASE_URL.
func parseEnv(cfg *Config) error {
	var legacy baseURLEnv
	if err := env.Parse(&legacy); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if legacy.BaseURL != "" {
		cfg.BaseURL = legacy.BaseURL
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
