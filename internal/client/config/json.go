package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/voicescreen/internal/flagx"
	"github.com/dmitrijs2005/voicescreen/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer
// fields distinguish "absent" from the zero value, so a file only
// overrides what it names.
type JsonConfig struct {
	BaseURL             *string         `json:"base_url"`
	DatabasePath        *string         `json:"database_path"`
	CredentialBackend   *string         `json:"credential_backend"`
	RedisAddr           *string         `json:"redis_addr"`
	Profile             *string         `json:"profile"`
	RequestTTL          *timex.Duration `json:"request_ttl"`
	HTTPTimeout         *timex.Duration `json:"http_timeout"`
	BreakerEnabled      *bool           `json:"breaker_enabled"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
	StatusCheckInterval *timex.Duration `json:"status_check_interval"`
}

// parseJSON overlays cfg with the JSON file named by -c or -config in args.
// Without either flag nothing is loaded.
func parseJSON(cfg *Config, args []string) error {
	path := flagx.ConfigPath(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.BaseURL, jc.BaseURL)
	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.CredentialBackend, jc.CredentialBackend)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.Profile, jc.Profile)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.LogFormat, jc.LogFormat)

	if jc.RequestTTL != nil {
		cfg.RequestTTL = jc.RequestTTL.Duration
	}
	if jc.HTTPTimeout != nil {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.StatusCheckInterval != nil {
		cfg.StatusCheckInterval = jc.StatusCheckInterval.Duration
	}
	if jc.BreakerEnabled != nil {
		cfg.BreakerEnabled = *jc.BreakerEnabled
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
