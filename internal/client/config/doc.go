// Package config loads runtime configuration for the voicescreen CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Environment variables prefixed with VOICESCREEN_ (plus a bare
//     BASE_URL, which VOICESCREEN_BASE_URL overrides).
//  4. Command-line flags.
//
// # JSON schema
//
// Intervals use timex.Duration, so values can be strings like "30s" or
// integer nanoseconds. Keys that are absent keep their current value:
//
//	{
//	  "base_url": "https://api.example.com",
//	  "credential_backend": "redis",
//	  "redis_addr": "127.0.0.1:6379",
//	  "request_ttl": "30s",
//	  "log_level": "debug"
//	}
package config
