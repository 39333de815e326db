package config

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/voicescreen/internal/flagx"
)

var knownFlags = []string{"-a", "-d", "-b", "-p", "-t", "-l"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   API base URL
//	-d string   SQLite database path
//	-b string   credential backend (sqlite, redis, memory)
//	-p string   credential profile
//	-t int      request dedup TTL (in seconds)
//	-l string   log level
//
// Flags owned by other layers are filtered out first.
func parseFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("voicescreen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "a", cfg.BaseURL, "API base URL")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "SQLite database path")
	fs.StringVar(&cfg.CredentialBackend, "b", cfg.CredentialBackend, "credential backend")
	fs.StringVar(&cfg.Profile, "p", cfg.Profile, "credential profile")
	ttl := fs.Int("t", int(cfg.RequestTTL.Seconds()), "request dedup TTL (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, knownFlags)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			cfg.RequestTTL = time.Duration(*ttl) * time.Second
		}
	})
	return nil
}
