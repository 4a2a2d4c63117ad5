package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the file.
const (
	EnvToken       = "WALRUS_TOKEN"
	EnvPostgresURI = "WALRUS_POSTGRES_URI"
	EnvGistToken   = "WALRUS_GIST_TOKEN"
	EnvGistID      = "WALRUS_GIST_ID"
	EnvNATSURL     = "WALRUS_NATS_URL"
)

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv copies non-empty overrides from lookup into cfg.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil || lookup == nil {
		return
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Telegram.Token, EnvToken)
	set(&cfg.Storage.DSN, EnvPostgresURI)
	set(&cfg.Gist.Token, EnvGistToken)
	set(&cfg.Gist.ID, EnvGistID)
	set(&cfg.NATS.URL, EnvNATSURL)
}
