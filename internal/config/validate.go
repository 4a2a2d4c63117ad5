package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if cfg.Telegram.RatePerSec < 0 {
		add(errors.New("telegram.rate_per_sec must be >= 0"))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.LogChatID == 0 {
		add(errors.New("logging.telegram.enabled requires telegram.log_chat_id"))
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "none", "memory":
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path is required for sqlite"))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(fmt.Errorf("storage.dsn (or %s) is required for postgres", EnvPostgresURI))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	dur("storage.op_timeout", cfg.Storage.OpTimeout)
	if cfg.Storage.MaxConns < 0 {
		add(errors.New("storage.max_conns must be >= 0"))
	}

	dur("timers.window", cfg.Timers.Window)
	dur("timers.rescan", cfg.Timers.Rescan)
	dur("timers.restart_min_backoff", cfg.Timers.RestartMinBackoff)
	dur("timers.restart_max_backoff", cfg.Timers.RestartMaxBackoff)

	if cfg.API.Enabled && strings.TrimSpace(cfg.API.Addr) == "" {
		add(errors.New("api.addr is required when api is enabled"))
	}
	dur("api.read_timeout", cfg.API.ReadTimeout)

	if cfg.Gist.Enabled {
		if strings.TrimSpace(cfg.Gist.ID) == "" || strings.TrimSpace(cfg.Gist.Token) == "" {
			add(fmt.Errorf("gist.id and gist.token (or %s/%s) are required when gist is enabled", EnvGistID, EnvGistToken))
		}
	}
	dur("gist.timeout", cfg.Gist.Timeout)

	if cfg.NATS.Enabled && strings.TrimSpace(cfg.NATS.URL) == "" {
		add(fmt.Errorf("nats.url (or %s) is required when nats is enabled", EnvNATSURL))
	}
	return errors.Join(errs...)
}
