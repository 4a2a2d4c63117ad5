package app

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"walrus/internal/api"
	"walrus/internal/config"
	"walrus/internal/gist"
	"walrus/internal/natsink"
	"walrus/internal/storage"
	"walrus/internal/timers"
	"walrus/internal/transport/telegram"
	logx "walrus/pkg/logx"
)

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.LogChatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// StorageConfig maps the storage section. A nil clock means the real one.
func StorageConfig(cfg *config.Config, clock clockwork.Clock) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	op, err := config.ParseDurationField("storage.op_timeout", sc.OpTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
		MaxConns:    sc.MaxConns,
		OpTimeout:   op,
		Clock:       clock,
	}, nil
}

// TimersConfig maps the timers section; zero values fall back to the
// dispatcher defaults.
func TimersConfig(cfg *config.Config) (timers.Config, error) {
	tc := cfg.Timers
	var (
		out timers.Config
		err error
	)
	if out.Window, err = config.ParseDurationField("timers.window", tc.Window); err != nil {
		return timers.Config{}, err
	}
	if out.Rescan, err = config.ParseDurationField("timers.rescan", tc.Rescan); err != nil {
		return timers.Config{}, err
	}
	if out.RestartMinBackoff, err = config.ParseDurationField("timers.restart_min_backoff", tc.RestartMinBackoff); err != nil {
		return timers.Config{}, err
	}
	if out.RestartMaxBackoff, err = config.ParseDurationField("timers.restart_max_backoff", tc.RestartMaxBackoff); err != nil {
		return timers.Config{}, err
	}
	return out, nil
}

func telegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       strings.TrimSpace(cfg.Telegram.Token),
		PollTimeout: poll,
		RatePerSec:  cfg.Telegram.RatePerSec,
	}, nil
}

func apiConfig(cfg *config.Config) (api.ServerConfig, error) {
	rt, err := config.ParseDurationField("api.read_timeout", cfg.API.ReadTimeout)
	if err != nil {
		return api.ServerConfig{}, err
	}
	return api.ServerConfig{Addr: strings.TrimSpace(cfg.API.Addr), ReadTimeout: rt}, nil
}

func gistConfig(cfg *config.Config) (gist.Config, error) {
	to, err := config.ParseDurationField("gist.timeout", cfg.Gist.Timeout)
	if err != nil {
		return gist.Config{}, err
	}
	return gist.Config{
		ID:       strings.TrimSpace(cfg.Gist.ID),
		Token:    strings.TrimSpace(cfg.Gist.Token),
		Schedule: cfg.Gist.Schedule,
		BaseURL:  cfg.Gist.BaseURL,
		Timeout:  to,
	}, nil
}

func natsConfig(cfg *config.Config) natsink.Config {
	return natsink.Config{URL: cfg.NATS.URL, Prefix: cfg.NATS.Prefix, Name: cfg.NATS.Name}
}
