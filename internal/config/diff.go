package config

import (
	"slices"
	"strings"

	logx "walrus/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns safe fields for logging. Secrets are reported only as "set".
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.LogChatID != nt.LogChatID || ot.PollTimeout != nt.PollTimeout ||
		ot.RatePerSec != nt.RatePerSec || !slices.Equal(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", set(nt.Token)),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.poll_timeout", nt.PollTimeout),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", set(newCfg.Storage.Path)),
			logx.Bool("storage.dsn_set", set(newCfg.Storage.DSN)),
		)
	}

	if oldCfg.Timers != newCfg.Timers {
		changed = append(changed, "timers")
		attrs = append(attrs,
			logx.String("timers.window", newCfg.Timers.Window),
			logx.String("timers.rescan", newCfg.Timers.Rescan),
		)
	}

	oa, na := oldCfg.API, newCfg.API
	if oa.Enabled != na.Enabled || oa.Addr != na.Addr || oa.Debug != na.Debug ||
		oa.ReadTimeout != na.ReadTimeout || !slices.Equal(oa.CORSOrigins, na.CORSOrigins) {
		changed = append(changed, "api")
		attrs = append(attrs, logx.Bool("api.enabled", na.Enabled), logx.String("api.addr", na.Addr))
	}

	if oldCfg.Gist != newCfg.Gist {
		changed = append(changed, "gist")
		attrs = append(attrs,
			logx.Bool("gist.enabled", newCfg.Gist.Enabled),
			logx.String("gist.schedule", newCfg.Gist.Schedule),
			logx.Bool("gist.token_set", set(newCfg.Gist.Token)),
		)
	}

	if oldCfg.NATS != newCfg.NATS {
		changed = append(changed, "nats")
		attrs = append(attrs, logx.Bool("nats.enabled", newCfg.NATS.Enabled), logx.String("nats.prefix", newCfg.NATS.Prefix))
	}

	slices.Sort(changed)
	return changed, attrs
}

// RestartRequired reports whether a change touches sections that are only
// read at startup.
func RestartRequired(changed []string) bool {
	for _, s := range changed {
		if s != "logging" {
			return true
		}
	}
	return false
}
