package app

import (
	"context"
	"strings"

	"walrus/internal/config"
	logx "walrus/pkg/logx"
)

// reloadLoop applies config updates published by the manager. Only logging
// is live; other sections are reported and wait for a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			cfg = latest(sub, cfg)
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

// latest drains queued updates so a burst of saves is applied once.
func latest(sub chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(prev, cfg *config.Config) {
	if cfg == nil {
		return
	}
	sections, attrs := config.SummarizeChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.logs.Apply(logConfig(cfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if config.RestartRequired(sections) {
		a.log.Warn("config change needs a restart to take effect", logx.String("changed", strings.Join(sections, ",")))
	}
}
