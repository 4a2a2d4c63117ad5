// Package app wires configuration, storage, the timer dispatcher, chat
// commands and the optional HTTP, gist and NATS surfaces into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"walrus/internal/api"
	"walrus/internal/commands"
	"walrus/internal/config"
	"walrus/internal/eventbus"
	"walrus/internal/gist"
	"walrus/internal/metrics"
	"walrus/internal/natsink"
	"walrus/internal/reminders"
	"walrus/internal/runtime/supervisor"
	"walrus/internal/storage"
	"walrus/internal/timers"
	kit "walrus/internal/transport"
	"walrus/internal/transport/telegram"
	logx "walrus/pkg/logx"
)

type Option func(*App)

// WithClock overrides the clock used by the store, dispatcher and commands.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithSender replaces the Telegram transport. Nothing is polled; updates can
// still be pushed through Updates.
func WithSender(s kit.Sender) Option {
	return func(a *App) { a.sender = s }
}

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	clock clockwork.Clock
	bus   eventbus.Bus
	store storage.Store
	prom  *prometheus.Registry

	adapter *telegram.Adapter
	sender  kit.Sender

	timers      *timers.Service
	timerRouter *timers.Router
	router      *commands.Router
	api         *api.Server
	gist        *gist.Exporter
	nc          *nats.Conn

	updates chan kit.Update
}

func New(ctx context.Context, cfgPath string, opts ...Option) (*App, error) {
	a := &App{
		cfgm:    config.NewManager(cfgPath),
		clock:   clockwork.NewRealClock(),
		updates: make(chan kit.Update, 256),
	}
	for _, o := range opts {
		o(a)
	}
	cfg, err := a.cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The chat log sink needs the adapter, which needs a logger: bootstrap
	// with a console logger and attach the adapter afterwards.
	a.logs, a.log = logx.New(logConfig(cfg), nil)
	root := a.log
	a.log = root.With(logx.String("comp", "app"))
	a.cfgm.SetLogger(root.With(logx.String("comp", "config")))

	if a.sender == nil {
		if cfg.Telegram.Token != "" {
			tc, err := telegramConfig(cfg)
			if err != nil {
				return nil, err
			}
			ad, err := telegram.New(tc, root.With(logx.String("comp", "telegram")))
			if err != nil {
				return nil, err
			}
			a.adapter, a.sender = ad, ad
		} else {
			a.log.Warn("telegram.token is empty; running without a chat transport")
			a.sender = &logSender{log: root.With(logx.String("comp", "outbox"))}
		}
	}
	a.logs.SetSender(a.sender)

	if err := a.openStore(ctx, cfg, root); err != nil {
		return nil, err
	}

	a.prom = prometheus.NewRegistry()
	a.prom.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPrometheus(a.prom, root.With(logx.String("comp", "metrics")))
	a.bus = eventbus.New()

	if err := a.buildTimers(cfg, root, m); err != nil {
		a.closeStore()
		return nil, err
	}

	rem := reminders.New(a.timers, a.sender, a.clock, root.With(logx.String("comp", "reminders")))
	a.timerRouter.Handle(reminders.Kind, rem.Deliver)

	reg := commands.NewRegistry()
	a.router = commands.NewRouter(reg, a.sender, root.With(logx.String("comp", "commands")),
		commands.WithStats(a.store),
		commands.WithMetrics(m),
		commands.WithClock(a.clock),
	)
	if err := registerCommands(reg, a.router, rem); err != nil {
		a.closeStore()
		return nil, err
	}
	if a.adapter != nil {
		a.router.SetBotName(a.adapter.Username())
	}

	if cfg.API.Enabled {
		sc, err := apiConfig(cfg)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		h := api.NewHandler(reg, a.router, api.Options{
			CORSOrigins: cfg.API.CORSOrigins,
			Debug:       cfg.API.Debug,
			Gatherer:    a.prom,
			Health:      a.timers,
		}, root.With(logx.String("comp", "api")))
		a.api = api.NewServer(sc, h, root.With(logx.String("comp", "api")))
	}

	if cfg.Gist.Enabled {
		gc, err := gistConfig(cfg)
		if err != nil {
			a.closeStore()
			return nil, err
		}
		src := func(ctx context.Context) (any, error) { return api.BuildReport(ctx, reg, a.router) }
		a.gist, err = gist.New(gc, src, root.With(logx.String("comp", "gist")), gist.WithClock(a.clock))
		if err != nil {
			a.closeStore()
			return nil, err
		}
	}
	return a, nil
}

func registerCommands(reg *commands.Registry, r *commands.Router, rem *reminders.Reminders) error {
	for _, c := range []commands.Command{
		commands.HelpCommand(reg),
		commands.StatsCommand(r),
		rem.Command(),
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register /%s: %w", c.Name, err)
		}
	}
	return nil
}

// openStore falls back to an in-memory store when storage is disabled so
// reminders keep working until the process exits.
func (a *App) openStore(ctx context.Context, cfg *config.Config, root logx.Logger) error {
	sc, err := StorageConfig(cfg, a.clock)
	if err != nil {
		return err
	}
	st, err := storage.Open(ctx, sc, root.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	if st == nil {
		a.log.Warn("storage disabled; timers will not survive a restart")
		st = storage.NewMemory(a.clock)
		sc.Driver = "memory"
	}
	a.store = st
	a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	return nil
}

func (a *App) closeStore() {
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.nc != nil {
		a.nc.Close()
	}
}

func (a *App) buildTimers(cfg *config.Config, root logx.Logger, m metrics.Sink) error {
	tc, err := TimersConfig(cfg)
	if err != nil {
		return err
	}
	a.timerRouter = timers.NewRouter(a.bus, root.With(logx.String("comp", "timers")))
	sinks := timers.Multi{a.timerRouter}

	if cfg.NATS.Enabled {
		nlog := root.With(logx.String("comp", "nats"))
		nc, err := natsink.Connect(natsConfig(cfg), nlog)
		if err != nil {
			return err
		}
		a.nc = nc
		sinks = append(sinks, natsink.New(nc, cfg.NATS.Prefix, nlog))
	}

	a.timers = timers.New(tc, a.store, sinks, root.With(logx.String("comp", "timers")),
		timers.WithClock(a.clock),
		timers.WithMetrics(m),
	)
	return nil
}

// Timers exposes the dispatcher for callers that schedule directly.
func (a *App) Timers() *timers.Service { return a.timers }

// Updates is the inbound queue the command router consumes.
func (a *App) Updates() chan<- kit.Update { return a.updates }

// APIAddr blocks until the HTTP server is listening. It fails when the API is disabled.
func (a *App) APIAddr(ctx context.Context) (string, error) {
	if a.api == nil {
		return "", errors.New("api disabled")
	}
	return a.api.Addr(ctx)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	if err := a.timers.Startup(c); err != nil {
		return err
	}
	a.sup.Go("timers.watch", a.watchTimers)

	if a.adapter != nil {
		if err := a.adapter.Start(c, a.updates); err != nil {
			return err
		}
		a.sup.Go0("commands.menu", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 15*time.Second)
			defer cancel()
			if err := a.router.SyncMenu(mctx); err != nil {
				a.log.Warn("command menu sync failed", logx.Err(err))
			}
		})
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.Run(c, a.updates)
	})

	if a.api != nil {
		a.api.Start(c)
	}
	if a.gist != nil {
		a.gist.Start(c)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started")
	return nil
}

// watchTimers turns a dispatch loop that gave up into an app failure.
func (a *App) watchTimers(ctx context.Context) error {
	t := a.clock.NewTicker(2 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.Chan():
			if err := a.timers.Err(); err != nil {
				return fmt.Errorf("timer dispatch stopped: %w", err)
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	a.step(ctx, "gist", 1*time.Second, func(c context.Context) error {
		if a.gist != nil {
			a.gist.Stop(c)
		}
		return nil
	})
	a.step(ctx, "api", 2*time.Second, func(c context.Context) error {
		if a.api != nil {
			a.api.Stop(c)
		}
		return nil
	})
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error {
		if a.adapter != nil {
			return a.adapter.Stop(c)
		}
		return nil
	})
	a.step(ctx, "timers", 2*time.Second, func(c context.Context) error {
		if err := a.timers.Stop(c); err != nil && !errors.Is(err, timers.ErrNotStarted) {
			return err
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "nats", 1*time.Second, func(context.Context) error {
		if a.nc != nil {
			return a.nc.Drain()
		}
		return nil
	})
	a.step(ctx, "storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown stage bounded by max and by ctx. A stage that
// overruns is left running in the background so later stages still get
// their turn.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	if dl, ok := ctx.Deadline(); ok {
		max = min(max, time.Until(dl))
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
