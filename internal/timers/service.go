package timers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"walrus/internal/metrics"
	"walrus/internal/runtime/supervisor"
	"walrus/internal/storage"
	logx "walrus/pkg/logx"
)

// DefaultWindow is how far ahead the loop looks for the next timer.
const DefaultWindow = 10 * 24 * time.Hour

// DefaultRescan bounds how late a row written by another process can fire.
const DefaultRescan = time.Minute

type Config struct {
	// Window bounds the soonest-timer query. 0 means DefaultWindow.
	Window time.Duration
	// Rescan caps every wait so rows written by other processes are found.
	// 0 means DefaultRescan; it never exceeds Window.
	Rescan time.Duration

	RestartMinBackoff time.Duration
	RestartMaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.Rescan <= 0 {
		c.Rescan = DefaultRescan
	}
	if c.Rescan > c.Window {
		c.Rescan = c.Window
	}
	if c.RestartMinBackoff <= 0 {
		c.RestartMinBackoff = 500 * time.Millisecond
	}
	if c.RestartMaxBackoff <= 0 {
		c.RestartMaxBackoff = 30 * time.Second
	}
	return c
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithMetrics(m metrics.Sink) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service is the entry point: it boots the dispatch loop and schedules timers.
type Service struct {
	cfg     Config
	store   storage.TimerStore
	log     logx.Logger
	clock   clockwork.Clock
	metrics metrics.Sink

	gate   *Gate
	handle *Handle
	disp   *Dispatcher

	mu       sync.Mutex
	sup      *supervisor.Supervisor
	restarts atomic.Uint64
}

// Snapshot is a point-in-time view for diagnostics.
type Snapshot struct {
	State      string `json:"state"`
	Current    *Event `json:"current,omitempty"`
	Window     string `json:"window"`
	Fired      uint64 `json:"fired"`
	Dropped    uint64 `json:"dropped"`
	SinkErrors uint64 `json:"sink_errors"`
	Restarts   uint64 `json:"restarts"`
	Error      string `json:"error,omitempty"`
}

// New wires a Service. A nil sink discards fired timers.
func New(cfg Config, store storage.TimerStore, sink Sink, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg.withDefaults(),
		store:   store,
		log:     log,
		clock:   clockwork.NewRealClock(),
		metrics: metrics.NewNoop(),
		gate:    NewGate(),
		handle:  &Handle{},
	}
	for _, o := range opts {
		o(s)
	}
	if sink == nil {
		sink = SinkFunc(func(context.Context, string, Event) error { return nil })
	}
	s.disp = newDispatcher(store, sink, s.gate, s.handle, s.clock, s.metrics, log, s.cfg.Window, s.cfg.Rescan)
	return s
}

// Startup begins the dispatch loop in the background. It must be called once,
// after the store is ready. Canceling ctx stops the loop for good.
func (s *Service) Startup(ctx context.Context) error {
	if s.store == nil {
		return ErrNoStore
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return ErrAlreadyStarted
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log))
	s.sup.GoRestart("timers.dispatch", s.disp.Run,
		supervisor.WithRestartBackoff(s.cfg.RestartMinBackoff, s.cfg.RestartMaxBackoff),
		supervisor.WithRestartIf(storage.IsTransient),
		supervisor.WithOnRestart(func(err error, attempt int) {
			s.restarts.Add(1)
			s.metrics.LoopRestarted()
			s.log.Warn("dispatch loop restarting after storage fault", logx.Int("attempt", attempt), logx.Err(err))
		}),
	)
	s.log.Info("timer dispatch started", logx.Duration("window", s.cfg.Window), logx.Duration("rescan", s.cfg.Rescan))
	return nil
}

// ScheduleEvent persists a timer and wakes the loop if it is due before the
// one currently awaited. Storage failures are returned to the caller; on error
// nothing was scheduled.
func (s *Service) ScheduleEvent(ctx context.Context, kind string, createdAt, expiresAt time.Time, payload map[string]any) (Event, error) {
	if s.store == nil {
		return Event{}, ErrNoStore
	}
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return Event{}, fmt.Errorf("%w: empty kind", ErrInvalidEvent)
	}
	if expiresAt.Before(createdAt) {
		return Event{}, fmt.Errorf("%w: expires %s before created %s", ErrInvalidEvent, expiresAt.Format(time.RFC3339), createdAt.Format(time.RFC3339))
	}
	data, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: payload: %v", ErrInvalidEvent, err)
	}

	t, err := s.store.CreateTimer(ctx, kind, createdAt, expiresAt, data)
	if err != nil {
		return Event{}, fmt.Errorf("schedule %s: %w", kind, err)
	}
	s.metrics.TimerScheduled(kind)

	if s.handle.ShouldPreempt(t.ExpiresAt, s.clock.Now(), s.cfg.Window) {
		s.gate.Notify()
	}

	ev := header(t)
	ev.Payload = payload
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	s.log.Debug("timer scheduled", logx.String("id", ev.ID.String()), logx.String("kind", kind), logx.Time("expires", ev.ExpiresAt))
	return ev, nil
}

// Stop cancels the loop and waits for it to exit. It returns the loop's
// terminal fault, if any, or ctx's error when the wait is cut short.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return ErrNotStarted
	}
	return sup.Stop(ctx)
}

// Err reports the fault that stopped the loop permanently, if any.
func (s *Service) Err() error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

func (s *Service) State() State { return s.disp.State() }

func (s *Service) Window() time.Duration { return s.cfg.Window }

func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		State:      s.disp.State().String(),
		Window:     s.cfg.Window.String(),
		Fired:      s.disp.fired.Load(),
		Dropped:    s.disp.dropped.Load(),
		SinkErrors: s.disp.sinkErrors.Load(),
		Restarts:   s.restarts.Load(),
	}
	if ev, ok := s.handle.Current(); ok {
		snap.Current = &ev
	}
	if err := s.Err(); err != nil {
		snap.Error = err.Error()
	}
	return snap
}
