package timers

import (
	"context"
	"errors"
	"strings"
	"sync"

	"walrus/internal/eventbus"
	logx "walrus/pkg/logx"
)

// Sink receives fired timers. It runs on the dispatch loop goroutine:
// keep it fast, or hand the work to another goroutine.
type Sink interface {
	OnEventDue(ctx context.Context, kind string, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, kind string, ev Event) error

func (f SinkFunc) OnEventDue(ctx context.Context, kind string, ev Event) error {
	return f(ctx, kind, ev)
}

// CompleteEvent is the bus event type published for a fired timer kind.
func CompleteEvent(kind string) string { return kind + "_complete" }

// Router dispatches fired timers to per-kind handlers and publishes
// "<kind>_complete" on the bus for every one of them.
type Router struct {
	bus eventbus.Bus
	log logx.Logger

	mu       sync.RWMutex
	handlers map[string]SinkFunc
}

// NewRouter creates a Router. bus may be nil.
func NewRouter(bus eventbus.Bus, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{bus: bus, log: log, handlers: map[string]SinkFunc{}}
}

// Handle registers fn for kind, replacing any previous handler.
func (r *Router) Handle(kind string, fn SinkFunc) {
	kind = strings.TrimSpace(kind)
	if kind == "" || fn == nil {
		return
	}
	r.mu.Lock()
	r.handlers[kind] = fn
	r.mu.Unlock()
}

func (r *Router) OnEventDue(ctx context.Context, kind string, ev Event) error {
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: CompleteEvent(kind), Data: ev})
	}
	r.mu.RLock()
	fn := r.handlers[kind]
	r.mu.RUnlock()
	if fn == nil {
		r.log.Debug("no handler for timer kind", logx.String("kind", kind), logx.String("id", ev.ID.String()))
		return nil
	}
	return fn(ctx, kind, ev)
}

// Multi fans a fired timer out to every sink in order. All sinks run even if
// one fails; the errors are joined.
type Multi []Sink

func (m Multi) OnEventDue(ctx context.Context, kind string, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.OnEventDue(ctx, kind, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
