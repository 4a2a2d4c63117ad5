package timers

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"walrus/internal/metrics"
	"walrus/internal/storage"
	logx "walrus/pkg/logx"
)

// State is the dispatch loop's position in its cycle.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateFiring
	StateRecovering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaiting:
		return "waiting"
	case StateFiring:
		return "firing"
	case StateRecovering:
		return "recovering"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher runs the query, sleep, fire cycle. Run is not reentrant: exactly
// one goroutine may be inside it at a time.
type Dispatcher struct {
	store   storage.TimerStore
	sink    Sink
	gate    *Gate
	handle  *Handle
	clock   clockwork.Clock
	metrics metrics.Sink
	log     logx.Logger

	window time.Duration
	rescan time.Duration

	state      atomic.Int32
	fired      atomic.Uint64
	dropped    atomic.Uint64
	sinkErrors atomic.Uint64
}

func newDispatcher(store storage.TimerStore, sink Sink, gate *Gate, handle *Handle, clock clockwork.Clock, m metrics.Sink, log logx.Logger, window, rescan time.Duration) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		sink:    sink,
		gate:    gate,
		handle:  handle,
		clock:   clock,
		metrics: m,
		log:     log,
		window:  window,
		rescan:  rescan,
	}
	d.state.Store(int32(StateStopped))
	return d
}

func (d *Dispatcher) State() State { return State(d.state.Load()) }

func (d *Dispatcher) setState(s State) { d.state.Store(int32(s)) }

// Run loops until ctx is canceled or the store fails. Storage errors are
// returned unchanged so the caller can decide whether to restart.
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	defer func() {
		d.handle.Clear()
		if ctx.Err() == nil && storage.IsTransient(err) {
			d.setState(StateRecovering)
			return
		}
		d.setState(StateStopped)
	}()

	d.setState(StateIdle)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Clear before querying: a ScheduleEvent that commits after this point
		// sees no handle and wakes us; one that committed before is in the result.
		d.handle.Clear()
		d.gate.drain()

		t, err := d.store.SoonestTimer(ctx, d.window)
		if err != nil {
			return err
		}
		if t == nil {
			d.setState(StateIdle)
			if err := d.idle(ctx); err != nil {
				return err
			}
			continue
		}

		d.handle.Set(header(*t))
		if wait := t.ExpiresAt.Sub(d.clock.Now()); wait > 0 {
			d.setState(StateWaiting)
			due, err := d.sleep(ctx, wait)
			if err != nil {
				return err
			}
			if !due {
				continue
			}
		}
		if err := d.fire(ctx, *t); err != nil {
			return err
		}
	}
}

// idle waits for a wake-up, or one rescan interval so rows created by other
// processes and rows beyond the window are eventually picked up.
func (d *Dispatcher) idle(ctx context.Context) error {
	timer := d.clock.NewTimer(d.rescan)
	defer timer.Stop()
	woken, err := d.gate.Wait(ctx, timer.Chan())
	if err != nil {
		return err
	}
	if woken {
		d.log.Trace("idle wait woken")
	} else {
		d.log.Trace("idle wait elapsed, rescanning")
	}
	return nil
}

// sleep waits until the held timer is due. It reports false when woken early,
// which means the soonest timer has to be looked up again.
func (d *Dispatcher) sleep(ctx context.Context, wait time.Duration) (bool, error) {
	step := min(wait, d.rescan)
	d.metrics.WaitStarted(wait)

	timer := d.clock.NewTimer(step)
	defer timer.Stop()
	woken, err := d.gate.Wait(ctx, timer.Chan())
	if err != nil {
		return false, err
	}
	if woken {
		d.metrics.TimerPreempted()
		d.log.Debug("wait preempted")
		return false, nil
	}
	return step == wait, nil
}

// fire deletes the row and only then invokes the sink. A failed delete means
// the timer did not fire.
func (d *Dispatcher) fire(ctx context.Context, t storage.Timer) error {
	d.setState(StateFiring)

	ev, err := decodeTimer(t)
	if err != nil {
		d.log.Warn("dropping timer with undecodable payload", logx.String("id", t.ID.String()), logx.String("kind", t.Event), logx.Err(err))
		d.metrics.DecodeError(t.Event)
		d.dropped.Add(1)
		return d.store.DeleteTimer(ctx, t.ID)
	}
	if err := d.store.DeleteTimer(ctx, t.ID); err != nil {
		return err
	}
	d.handle.Clear()
	d.fired.Add(1)
	d.metrics.TimerFired(ev.Kind)

	late := d.clock.Since(ev.ExpiresAt)
	d.log.Debug("timer fired", logx.String("id", ev.ID.String()), logx.String("kind", ev.Kind), logx.Duration("late", late))
	d.invoke(ctx, ev)
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, ev Event) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("timer sink panicked", logx.String("kind", ev.Kind), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("sink panic: %v", r)
			}
		}()
		return d.sink.OnEventDue(ctx, ev.Kind, ev)
	}()
	if err == nil {
		return
	}
	d.sinkErrors.Add(1)
	d.metrics.SinkError(ev.Kind)
	if errors.Is(err, context.Canceled) {
		d.log.Debug("timer sink canceled", logx.String("kind", ev.Kind), logx.String("id", ev.ID.String()))
		return
	}
	d.log.Warn("timer sink failed", logx.String("kind", ev.Kind), logx.String("id", ev.ID.String()), logx.Err(err))
}
