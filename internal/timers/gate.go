package timers

import (
	"context"
	"time"
)

// Gate is a coalescing wake-up signal with many producers and one consumer.
// The one-slot buffer keeps a Notify that races with a receive from being lost.
type Gate struct {
	ch chan struct{}
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}, 1)}
}

// Notify sets the signal. It never blocks; a second Notify before the
// consumer wakes is a no-op.
func (g *Gate) Notify() {
	select {
	case g.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is set or timeout fires, and reports which.
// A set signal is cleared. A nil timeout waits for the signal alone.
func (g *Gate) Wait(ctx context.Context, timeout <-chan time.Time) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-g.ch:
		return true, nil
	case <-timeout:
		return false, nil
	}
}

// pending reports whether a signal is set.
func (g *Gate) pending() bool { return len(g.ch) > 0 }

// drain clears a pending signal without blocking.
func (g *Gate) drain() {
	select {
	case <-g.ch:
	default:
	}
}
