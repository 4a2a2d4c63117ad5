package timers

import (
	"sync/atomic"
	"time"
)

// Handle holds the timer the loop is currently sleeping on.
// Only the loop writes it; ScheduleEvent reads it concurrently.
type Handle struct {
	p atomic.Pointer[Event]
}

func (h *Handle) Set(ev Event) { h.p.Store(&ev) }

func (h *Handle) Clear() { h.p.Store(nil) }

func (h *Handle) Current() (Event, bool) {
	if ev := h.p.Load(); ev != nil {
		return *ev, true
	}
	return Event{}, false
}

// ShouldPreempt reports whether a timer expiring at expires must wake the loop:
// either nothing is held and it falls within the window, or it is strictly
// earlier than the held timer.
func (h *Handle) ShouldPreempt(expires, now time.Time, window time.Duration) bool {
	cur := h.p.Load()
	if cur == nil {
		return expires.Sub(now) <= window
	}
	return expires.Before(cur.ExpiresAt)
}
