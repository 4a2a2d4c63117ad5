// Package metrics records dispatcher and bot counters.
package metrics

import "time"

// Sink records metrics. Methods are fire-and-forget: implementations must not
// block or return errors.
type Sink interface {
	// Timer lifecycle
	TimerScheduled(kind string)
	TimerFired(kind string)
	TimerPreempted()
	WaitStarted(d time.Duration)

	// Failures
	SinkError(kind string)
	DecodeError(kind string)
	LoopRestarted()

	// Chat surface
	CommandRun(name string)
	UpdateReceived(kind string)
}

