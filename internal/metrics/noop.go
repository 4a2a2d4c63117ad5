package metrics

import "time"

// Noop discards everything. Used when metrics are disabled to avoid nil checks.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) TimerScheduled(kind string)  {}
func (Noop) TimerFired(kind string)      {}
func (Noop) TimerPreempted()             {}
func (Noop) WaitStarted(d time.Duration) {}
func (Noop) SinkError(kind string)       {}
func (Noop) DecodeError(kind string)     {}
func (Noop) LoopRestarted()              {}
func (Noop) CommandRun(name string)      {}
func (Noop) UpdateReceived(kind string)  {}
