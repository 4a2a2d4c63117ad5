// Package timers persists "fire at time T" events and dispatches each one
// once it is due.
//
// A single dispatch loop asks the store for the soonest timer inside a
// lookahead window, sleeps until it is due, deletes the row and hands the
// decoded event to a Sink. ScheduleEvent wakes the loop early when a new
// timer is due before the one it is sleeping on.
//
// Delivery is at most once: the row is deleted before the sink runs, so a
// crash between the two drops that one event.
//
// The loop never bounds sink execution. A sink that blocks stalls every
// later timer; long work belongs on the sink's own goroutine.
package timers
