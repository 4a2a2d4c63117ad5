// Package storage is the persistence layer behind the timer dispatcher.
//
// It currently supports:
//   - Timer rows (create, soonest-within-window, delete by id)
//   - Command usage stats (append + count)
//
// Drivers: sqlite (default, pure Go), postgres (pgx pool), memory.
package storage
