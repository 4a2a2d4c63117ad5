package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable at DSN
//   - "memory": process-local, nothing survives a restart
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres pool size; 0 means pgx default
	OpTimeout   time.Duration // per-statement timeout; 0 disables

	// Clock provides "now" for window queries. Nil means the real clock.
	Clock clockwork.Clock
}

// Timer is one persisted "fire at ExpiresAt" row.
type Timer struct {
	ID        uuid.UUID
	Event     string
	CreatedAt time.Time
	ExpiresAt time.Time
	Data      []byte // JSON-encoded payload
}

// CommandUse records one command invocation.
type CommandUse struct {
	Name   string
	ChatID int64
	UserID int64
	At     time.Time
}

// TimerStore is the durable CRUD surface used by the dispatcher.
type TimerStore interface {
	// CreateTimer persists a new row and returns it with its assigned id.
	CreateTimer(ctx context.Context, event string, created, expires time.Time, data []byte) (Timer, error)
	// SoonestTimer returns the row with the smallest ExpiresAt among rows with
	// ExpiresAt < now+window, or nil when there is none.
	SoonestTimer(ctx context.Context, window time.Duration) (*Timer, error)
	// DeleteTimer removes a row. Deleting a missing id is not an error.
	DeleteTimer(ctx context.Context, id uuid.UUID) error
	// PendingTimers counts stored rows.
	PendingTimers(ctx context.Context) (int, error)
}

// StatsStore keeps command usage counters.
type StatsStore interface {
	RecordCommand(ctx context.Context, use CommandUse) error
	CommandsRun(ctx context.Context) (int64, error)
}

// Store is the full persistence API used by the app.
type Store interface {
	TimerStore
	StatsStore
	Close() error
}
