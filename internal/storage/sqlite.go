package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	logx "walrus/pkg/logx"
)

//go:embed migrations/sqlite.sql
var sqliteMigrations string

type sqliteStore struct {
	db    *sql.DB
	log   logx.Logger
	clock clockwork.Clock
	opTTL time.Duration
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, clock: cfg.Clock, opTTL: cfg.OpTimeout}
	if st.clock == nil {
		st.clock = clockwork.NewRealClock()
	}
	if _, err := db.ExecContext(ctx, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTTL <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTTL)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateTimer(ctx context.Context, event string, created, expires time.Time, data []byte) (Timer, error) {
	if s == nil || s.db == nil {
		return Timer{}, ErrDisabled
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	t := Timer{
		ID:        uuid.New(),
		Event:     event,
		CreatedAt: time.UnixMilli(created.UnixMilli()).UTC(),
		ExpiresAt: time.UnixMilli(expires.UnixMilli()).UTC(),
		Data:      data,
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timers(id, event, created_at, expires_at, data) VALUES(?,?,?,?,?)`,
		t.ID.String(), t.Event, t.CreatedAt.UnixMilli(), t.ExpiresAt.UnixMilli(), string(t.Data),
	)
	if err != nil {
		return Timer{}, wrap("create timer", err, isSQLiteBusy)
	}
	return t, nil
}

func (s *sqliteStore) SoonestTimer(ctx context.Context, window time.Duration) (*Timer, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	horizon := s.clock.Now().Add(window).UnixMilli()

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	var (
		id               string
		t                Timer
		created, expires int64
		data             string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, event, created_at, expires_at, data FROM timers
		 WHERE expires_at < ? ORDER BY expires_at LIMIT 1`, horizon,
	).Scan(&id, &t.Event, &created, &expires, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("soonest timer", err, isSQLiteBusy)
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, wrap("soonest timer", fmt.Errorf("bad id %q: %w", id, err), nil)
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.ExpiresAt = time.UnixMilli(expires).UTC()
	t.Data = []byte(data)
	return &t, nil
}

func (s *sqliteStore) DeleteTimer(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id.String())
	return wrap("delete timer", err, isSQLiteBusy)
}

func (s *sqliteStore) PendingTimers(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM timers`).Scan(&n)
	return n, wrap("pending timers", err, isSQLiteBusy)
}

func (s *sqliteStore) RecordCommand(ctx context.Context, use CommandUse) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if use.At.IsZero() {
		use.At = s.clock.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO command_stats(command, chat_id, user_id, used_at) VALUES(?,?,?,?)`,
		use.Name, use.ChatID, use.UserID, use.At.UnixMilli(),
	)
	return wrap("record command", err, isSQLiteBusy)
}

func (s *sqliteStore) CommandsRun(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_stats`).Scan(&n)
	return n, wrap("commands run", err, isSQLiteBusy)
}

// isSQLiteBusy reports lock contention, which clears on its own.
func isSQLiteBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return errors.Is(err, sql.ErrConnDone)
}
