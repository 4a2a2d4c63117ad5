package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	logx "walrus/pkg/logx"
)

//go:embed migrations/postgres.sql
var postgresMigrations string

const (
	pgInsertTimer = `
INSERT INTO events.timers (id, event, created, expires, data)
VALUES ($1, $2, $3, $4, $5::jsonb)
RETURNING id, event, created, expires, data`

	pgSoonestTimer = `
SELECT id, event, created, expires, data
FROM events.timers
WHERE expires < $1
ORDER BY expires
LIMIT 1`

	pgDeleteTimer   = `DELETE FROM events.timers WHERE id = $1`
	pgCountTimers   = `SELECT COUNT(*) FROM events.timers`
	pgInsertCommand = `INSERT INTO stats.commands (command, chat_id, user_id, used_at) VALUES ($1, $2, $3, $4)`
	pgCountCommands = `SELECT COUNT(*) FROM stats.commands`
)

type postgresStore struct {
	pool  *pgxpool.Pool
	log   logx.Logger
	clock clockwork.Clock
	opTTL time.Duration
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, wrap("connect", err, isPgTransient)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap("ping", err, isPgTransient)
	}
	if _, err := pool.Exec(ctx, postgresMigrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	st := &postgresStore{pool: pool, log: log, clock: cfg.Clock, opTTL: cfg.OpTimeout}
	if st.clock == nil {
		st.clock = clockwork.NewRealClock()
	}
	log.Debug("postgres store opened", logx.Int("max_conns", int(pcfg.MaxConns)))
	return st, nil
}

func (s *postgresStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTTL <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTTL)
}

func (s *postgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func scanPgTimer(row pgx.Row) (Timer, error) {
	var t Timer
	if err := row.Scan(&t.ID, &t.Event, &t.CreatedAt, &t.ExpiresAt, &t.Data); err != nil {
		return Timer{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	return t, nil
}

func (s *postgresStore) CreateTimer(ctx context.Context, event string, created, expires time.Time, data []byte) (Timer, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	t, err := scanPgTimer(s.pool.QueryRow(ctx, pgInsertTimer, uuid.New(), event, created, expires, string(data)))
	if err != nil {
		return Timer{}, wrap("create timer", err, isPgTransient)
	}
	return t, nil
}

func (s *postgresStore) SoonestTimer(ctx context.Context, window time.Duration) (*Timer, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	// Hold one pooled connection for the query; it goes back to the pool on return.
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, wrap("acquire", err, isPgTransient)
	}
	defer conn.Release()

	t, err := scanPgTimer(conn.QueryRow(ctx, pgSoonestTimer, s.clock.Now().Add(window)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("soonest timer", err, isPgTransient)
	}
	return &t, nil
}

func (s *postgresStore) DeleteTimer(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, pgDeleteTimer, id)
	return wrap("delete timer", err, isPgTransient)
}

func (s *postgresStore) PendingTimers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, pgCountTimers).Scan(&n)
	return n, wrap("pending timers", err, isPgTransient)
}

func (s *postgresStore) RecordCommand(ctx context.Context, use CommandUse) error {
	if use.At.IsZero() {
		use.At = s.clock.Now()
	}
	_, err := s.pool.Exec(ctx, pgInsertCommand, use.Name, use.ChatID, use.UserID, use.At)
	return wrap("record command", err, isPgTransient)
}

func (s *postgresStore) CommandsRun(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, pgCountCommands).Scan(&n)
	return n, wrap("commands run", err, isPgTransient)
}

// isPgTransient reports connectivity-class failures: connection exceptions
// (SQLSTATE 08xxx), operator intervention (57P0x), too many connections,
// failed dials and timeouts.
func isPgTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"),
			strings.HasPrefix(pgErr.Code, "57P0"),
			pgErr.Code == "53300":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
