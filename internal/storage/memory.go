package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Memory is an in-process Store. Ties on ExpiresAt resolve in insertion order.
type Memory struct {
	clock clockwork.Clock

	mu       sync.Mutex
	closed   bool
	seq      uint64
	timers   map[uuid.UUID]memTimer
	commands []CommandUse
}

type memTimer struct {
	Timer
	seq uint64
}

func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{clock: clock, timers: map[uuid.UUID]memTimer{}}
}

func (m *Memory) CreateTimer(ctx context.Context, event string, created, expires time.Time, data []byte) (Timer, error) {
	if err := ctx.Err(); err != nil {
		return Timer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Timer{}, ErrClosed
	}
	if len(data) == 0 {
		data = []byte("{}")
	}
	m.seq++
	t := Timer{
		ID:        uuid.New(),
		Event:     event,
		CreatedAt: created,
		ExpiresAt: expires,
		Data:      append([]byte(nil), data...),
	}
	m.timers[t.ID] = memTimer{Timer: t, seq: m.seq}
	return t, nil
}

func (m *Memory) SoonestTimer(ctx context.Context, window time.Duration) (*Timer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	horizon := m.clock.Now().Add(window)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var best *memTimer
	for _, t := range m.timers {
		if !t.ExpiresAt.Before(horizon) {
			continue
		}
		if best == nil || t.ExpiresAt.Before(best.ExpiresAt) ||
			(t.ExpiresAt.Equal(best.ExpiresAt) && t.seq < best.seq) {
			t := t
			best = &t
		}
	}
	if best == nil {
		return nil, nil
	}
	out := best.Timer
	out.Data = append([]byte(nil), best.Data...)
	return &out, nil
}

func (m *Memory) DeleteTimer(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.timers, id)
	return nil
}

func (m *Memory) PendingTimers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers), nil
}

// Timer returns a stored row by id.
func (m *Memory) Timer(id uuid.UUID) (Timer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.timers[id]
	return t.Timer, ok
}

func (m *Memory) RecordCommand(ctx context.Context, use CommandUse) error {
	if use.At.IsZero() {
		use.At = m.clock.Now()
	}
	m.mu.Lock()
	m.commands = append(m.commands, use)
	m.mu.Unlock()
	return nil
}

func (m *Memory) CommandsRun(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.commands)), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
