package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "walrus/pkg/logx"
)

const testWindow = 10 * 24 * time.Hour

var testEpoch = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

// storeCases opens every locally available driver against the same fake clock.
func storeCases(t *testing.T) map[string]func(clock clockwork.Clock) Store {
	t.Helper()
	return map[string]func(clock clockwork.Clock) Store{
		"memory": func(clock clockwork.Clock) Store { return NewMemory(clock) },
		"sqlite": func(clock clockwork.Clock) Store {
			st, err := Open(context.Background(), Config{
				Driver: "sqlite",
				Path:   filepath.Join(t.TempDir(), "walrus.db"),
				Clock:  clock,
			}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
}

func TestCreateAndSoonest(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(testEpoch)
			st := open(clock)
			defer st.Close()

			got, err := st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			assert.Nil(t, got)

			later, err := st.CreateTimer(ctx, "reminder", testEpoch, testEpoch.Add(time.Hour), []byte(`{"n":2}`))
			require.NoError(t, err)
			sooner, err := st.CreateTimer(ctx, "reminder", testEpoch, testEpoch.Add(time.Minute), []byte(`{"n":1}`))
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, sooner.ID)
			assert.NotEqual(t, later.ID, sooner.ID)

			got, err = st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, sooner.ID, got.ID)
			assert.Equal(t, "reminder", got.Event)
			assert.True(t, got.ExpiresAt.Equal(testEpoch.Add(time.Minute)))
			assert.JSONEq(t, `{"n":1}`, string(got.Data))

			n, err := st.PendingTimers(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestSoonestRespectsWindowBoundary(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := clockwork.NewFakeClockAt(testEpoch)
			st := open(clock)
			defer st.Close()

			outside, err := st.CreateTimer(ctx, "x", testEpoch, testEpoch.Add(testWindow+time.Second), nil)
			require.NoError(t, err)

			got, err := st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			assert.Nil(t, got, "row past the window must not be returned")

			inside, err := st.CreateTimer(ctx, "x", testEpoch, testEpoch.Add(testWindow-time.Second), nil)
			require.NoError(t, err)
			got, err = st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, inside.ID, got.ID)

			// Once the clock moves, the far row enters the window.
			require.NoError(t, st.DeleteTimer(ctx, inside.ID))
			clock.Advance(2 * time.Second)
			got, err = st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, outside.ID, got.ID)
		})
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(clockwork.NewFakeClockAt(testEpoch))
			defer st.Close()

			tm, err := st.CreateTimer(ctx, "x", testEpoch, testEpoch, nil)
			require.NoError(t, err)
			require.NoError(t, st.DeleteTimer(ctx, tm.ID))
			require.NoError(t, st.DeleteTimer(ctx, tm.ID))
			require.NoError(t, st.DeleteTimer(ctx, uuid.New()))

			got, err := st.SoonestTimer(ctx, testWindow)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestCommandStats(t *testing.T) {
	for name, open := range storeCases(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := open(clockwork.NewFakeClockAt(testEpoch))
			defer st.Close()

			require.NoError(t, st.RecordCommand(ctx, CommandUse{Name: "remind", ChatID: 1, UserID: 2}))
			require.NoError(t, st.RecordCommand(ctx, CommandUse{Name: "help", ChatID: 1, UserID: 3}))
			n, err := st.CommandsRun(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 2, n)
		})
	}
}

func TestSQLiteRejectsExpiryBeforeCreation(t *testing.T) {
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "w.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	_, err = st.CreateTimer(context.Background(), "x", testEpoch, testEpoch.Add(-time.Second), nil)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	st, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop())
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = Open(context.Background(), Config{Driver: "cassandra"}, logx.Nop())
	require.Error(t, err)
}
