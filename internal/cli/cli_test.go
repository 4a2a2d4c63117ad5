package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walrus/internal/storage"
	logx "walrus/pkg/logx"
)

func sqliteConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "data", "walrus.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	body := "logging:\n  level: error\n  console: true\nstorage:\n  driver: sqlite\n  path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "walrus dev ("), out)
}

func TestMigrateThenSchedule(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)

	out, err := run(t, "migrate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "storage sqlite ready (0 pending timers)")

	out, err = run(t, "schedule", "--config", cfgPath, "--in", "2h", "--payload", `{"chat":5,"reminder_content":"deploy"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "scheduled reminder ")

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: dbPath}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	n, err := st.PendingTimers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	next, err := st.SoonestTimer(context.Background(), 3*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, "reminder", next.Event)
	assert.JSONEq(t, `{"chat":5,"reminder_content":"deploy"}`, string(next.Data))
}

func TestScheduleRejectsBadInput(t *testing.T) {
	cfgPath, _ := sqliteConfig(t)

	_, err := run(t, "schedule", "--config", cfgPath)
	assert.ErrorContains(t, err, "--in or --at")

	_, err = run(t, "schedule", "--config", cfgPath, "--in", "1h", "--payload", "[1,2]")
	assert.ErrorContains(t, err, "JSON object")

	_, err = run(t, "schedule", "--config", cfgPath, "--in", "1h", "--at", "2030-01-01T00:00:00Z")
	assert.Error(t, err)
}

func TestExpiry(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	got, err := expiry(&ScheduleOptions{In: 90 * time.Minute}, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(90*time.Minute), got)

	got, err = expiry(&ScheduleOptions{At: "2024-06-02T00:00:00Z"}, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC), got)

	got, err = expiry(&ScheduleOptions{At: "2020-01-01T00:00:00Z"}, now)
	require.NoError(t, err)
	assert.Equal(t, now, got, "past times fire right away")

	_, err = expiry(&ScheduleOptions{In: -time.Second}, now)
	assert.Error(t, err)
	_, err = expiry(&ScheduleOptions{At: "tomorrow"}, now)
	assert.Error(t, err)
}

func TestScheduleUsesClock(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	cmd := NewScheduleCommand(&RootOptions{ConfigPath: cfgPath})
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, schedule(cmd, &ScheduleOptions{
		RootOptions: &RootOptions{ConfigPath: cfgPath},
		Kind:        "backup",
		In:          time.Hour,
		Payload:     "{}",
		Clock:       clockwork.NewFakeClockAt(at),
	}))
	assert.Contains(t, out.String(), "scheduled backup ")
	assert.Contains(t, out.String(), "at 2024-06-01T13:00:00Z")

	st, err := storage.Open(context.Background(), storage.Config{Driver: "sqlite", Path: dbPath}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	n, err := st.PendingTimers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
