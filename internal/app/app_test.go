package app

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walrus/internal/api"
	"walrus/internal/config"
	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

type recSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.sent)}, nil
}

func (r *recSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const testConfig = `{
  "logging": {"level": "error", "console": true},
  "storage": {"driver": "memory"},
  "api": {"enabled": true, "addr": "127.0.0.1:0"}
}`

func TestRemindRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snd := &recSender{}
	a, err := New(ctx, writeConfig(t, testConfig), WithSender(snd))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	a.Updates() <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 3, ChatID: 42, FromID: 7, FromUsername: "wal", Text: "/remind 1s | stretch",
	}}

	require.Eventually(t, func() bool { return len(snd.texts()) >= 2 }, 10*time.Second, 20*time.Millisecond)
	texts := snd.texts()
	assert.True(t, strings.HasPrefix(texts[0], "In "), texts[0])
	assert.True(t, strings.HasSuffix(texts[0], ": stretch"), texts[0])
	assert.True(t, strings.HasPrefix(texts[1], "@wal, "), texts[1])
	assert.True(t, strings.HasSuffix(texts[1], ": stretch"), texts[1])

	addr, err := a.APIAddr(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		res, err := http.Get("http://" + addr + "/api/all")
		if err != nil {
			return false
		}
		defer res.Body.Close()
		var rep api.Report
		if json.NewDecoder(res.Body).Decode(&rep) != nil {
			return false
		}
		return rep.Stats.TotalCommandsRun == 1 && rep.Socket["message"] == 1
	}, 5*time.Second, 50*time.Millisecond)

	res, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestScheduleDirectly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snd := &recSender{}
	a, err := New(ctx, writeConfig(t, `{"logging":{"level":"error","console":true},"storage":{"driver":"none"}}`), WithSender(snd))
	require.NoError(t, err)
	require.NoError(t, a.Start(ctx))
	defer func() { _ = a.Stop(context.Background(), StopUnknown) }()

	now := time.Now()
	_, err = a.Timers().ScheduleEvent(ctx, "reminder", now.Add(-time.Minute), now, map[string]any{
		"author": 1, "author_name": "@sam", "chat": 9, "thread": 0, "message": 0, "reminder_content": "ping",
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got := snd.texts()
		return len(got) == 1 && strings.HasPrefix(got[0], "@sam, ") && strings.HasSuffix(got[0], ": ping")
	}, 5*time.Second, 20*time.Millisecond)

	_, err = a.APIAddr(ctx)
	assert.Error(t, err, "api is off by default")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), writeConfig(t, `{"storage":{"driver":"floppy"}}`), WithSender(&recSender{}))
	assert.ErrorContains(t, err, "floppy")

	_, err = New(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestStopBeforeStart(t *testing.T) {
	a := &App{log: logx.Nop()}
	assert.NoError(t, a.Stop(context.Background(), StopUnknown))
	select {
	case <-a.Done():
	default:
		t.Fatal("Done should be closed before Start")
	}
}

func TestTimersConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Timers.Window = "1h"
	cfg.Timers.RestartMaxBackoff = "5s"
	tc, err := TimersConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, tc.Window)
	assert.Equal(t, 5*time.Second, tc.RestartMaxBackoff)
	assert.Zero(t, tc.Rescan)

	cfg.Timers.Rescan = "soon"
	_, err = TimersConfig(cfg)
	assert.ErrorContains(t, err, "timers.rescan")

	sc, err := StorageConfig(config.Defaults(), nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)
}

func TestLogSenderNumbersMessages(t *testing.T) {
	t.Parallel()
	s := &logSender{log: logx.Nop()}
	a, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: 5}, "one", nil)
	require.NoError(t, err)
	b, err := s.SendText(context.Background(), kit.ChatTarget{ChatID: 5}, "two", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, a.MessageID)
	assert.Equal(t, 2, b.MessageID)
}
