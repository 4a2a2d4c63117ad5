package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestManagerLoadValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walrus.json")
	writeFile(t, path, `{"storage":{"driver":"bogus"}}`)

	m := NewManager(path)
	_, err := m.Load()
	require.Error(t, err)
	assert.Nil(t, m.Get())

	writeFile(t, path, `{"logging":{"level":"warn"}}`)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())
}

func TestManagerWatchPublishesChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walrus.yaml")
	writeFile(t, path, "logging:\n  level: info\n")

	m := NewManager(path)
	m.debounce = 10 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Rewrite until the watcher is up and notices.
	deadline := time.After(5 * time.Second)
	for {
		writeFile(t, path, "logging:\n  level: debug\n")
		select {
		case cfg := <-ch:
			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.Equal(t, "debug", m.Get().Logging.Level)
			return
		case <-time.After(100 * time.Millisecond):
		case <-deadline:
			t.Fatal("config change was not published")
		}
	}
}

func TestManagerRejectsInvalidReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walrus.json")
	writeFile(t, path, `{}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	ch := m.Subscribe(1)
	writeFile(t, path, `{"logging":{"level":"error"}}`)
	m.reload(context.Background())

	select {
	case <-ch:
		t.Fatal("rejected config must not be published")
	default:
	}
	assert.NotEqual(t, "error", m.Get().Logging.Level)
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	assert.Same(t, b, <-ch)

	m.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	oldCfg := Defaults()
	newCfg := Defaults()
	newCfg.Logging.Level = "debug"
	newCfg.Gist.Token = "secret"

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	assert.Equal(t, []string{"gist", "logging"}, changed)
	assert.NotEmpty(t, attrs)
	assert.True(t, RestartRequired(changed))
	assert.False(t, RestartRequired([]string{"logging"}))
}
