package gist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "walrus/pkg/logx"
)

func staticSource(v any) Source {
	return func(context.Context) (any, error) { return v, nil }
}

func TestPush(t *testing.T) {
	t.Parallel()
	var got struct {
		method, path, auth, accept string
		body                       gistUpdate
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method, got.path = r.Method, r.URL.Path
		got.auth, got.accept = r.Header.Get("Authorization"), r.Header.Get("Accept")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got.body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC))
	e, err := New(Config{ID: "abc123", Token: "s3cret", BaseURL: srv.URL + "/"}, staticSource(map[string]int{"chats": 2}), logx.Nop(), WithClock(clock))
	require.NoError(t, err)
	require.NoError(t, e.Push(context.Background()))

	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/gists/abc123", got.path)
	assert.Equal(t, "token s3cret", got.auth)
	assert.Equal(t, "application/vnd.github.v3+json", got.accept)
	assert.Equal(t, "Last updated at 2024-03-01 08:30:00 UTC", got.body.Description)
	require.Contains(t, got.body.Files, "data.json")
	assert.JSONEq(t, `{"chats":2}`, got.body.Files["data.json"].Content)
}

func TestPushFailures(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, err := New(Config{ID: "abc", Token: "t", BaseURL: srv.URL}, staticSource(1), logx.Nop())
	require.NoError(t, err)
	err = e.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Bad credentials")

	broken, err := New(Config{ID: "abc", Token: "t", BaseURL: srv.URL}, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	}, logx.Nop())
	require.NoError(t, err)
	assert.ErrorContains(t, broken.Push(context.Background()), "db down")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(Config{Token: "t"}, staticSource(1), logx.Nop())
	assert.Error(t, err)
	_, err = New(Config{ID: "x"}, staticSource(1), logx.Nop())
	assert.Error(t, err)
	_, err = New(Config{ID: "x", Token: "t"}, nil, logx.Nop())
	assert.Error(t, err)
	_, err = New(Config{ID: "x", Token: "t", Schedule: "every now and then"}, staticSource(1), logx.Nop())
	assert.Error(t, err)

	e, err := New(Config{ID: "x", Token: "t"}, staticSource(1), logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultSchedule, e.cfg.Schedule)
	assert.Equal(t, DefaultBaseURL, e.cfg.BaseURL)
}

func TestStartRunsOnSchedule(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	e, err := New(Config{ID: "abc", Token: "t", BaseURL: srv.URL, Schedule: "@every 1s"}, staticSource(1), logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	e.Start(ctx)

	require.Eventually(t, func() bool { return hits.Load() >= 1 }, 5*time.Second, 20*time.Millisecond)
	e.Stop(context.Background())
}
