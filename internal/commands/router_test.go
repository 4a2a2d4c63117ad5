package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walrus/internal/storage"
	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

type sentMsg struct {
	to   kit.ChatTarget
	text string
	opt  kit.SendOptions
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMsg
	menu []kit.BotCommand
}

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := sentMsg{to: to, text: text}
	if opt != nil {
		m.opt = *opt
	}
	f.sent = append(f.sent, m)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.sent...)
}

func msgUpdate(chat, from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ID: 10, ChatID: chat, FromID: from, FromUsername: "wal", Text: text}}
}

func newTestRouter(t *testing.T, cmds ...Command) (*Router, *fakeSender, *storage.Memory) {
	t.Helper()
	reg := NewRegistry()
	reg.MustRegister(cmds...)
	snd := &fakeSender{}
	store := storage.NewMemory(clockwork.NewFakeClock())
	r := NewRouter(reg, snd, logx.Nop(), WithStats(store), WithWorkers(2))
	return r, snd, store
}

func TestParseCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, word, target, args string
		ok                     bool
	}{
		{in: "/remind 1h | tea", word: "remind", args: "1h | tea", ok: true},
		{in: "/Remind@WalrusBot  2d|x ", word: "remind", target: "WalrusBot", args: "2d|x", ok: true},
		{in: "/help\nremind", word: "help", args: "remind", ok: true},
		{in: "/stats", word: "stats", ok: true},
		{in: "hello", ok: false},
		{in: "/", ok: false},
		{in: "/@bot", ok: false},
	}
	for _, tc := range cases {
		word, target, args, ok := parseCommandLine(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if !tc.ok {
			continue
		}
		assert.Equal(t, tc.word, word, tc.in)
		assert.Equal(t, tc.target, target, tc.in)
		assert.Equal(t, tc.args, args, tc.in)
	}
}

func TestDispatchRunsCommandAndRecordsUse(t *testing.T) {
	t.Parallel()
	var got *Request
	r, _, store := newTestRouter(t, Command{
		Name:    "echo",
		Aliases: []string{"e"},
		Run: func(ctx context.Context, req *Request) error {
			got = req
			_, err := req.Reply(ctx, req.Args)
			return err
		},
	})

	r.Dispatch(context.Background(), msgUpdate(1, 2, "/E hello there"))
	require.NotNil(t, got)
	assert.Equal(t, "echo", got.Command)
	assert.Equal(t, "hello there", got.Args)
	assert.Equal(t, []string{"hello", "there"}, got.Fields())
	assert.False(t, got.At.IsZero())

	n, err := store.CommandsRun(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestDispatchIgnoresOtherBots(t *testing.T) {
	t.Parallel()
	calls := 0
	r, _, _ := newTestRouter(t, Command{Name: "ping", Run: func(context.Context, *Request) error { calls++; return nil }})
	r.SetBotName("@walrus_bot")

	r.Dispatch(context.Background(), msgUpdate(1, 2, "/ping@other_bot"))
	assert.Zero(t, calls)
	r.Dispatch(context.Background(), msgUpdate(1, 2, "/ping@Walrus_Bot"))
	assert.Equal(t, 1, calls)
}

func TestUnknownCommandRepliesOnlyInPrivate(t *testing.T) {
	t.Parallel()
	r, snd, _ := newTestRouter(t)

	group := msgUpdate(-100, 2, "/nope")
	group.Message.IsGroup = true
	r.Dispatch(context.Background(), group)
	assert.Empty(t, snd.messages())

	r.Dispatch(context.Background(), msgUpdate(5, 2, "/nope"))
	msgs := snd.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].text, "Unknown command /nope")
}

func TestErrorsAreRepliedAndPanicsRecovered(t *testing.T) {
	t.Parallel()
	r, snd, store := newTestRouter(t,
		Command{Name: "bad", Usage: "<n>", Run: func(context.Context, *Request) error { return BadInput("n must be a number") }},
		Command{Name: "boom", Run: func(context.Context, *Request) error { panic("kaboom") }},
		Command{Name: "fail", Run: func(context.Context, *Request) error { return errors.New("db exploded") }},
	)
	ctx := context.Background()
	r.Dispatch(ctx, msgUpdate(1, 2, "/bad x"))
	r.Dispatch(ctx, msgUpdate(1, 2, "/boom"))
	r.Dispatch(ctx, msgUpdate(1, 2, "/fail"))

	msgs := snd.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "n must be a number\nUsage: /bad <n>", msgs[0].text)
	assert.Equal(t, 10, msgs[0].opt.ReplyTo)
	assert.Equal(t, "Something went wrong running /boom.", msgs[1].text)
	assert.Equal(t, "Something went wrong running /fail.", msgs[2].text)
	assert.NotContains(t, msgs[2].text, "exploded")

	n, err := store.CommandsRun(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

func TestCommandTimeout(t *testing.T) {
	t.Parallel()
	var deadline bool
	r, _, _ := newTestRouter(t, Command{Name: "slow", Timeout: time.Minute, Run: func(ctx context.Context, _ *Request) error {
		_, deadline = ctx.Deadline()
		return nil
	}})
	r.Dispatch(context.Background(), msgUpdate(1, 2, "/slow"))
	assert.True(t, deadline)
}

func TestStatsAndSocket(t *testing.T) {
	t.Parallel()
	r, _, _ := newTestRouter(t,
		Command{Name: "ping", Run: func(context.Context, *Request) error { return nil }},
		Command{Name: "secret", Hidden: true, Run: func(context.Context, *Request) error { return nil }},
	)
	ctx := context.Background()
	g := msgUpdate(-100, 7, "/ping")
	g.Message.IsGroup = true
	r.Dispatch(ctx, g)
	r.Dispatch(ctx, msgUpdate(3, 7, "hi"))
	r.Dispatch(ctx, msgUpdate(4, 8, "/ping"))
	r.Dispatch(ctx, kit.Update{Kind: kit.UpdateEdited, Message: &kit.Message{ChatID: 4, FromID: 8, Text: "/ping"}})

	st, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Chats: 3, GroupChats: 1, UniqueUsers: 2, TotalCommands: 1, TotalCommandsRun: 2}, st)
	assert.Equal(t, map[string]int64{"message": 3, "edited_message": 1}, r.Socket())
}

func TestRunUsesWorkers(t *testing.T) {
	t.Parallel()
	done := make(chan string, 4)
	r, _, _ := newTestRouter(t, Command{Name: "ping", Run: func(_ context.Context, req *Request) error {
		done <- req.Args
		return nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update)
	exited := make(chan error, 1)
	go func() { exited <- r.Run(ctx, updates) }()

	updates <- msgUpdate(1, 2, "/ping a")
	updates <- msgUpdate(1, 2, "/ping b")
	got := map[string]bool{}
	for range 2 {
		select {
		case s := <-done:
			got[s] = true
		case <-time.After(2 * time.Second):
			t.Fatal("command did not run")
		}
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true}, got)

	cancel()
	select {
	case err := <-exited:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("router did not stop")
	}
}

func TestSyncMenu(t *testing.T) {
	t.Parallel()
	r, snd, _ := newTestRouter(t,
		Command{Name: "remind-me", Summary: "Set a reminder", Run: func(context.Context, *Request) error { return nil }},
		Command{Name: "hidden", Hidden: true, Run: func(context.Context, *Request) error { return nil }},
	)
	require.NoError(t, r.SyncMenu(context.Background()))
	assert.Equal(t, []kit.BotCommand{{Command: "remind_me", Description: "Set a reminder"}}, snd.menu)
}
