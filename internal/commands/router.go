package commands

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"walrus/internal/metrics"
	"walrus/internal/runtime/supervisor"
	"walrus/internal/storage"
	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

const (
	defaultTimeout = 30 * time.Second
	jobQueueCap    = 256
)

type Option func(*Router)

func WithStats(s storage.StatsStore) Option { return func(r *Router) { r.store = s } }

func WithMetrics(m metrics.Sink) Option {
	return func(r *Router) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithWorkers(n int) Option { return func(r *Router) { r.workers = n } }

func WithTimeout(d time.Duration) Option { return func(r *Router) { r.timeout = d } }

// Router turns chat updates into command invocations.
type Router struct {
	reg     *Registry
	sender  kit.Sender
	log     logx.Logger
	store   storage.StatsStore
	metrics metrics.Sink
	clock   clockwork.Clock
	workers int
	timeout time.Duration

	mu      sync.RWMutex
	botName string

	track *tracker
	jobs  chan func()
}

func NewRouter(reg *Registry, sender kit.Sender, log logx.Logger, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		reg:     reg,
		sender:  sender,
		log:     log,
		metrics: metrics.NewNoop(),
		clock:   clockwork.NewRealClock(),
		timeout: defaultTimeout,
		track:   newTracker(),
		jobs:    make(chan func(), jobQueueCap),
	}
	for _, o := range opts {
		o(r)
	}
	if r.workers <= 0 {
		r.workers = max(runtime.NumCPU(), 2)
	}
	return r
}

// SetBotName makes the router ignore "/cmd@other" addressed to other bots.
func (r *Router) SetBotName(name string) {
	r.mu.Lock()
	r.botName = strings.TrimPrefix(strings.TrimSpace(name), "@")
	r.mu.Unlock()
}

func (r *Router) Registry() *Registry { return r.reg }

// Run consumes updates until ctx is done or the channel is closed.
// Commands execute on a bounded worker pool.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(r.log), supervisor.WithCancelOnError(false))
	r.log.Info("command router started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second), supervisor.WithStopOnCleanExit(true))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.prepare(ctx, up)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				r.log.Warn("command queue full; dropping")
				if m := up.Message; m != nil && r.sender != nil {
					_, _ = r.sender.SendText(ctx, kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}, "Busy, try again in a moment.", &kit.SendOptions{ReplyTo: m.ID})
				}
			}
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	if job == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

// Dispatch handles one update on the calling goroutine.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) {
	if job := r.prepare(ctx, up); job != nil {
		job()
	}
}

// prepare counts the update and returns the command invocation it asks for,
// or nil.
func (r *Router) prepare(ctx context.Context, up kit.Update) func() {
	r.track.observe(up)
	r.metrics.UpdateReceived(string(up.Kind))

	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	word, target, args, ok := parseCommandLine(msg.Text)
	if !ok {
		return nil
	}
	r.mu.RLock()
	self := r.botName
	r.mu.RUnlock()
	if target != "" && self != "" && !strings.EqualFold(target, self) {
		return nil
	}

	cmd, found := r.reg.Get(word)
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !found {
		// Groups often host several bots; stay quiet there.
		if !msg.IsGroup && r.sender != nil {
			_, _ = r.sender.SendText(ctx, chat, "Unknown command /"+word+". Try /help.", &kit.SendOptions{ReplyTo: msg.ID})
		}
		return nil
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:  up,
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Usage:   cmd.Usage,
		Args:    args,
		ReqID:   rid,
		At:      msg.Date,
		Sender:  r.sender,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	if req.At.IsZero() {
		req.At = r.clock.Now().UTC()
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(
		cmd.Run,
		MWRequestLog(r.log),
		MWReplyError(),
		MWPanicRecover(r.log),
		MWTimeout(timeout),
	)
	return func() {
		_ = final(ctx, req)
		r.record(ctx, req)
	}
}

func (r *Router) record(ctx context.Context, req *Request) {
	r.metrics.CommandRun(req.Command)
	if r.store == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := r.store.RecordCommand(rctx, storage.CommandUse{Name: req.Command, ChatID: req.Chat.ChatID, UserID: req.FromID, At: req.At})
	if err != nil {
		req.Logger.Warn("command usage not recorded", logx.Err(err))
	}
}

// parseCommandLine splits "/word@bot rest of line". ok is false when text is
// not a command.
func parseCommandLine(text string) (word, target, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i+1:]
	}
	word, target, _ = strings.Cut(head, "@")
	word = strings.ToLower(word)
	if word == "" {
		return "", "", "", false
	}
	return word, target, strings.TrimSpace(rest), true
}

func (r *Router) Socket() map[string]int64 { return r.track.socket() }

func (r *Router) Stats(ctx context.Context) (Stats, error) {
	chats, groups, users := r.track.audience()
	st := Stats{
		Chats:         chats,
		GroupChats:    groups,
		UniqueUsers:   users,
		TotalCommands: len(r.reg.Visible()),
	}
	if r.store != nil {
		n, err := r.store.CommandsRun(ctx)
		if err != nil {
			return st, err
		}
		st.TotalCommandsRun = n
	}
	return st, nil
}

// SyncMenu publishes the visible commands to the platform's command menu
// when the sender supports it.
func (r *Router) SyncMenu(ctx context.Context) error {
	up, ok := r.sender.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	return up.UpdateMenuCommands(ctx, menuCommands(r.reg.Visible()))
}

var _ StatsSource = (*Router)(nil)
