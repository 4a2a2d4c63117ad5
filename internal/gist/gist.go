// Package gist periodically publishes the bot's stats report to a GitHub
// gist as data.json.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	logx "walrus/pkg/logx"
)

const (
	DefaultBaseURL  = "https://api.github.com"
	DefaultSchedule = "@every 30m"
	fileName        = "data.json"
)

type Config struct {
	ID       string
	Token    string
	Schedule string // cron spec or "@every <duration>"
	BaseURL  string
	Timeout  time.Duration
}

// Source produces the document written to data.json.
type Source func(ctx context.Context) (any, error)

type Option func(*Exporter)

func WithClock(c clockwork.Clock) Option {
	return func(e *Exporter) {
		if c != nil {
			e.clock = c
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(e *Exporter) {
		if c != nil {
			e.client = c
		}
	}
}

type Exporter struct {
	cfg    Config
	src    Source
	log    logx.Logger
	clock  clockwork.Clock
	client *http.Client
	sched  cron.Schedule

	mu sync.Mutex
	c  *cron.Cron
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(cfg Config, src Source, log logx.Logger, opts ...Option) (*Exporter, error) {
	if strings.TrimSpace(cfg.ID) == "" || strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("gist: id and token are required")
	}
	if src == nil {
		return nil, errors.New("gist: nil source")
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	sched, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("gist: schedule %q: %w", cfg.Schedule, err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Exporter{cfg: cfg, src: src, log: log, clock: clockwork.NewRealClock(), client: &http.Client{}, sched: sched}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Start schedules Push until ctx is done or Stop is called. Overlapping runs
// are skipped.
func (e *Exporter) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.c != nil {
		return
	}
	cl := cronLogger{log: e.log}
	e.c = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	e.c.Schedule(e.sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if err := e.Push(ctx); err != nil {
			e.log.Warn("gist update failed", logx.Err(err))
		}
	}))
	e.c.Start()
	e.log.Info("gist exporter started", logx.String("schedule", e.cfg.Schedule))

	go func() {
		<-ctx.Done()
		e.Stop(context.Background())
	}()
}

func (e *Exporter) Stop(ctx context.Context) {
	e.mu.Lock()
	c := e.c
	e.c = nil
	e.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	e.log.Info("gist exporter stopped")
}

type gistFile struct {
	Content string `json:"content"`
}

type gistUpdate struct {
	Description string              `json:"description"`
	Files       map[string]gistFile `json:"files"`
}

// Push uploads one report now.
func (e *Exporter) Push(ctx context.Context) error {
	doc, err := e.src(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	content, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	body, err := json.Marshal(gistUpdate{
		Description: "Last updated at " + e.clock.Now().UTC().Format("2006-01-02 15:04:05 MST"),
		Files:       map[string]gistFile{fileName: {Content: string(content)}},
	})
	if err != nil {
		return fmt.Errorf("encode gist: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPatch, e.cfg.BaseURL+"/gists/"+e.cfg.ID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "token "+e.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "walrus")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gist %s: status %d: %s", e.cfg.ID, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	e.log.Info("posted stats to gist", logx.String("gist", e.cfg.ID))
	return nil
}

// cronLogger routes cron's own logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
