// Package natsink publishes fired timers to NATS as
// "<prefix>.<kind>.complete".
package natsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"walrus/internal/timers"
	logx "walrus/pkg/logx"
)

type Config struct {
	URL    string
	Prefix string
	Name   string
}

// Publisher is the subset of *nats.Conn the sink uses.
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Connect dials NATS with reconnect handling wired to log.
func Connect(cfg Config, log logx.Logger) (*nats.Conn, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", logx.Err(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("nats error", logx.Err(err))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

type Sink struct {
	pub    Publisher
	prefix string
	log    logx.Logger
}

func New(pub Publisher, prefix string, log logx.Logger) *Sink {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "walrus.timers"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{pub: pub, prefix: prefix, log: log}
}

// Subject is where events of kind are published.
func (s *Sink) Subject(kind string) string {
	return s.prefix + "." + subjectToken(kind) + ".complete"
}

// subjectToken keeps a kind from adding subject levels or wildcards.
func subjectToken(kind string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, kind)
}

func (s *Sink) OnEventDue(_ context.Context, kind string, ev timers.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", kind, err)
	}
	msg := nats.NewMsg(s.Subject(kind))
	msg.Data = data
	msg.Header.Set("Event-Type", timers.CompleteEvent(kind))
	msg.Header.Set("Event-ID", ev.ID.String())
	// Lets a JetStream stream on the subject drop duplicates.
	msg.Header.Set(nats.MsgIdHdr, ev.ID.String())
	if err := s.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	s.log.Debug("published timer", logx.String("subject", msg.Subject), logx.String("id", ev.ID.String()))
	return nil
}

var _ timers.Sink = (*Sink)(nil)
