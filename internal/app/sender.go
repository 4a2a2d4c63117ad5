package app

import (
	"context"
	"sync/atomic"

	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

// logSender replaces the chat transport when no bot token is configured.
// Timers still fire; their messages only reach the log.
type logSender struct {
	log  logx.Logger
	next atomic.Int64
}

func (s *logSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	id := int(s.next.Add(1))
	s.log.Info("outgoing message (no transport)",
		logx.Int64("chat", to.ChatID),
		logx.Int("thread", to.ThreadID),
		logx.String("text", text),
	)
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: id}, nil
}
