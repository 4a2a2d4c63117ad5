package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

// Command is one chat command plus the metadata the help text and the JSON
// API expose.
type Command struct {
	Name     string
	Category string
	Summary  string
	Help     string
	Usage    string
	Examples []string
	Params   map[string]string
	Returns  string
	Aliases  []string
	Hidden   bool

	Timeout time.Duration // 0 means the router default
	Run     HandlerFunc
}

// Info is the stable, serializable view of a Command.
type Info struct {
	Name        string            `json:"name"`
	Category    string            `json:"category,omitempty"`
	Aliases     []string          `json:"aliases"`
	Description string            `json:"description"`
	Help        string            `json:"help,omitempty"`
	Signature   string            `json:"signature"`
	Examples    []string          `json:"examples"`
	Params      map[string]string `json:"params,omitempty"`
	Returns     string            `json:"returns,omitempty"`
}

func (c Command) Info() Info {
	info := Info{
		Name:        c.Name,
		Category:    c.Category,
		Aliases:     append([]string{}, c.Aliases...),
		Description: c.Summary,
		Help:        c.Help,
		Signature:   c.Usage,
		Examples:    append([]string{}, c.Examples...),
		Returns:     c.Returns,
	}
	if len(c.Params) > 0 {
		info.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			info.Params[k] = v
		}
	}
	return info
}

// Request is what a handler gets for one invocation.
type Request struct {
	Update  kit.Update
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string // canonical name, not the alias that was typed
	Usage   string
	Args    string // raw text after the command word
	ReqID   string
	At      time.Time

	Sender kit.Sender
	Logger logx.Logger
}

// Fields splits Args on whitespace.
func (r *Request) Fields() []string { return strings.Fields(r.Args) }

// Reply sends text to the request's chat as a reply to the command message.
func (r *Request) Reply(ctx context.Context, text string) (kit.MessageRef, error) {
	return r.Send(ctx, text, &kit.SendOptions{ReplyTo: r.messageID(), DisablePreview: true})
}

func (r *Request) Send(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if r.Sender == nil {
		return kit.MessageRef{}, fmt.Errorf("no sender")
	}
	return r.Sender.SendText(ctx, r.Chat, text, opt)
}

func (r *Request) messageID() int {
	if r.Message == nil {
		return 0
	}
	return r.Message.ID
}

// InputError is a user mistake. Its message is safe to show in chat.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func BadInput(format string, args ...any) error {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}
