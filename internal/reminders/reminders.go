// Package reminders implements the /remind command on top of the timer
// dispatcher: the command schedules a "reminder" timer and the completion
// handler posts it back to the chat it came from.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"walrus/internal/commands"
	"walrus/internal/timers"
	kit "walrus/internal/transport"
	logx "walrus/pkg/logx"
)

const Kind = "reminder"

const missingPipeHint = "\nDid you forget to split your reminder with a pipe (|)? If you did, cancel this reminder, and retry."

// Scheduler is the part of timers.Service the command needs.
type Scheduler interface {
	ScheduleEvent(ctx context.Context, kind string, createdAt, expiresAt time.Time, payload map[string]any) (timers.Event, error)
}

// Data is the payload stored with every reminder timer.
type Data struct {
	Author          int64  `json:"author"`
	AuthorName      string `json:"author_name"`
	Chat            int64  `json:"chat"`
	Thread          int    `json:"thread"`
	Message         int    `json:"message"`
	ReminderContent string `json:"reminder_content"`
}

func (d Data) payload() map[string]any {
	return map[string]any{
		"author":           d.Author,
		"author_name":      d.AuthorName,
		"chat":             d.Chat,
		"thread":           d.Thread,
		"message":          d.Message,
		"reminder_content": d.ReminderContent,
	}
}

type Reminders struct {
	sched  Scheduler
	sender kit.Sender
	clock  clockwork.Clock
	log    logx.Logger
}

func New(sched Scheduler, sender kit.Sender, clock clockwork.Clock, log logx.Logger) *Reminders {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reminders{sched: sched, sender: sender, clock: clock, log: log}
}

// Command is /remind.
func (r *Reminders) Command() commands.Command {
	return commands.Command{
		Name:     "remind",
		Category: "reminders",
		Summary:  "Remind yourself of things",
		Help: "Times are relative to when you send the message.\n" +
			"Make sure to split your input with a pipe (|).",
		Usage: "<time> | <thing>",
		Examples: []string{
			"1w | take out the trash",
			"4 months and 2 days | william's birthday",
			"1 week",
			"1 week 2days | fix this code",
		},
		Params: map[string]string{
			"time":  "When you want me to remind you.",
			"thing": "The thing you want me to remind you to do.",
		},
		Returns: "Confirmation that I have registered your reminder.",
		Aliases: []string{"remindme", "reminder"},
		Run:     r.remind,
	}
}

func (r *Reminders) remind(ctx context.Context, req *commands.Request) error {
	if strings.TrimSpace(req.Args) == "" {
		return commands.BadInput("Tell me when, for example: /remind 2h | stretch")
	}
	created := req.At
	if created.IsZero() {
		created = r.clock.Now()
	}
	thing, expires, err := Parse(req.Args, created)
	if err != nil {
		if errors.Is(err, ErrNoTime) || errors.Is(err, ErrBadTime) || errors.Is(err, ErrPastTime) {
			return commands.BadInput("%s", upperFirst(err.Error()))
		}
		return err
	}

	d := Data{Chat: req.Chat.ChatID, Thread: req.Chat.ThreadID, ReminderContent: thing}
	if m := req.Message; m != nil {
		d.Author = m.FromID
		d.AuthorName = m.Mention()
		d.Message = m.ID
	}
	if _, err := r.sched.ScheduleEvent(ctx, Kind, created, expires, d.payload()); err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}

	text := fmt.Sprintf("In %s: %s", relative(created, expires, ""), thing)
	if thing == NoThing {
		text += missingPipeHint
	}
	_, err = req.Reply(ctx, text)
	return err
}

// Deliver is the completion handler for reminder timers.
func (r *Reminders) Deliver(ctx context.Context, _ string, ev timers.Event) error {
	var d Data
	if err := ev.Bind(&d); err != nil {
		return fmt.Errorf("reminder %s: bad payload: %w", ev.ID, err)
	}
	if d.Chat == 0 {
		return fmt.Errorf("reminder %s: no chat", ev.ID)
	}
	if r.sender == nil {
		return fmt.Errorf("reminder %s: no sender", ev.ID)
	}
	name := d.AuthorName
	if name == "" {
		name = fmt.Sprintf("user %d", d.Author)
	}
	text := fmt.Sprintf("%s, %s: %s", name, relative(ev.CreatedAt, r.clock.Now(), "ago"), d.ReminderContent)
	to := kit.ChatTarget{ChatID: d.Chat, ThreadID: d.Thread}
	if _, err := r.sender.SendText(ctx, to, text, &kit.SendOptions{ReplyTo: d.Message, DisablePreview: true}); err != nil {
		return fmt.Errorf("deliver reminder %s: %w", ev.ID, err)
	}
	r.log.Debug("reminder delivered", logx.String("id", ev.ID.String()), logx.Int64("chat_id", d.Chat))
	return nil
}

// relative renders the distance between a and b, e.g. "2 days" or
// "2 days ago" when label is "ago".
func relative(a, b time.Time, label string) string {
	return strings.TrimSpace(humanize.RelTime(a, b, label, ""))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
