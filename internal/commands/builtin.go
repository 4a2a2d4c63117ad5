package commands

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	kit "walrus/internal/transport"
)

// HelpCommand renders the registry as HTML help.
func HelpCommand(reg *Registry) Command {
	return Command{
		Name:     "help",
		Category: "meta",
		Summary:  "Show commands or details for one command",
		Usage:    "[command]",
		Examples: []string{"", "remind"},
		Params:   map[string]string{"command": "The command you want details for."},
		Returns:  "The command list, or one command's help page.",
		Aliases:  []string{"h"},
		Run: func(ctx context.Context, req *Request) error {
			text := helpTop(reg)
			if f := req.Fields(); len(f) > 0 {
				c, ok := reg.Get(f[0])
				if !ok || c.Hidden {
					text = helpUnknown()
				} else {
					text = helpCommand(c)
				}
			}
			_, err := req.Send(ctx, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyTo: req.messageID()})
			return err
		},
	}
}

func helpUnknown() string {
	return "❓ <b>Unknown command</b>\nType <code>/help</code> to see what I can do."
}

func helpTop(reg *Registry) string {
	cats := reg.Categories()
	names := make([]string, 0, len(cats))
	for k := range cats {
		names = append(names, k)
	}
	sort.Strings(names)

	lines := []string{"📚 <b>Commands</b>", "Type <code>/help &lt;command&gt;</code> for details."}
	for _, cat := range names {
		lines = append(lines, "", "<b>"+html.EscapeString(cat)+"</b>")
		for _, c := range cats[cat] {
			line := "• <code>/" + html.EscapeString(c.Name) + "</code>"
			if s := strings.TrimSpace(c.Summary); s != "" {
				line += " - " + html.EscapeString(s)
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func helpCommand(c Command) string {
	lines := []string{fmt.Sprintf("📚 <b>Help</b> <code>/%s</code>", html.EscapeString(c.Name))}
	if s := strings.TrimSpace(c.Summary); s != "" {
		lines = append(lines, html.EscapeString(s))
	}
	if h := strings.TrimSpace(c.Help); h != "" {
		lines = append(lines, "", html.EscapeString(h))
	}
	lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(strings.TrimSpace("/"+c.Name+" "+c.Usage))+"</code>")

	if len(c.Aliases) > 0 {
		al := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			al = append(al, "<code>/"+html.EscapeString(a)+"</code>")
		}
		lines = append(lines, "", "<b>Aliases</b> "+strings.Join(al, ", "))
	}
	if len(c.Params) > 0 {
		keys := make([]string, 0, len(c.Params))
		for k := range c.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines = append(lines, "", "<b>Parameters</b>")
		for _, k := range keys {
			lines = append(lines, "• <code>"+html.EscapeString(k)+"</code> - "+html.EscapeString(c.Params[k]))
		}
	}
	if len(c.Examples) > 0 {
		lines = append(lines, "", "<b>Examples</b>")
		for _, ex := range c.Examples {
			lines = append(lines, "<code>"+html.EscapeString(strings.TrimSpace("/"+c.Name+" "+ex))+"</code>")
		}
	}
	if r := strings.TrimSpace(c.Returns); r != "" {
		lines = append(lines, "", "<b>Returns</b> "+html.EscapeString(r))
	}
	return strings.Join(lines, "\n")
}

// StatsCommand replies with the audience and usage counters.
func StatsCommand(src StatsSource) Command {
	return Command{
		Name:     "stats",
		Category: "meta",
		Summary:  "Show bot usage statistics",
		Returns:  "Chat, user and command counters.",
		Run: func(ctx context.Context, req *Request) error {
			st, err := src.Stats(ctx)
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			_, err = req.Reply(ctx, FormatStats(st, src.Socket()))
			return err
		},
	}
}

func FormatStats(st Stats, socket map[string]int64) string {
	lines := []string{
		fmt.Sprintf("Chats: %d (%d groups)", st.Chats, st.GroupChats),
		fmt.Sprintf("Users: %d", st.UniqueUsers),
		fmt.Sprintf("Commands: %d", st.TotalCommands),
		fmt.Sprintf("Commands run: %d", st.TotalCommandsRun),
	}
	if len(socket) > 0 {
		kinds := make([]string, 0, len(socket))
		for k := range socket {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		lines = append(lines, "", "Updates:")
		for _, k := range kinds {
			lines = append(lines, fmt.Sprintf("  %s: %d", k, socket[k]))
		}
	}
	return strings.Join(lines, "\n")
}
