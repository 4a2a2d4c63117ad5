package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "walrus/pkg/logx"
)

func nopRun(context.Context, *Request) error { return nil }

func TestRegistryLookup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Command{Name: "Remind", Aliases: []string{"r", "REMINDME", "remind"}, Run: nopRun}))

	for _, name := range []string{"remind", "/REMIND", "r", "remindme", " R "} {
		c, ok := reg.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, "remind", c.Name)
	}
	c, _ := reg.Get("remind")
	assert.Equal(t, []string{"r", "remindme"}, c.Aliases)
	assert.Equal(t, "general", c.Category)

	_, ok := reg.Get("nope")
	assert.False(t, ok)
}

func TestRegistryRejects(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	require.NoError(t, reg.Register(Command{Name: "stats", Aliases: []string{"s"}, Run: nopRun}))

	assert.ErrorIs(t, reg.Register(Command{Name: "stats", Run: nopRun}), ErrDuplicate)
	assert.ErrorIs(t, reg.Register(Command{Name: "s", Run: nopRun}), ErrDuplicate)
	assert.ErrorIs(t, reg.Register(Command{Name: "sum", Aliases: []string{"stats"}, Run: nopRun}), ErrDuplicate)
	assert.Error(t, reg.Register(Command{Name: "two words", Run: nopRun}))
	assert.Error(t, reg.Register(Command{Name: "", Run: nopRun}))
	assert.Error(t, reg.Register(Command{Name: "norun"}))

	_, ok := reg.Get("sum")
	assert.False(t, ok, "failed registration must not leave partial state")
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryCategories(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.MustRegister(
		Command{Name: "remind", Category: "reminders", Run: nopRun},
		Command{Name: "help", Category: "meta", Run: nopRun},
		Command{Name: "stats", Category: "meta", Run: nopRun},
		Command{Name: "debug", Category: "meta", Hidden: true, Run: nopRun},
	)
	cats := reg.Categories()
	require.Len(t, cats, 2)
	assert.Len(t, cats["meta"], 2)
	assert.Equal(t, "help", cats["meta"][0].Name)
	assert.Len(t, reg.All(), 4)
}

func TestInfoCopiesMetadata(t *testing.T) {
	t.Parallel()
	c := Command{
		Name:     "remind",
		Summary:  "Remind yourself",
		Usage:    "<time> | <thing>",
		Examples: []string{"1w | trash"},
		Params:   map[string]string{"time": "when"},
		Returns:  "confirmation",
		Run:      nopRun,
	}
	info := c.Info()
	assert.Equal(t, "<time> | <thing>", info.Signature)
	assert.Equal(t, "Remind yourself", info.Description)
	assert.Equal(t, []string{}, info.Aliases)

	info.Params["time"] = "changed"
	assert.Equal(t, "when", c.Params["time"])
}

func TestHelpText(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.MustRegister(
		HelpCommand(reg),
		Command{Name: "remind", Category: "reminders", Summary: "Remind <you>", Usage: "<time> | <thing>",
			Examples: []string{"1w | trash"}, Params: map[string]string{"time": "When."}, Run: nopRun},
	)
	top := helpTop(reg)
	assert.Contains(t, top, "<code>/remind</code> - Remind &lt;you&gt;")
	assert.Contains(t, top, "<b>meta</b>")

	c, _ := reg.Get("remind")
	detail := helpCommand(c)
	assert.Contains(t, detail, "<code>/remind &lt;time&gt; | &lt;thing&gt;</code>")
	assert.Contains(t, detail, "<code>/remind 1w | trash</code>")
	assert.Contains(t, detail, "<code>time</code> - When.")
}

func TestHelpCommandReply(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	reg.MustRegister(HelpCommand(reg), Command{Name: "secret", Hidden: true, Run: nopRun})
	snd := &fakeSender{}
	r := NewRouter(reg, snd, logx.Nop())

	r.Dispatch(context.Background(), msgUpdate(1, 2, "/help secret"))
	msgs := snd.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "HTML", msgs[0].opt.ParseMode)
	assert.Contains(t, msgs[0].text, "Unknown command")
}

func TestFormatStats(t *testing.T) {
	t.Parallel()
	out := FormatStats(Stats{Chats: 2, GroupChats: 1, UniqueUsers: 3, TotalCommands: 4, TotalCommandsRun: 9},
		map[string]int64{"message": 5, "chat_member": 1})
	assert.Equal(t, "Chats: 2 (1 groups)\nUsers: 3\nCommands: 4\nCommands run: 9\n\nUpdates:\n  chat_member: 1\n  message: 5", out)
}
