package commands

import (
	"context"
	"sync"

	kit "walrus/internal/transport"
)

// Stats is the audience summary served by /stats and the JSON API.
type Stats struct {
	Chats            int   `json:"chats"`
	GroupChats       int   `json:"group_chats"`
	UniqueUsers      int   `json:"unique_users"`
	TotalCommands    int   `json:"total_commands"`
	TotalCommandsRun int64 `json:"total_commands_run"`
}

// StatsSource is read by the stats command, the API and the gist exporter.
type StatsSource interface {
	Stats(ctx context.Context) (Stats, error)
	Socket() map[string]int64
}

// tracker counts update kinds and the chats and users seen since start.
type tracker struct {
	mu    sync.Mutex
	kinds map[string]int64
	chats map[int64]bool // chat id -> is group
	users map[int64]struct{}
}

func newTracker() *tracker {
	return &tracker{kinds: map[string]int64{}, chats: map[int64]bool{}, users: map[int64]struct{}{}}
}

func (t *tracker) observe(up kit.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[string(up.Kind)]++
	if m := up.Message; m != nil {
		if m.ChatID != 0 {
			t.chats[m.ChatID] = m.IsGroup
		}
		if m.FromID != 0 {
			t.users[m.FromID] = struct{}{}
		}
	}
}

func (t *tracker) socket() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.kinds))
	for k, v := range t.kinds {
		out[k] = v
	}
	return out
}

func (t *tracker) audience() (chats, groups, users int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.chats {
		if g {
			groups++
		}
	}
	return len(t.chats), groups, len(t.users)
}
