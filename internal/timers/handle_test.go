package timers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHandleSetClear(t *testing.T) {
	t.Parallel()
	var h Handle
	_, ok := h.Current()
	assert.False(t, ok)

	ev := Event{ID: uuid.New(), Kind: "reminder", ExpiresAt: epoch}
	h.Set(ev)
	got, ok := h.Current()
	assert.True(t, ok)
	assert.Equal(t, ev.ID, got.ID)

	h.Clear()
	_, ok = h.Current()
	assert.False(t, ok)
}

func TestHandleShouldPreempt(t *testing.T) {
	t.Parallel()
	const window = time.Hour
	now := epoch
	held := Event{ID: uuid.New(), ExpiresAt: now.Add(10 * time.Minute)}

	tests := []struct {
		name    string
		held    *Event
		expires time.Time
		want    bool
	}{
		{name: "idle within window", expires: now.Add(time.Minute), want: true},
		{name: "idle at window edge", expires: now.Add(window), want: true},
		{name: "idle past window", expires: now.Add(window + time.Second), want: false},
		{name: "idle already due", expires: now.Add(-time.Second), want: true},
		{name: "earlier than held", held: &held, expires: held.ExpiresAt.Add(-time.Second), want: true},
		{name: "same as held", held: &held, expires: held.ExpiresAt, want: false},
		{name: "later than held", held: &held, expires: held.ExpiresAt.Add(time.Second), want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var h Handle
			if tt.held != nil {
				h.Set(*tt.held)
			}
			assert.Equal(t, tt.want, h.ShouldPreempt(tt.expires, now, window))
		})
	}
}
