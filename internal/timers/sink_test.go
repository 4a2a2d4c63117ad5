package timers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walrus/internal/eventbus"
	"walrus/internal/storage"
	logx "walrus/pkg/logx"
)

func TestRouterDispatchesAndPublishes(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, CompleteEvent("reminder"))
	defer unsub()

	r := NewRouter(bus, logx.Nop())
	var got Event
	r.Handle("reminder", func(_ context.Context, kind string, ev Event) error {
		assert.Equal(t, "reminder", kind)
		got = ev
		return nil
	})

	ev := Event{ID: uuid.New(), Kind: "reminder"}
	require.NoError(t, r.OnEventDue(context.Background(), "reminder", ev))
	assert.Equal(t, ev.ID, got.ID)

	select {
	case e := <-ch:
		assert.Equal(t, "reminder_complete", e.Type)
		assert.Equal(t, ev.ID, e.Data.(Event).ID)
	case <-time.After(time.Second):
		t.Fatal("no completion event published")
	}
}

func TestRouterUnknownKindIsNotAnError(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	r := NewRouter(bus, logx.Nop())
	require.NoError(t, r.OnEventDue(context.Background(), "mystery", Event{Kind: "mystery"}))
	e := <-ch
	assert.Equal(t, "mystery_complete", e.Type)
}

func TestMultiRunsAllSinks(t *testing.T) {
	t.Parallel()
	errA := errors.New("a failed")
	var calls []string
	m := Multi{
		SinkFunc(func(context.Context, string, Event) error { calls = append(calls, "a"); return errA }),
		nil,
		SinkFunc(func(context.Context, string, Event) error { calls = append(calls, "b"); return nil }),
	}
	err := m.OnEventDue(context.Background(), "x", Event{})
	assert.ErrorIs(t, err, errA)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestDecodeTimer(t *testing.T) {
	t.Parallel()
	row := storage.Timer{ID: uuid.New(), Event: "reminder", Data: []byte(`{"chat":-1001234567890123,"message":"x"}`)}
	ev, err := decodeTimer(row)
	require.NoError(t, err)
	assert.Equal(t, json.Number("-1001234567890123"), ev.Payload["chat"])

	var p struct {
		Chat    int64  `json:"chat"`
		Message string `json:"message"`
	}
	require.NoError(t, ev.Bind(&p))
	assert.EqualValues(t, -1001234567890123, p.Chat)

	for _, data := range []string{``, `null`, `{}`} {
		ev, err := decodeTimer(storage.Timer{Data: []byte(data)})
		require.NoError(t, err, data)
		assert.NotNil(t, ev.Payload)
	}

	_, err = decodeTimer(storage.Timer{ID: row.ID, Event: "x", Data: []byte(`"just a string"`)})
	var de *PayloadDecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, row.ID, de.ID)
}
