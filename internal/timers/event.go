package timers

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"walrus/internal/storage"
)

// Event is a persisted timer as seen by callers and sinks.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Payload   map[string]any `json:"payload"`
}

// Bind decodes the payload into v (a pointer to a struct or map).
func (e Event) Bind(v any) error {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// header is the part of an event the loop needs before it decides to fire.
func header(t storage.Timer) Event {
	return Event{ID: t.ID, Kind: t.Event, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt}
}

// decodeTimer turns a stored row into an Event. Numbers stay json.Number so
// chat and user ids keep their precision.
func decodeTimer(t storage.Timer) (Event, error) {
	ev := header(t)
	payload := map[string]any{}
	if len(bytes.TrimSpace(t.Data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(t.Data))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return ev, &PayloadDecodeError{ID: t.ID, Kind: t.Event, Err: err}
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	ev.Payload = payload
	return ev, nil
}

func encodePayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}
