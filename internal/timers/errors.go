package timers

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrInvalidEvent   = errors.New("invalid timer event")
	ErrNotStarted     = errors.New("timer service not started")
	ErrAlreadyStarted = errors.New("timer service already started")
	ErrNoStore        = errors.New("timer service has no store")
)

// PayloadDecodeError reports a stored payload that is not a JSON object.
// The loop drops such rows instead of firing them.
type PayloadDecodeError struct {
	ID   uuid.UUID
	Kind string
	Err  error
}

func (e *PayloadDecodeError) Error() string {
	return fmt.Sprintf("decode payload of timer %s (%s): %v", e.ID, e.Kind, e.Err)
}

func (e *PayloadDecodeError) Unwrap() error { return e.Err }
