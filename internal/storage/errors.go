package storage

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// Kind classifies a storage fault.
type Kind uint8

const (
	KindPermanent Kind = iota
	KindTransient
)

func (k Kind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// Error wraps a driver error with the failed operation and its classification.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return "storage " + e.Op + " (" + e.Kind.String() + "): " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a storage fault worth retrying from scratch
// (lost connection, timeout, busy database). Cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == KindTransient
	}
	return false
}

// wrap classifies err with the driver-specific classifier, falling back to
// the generic network checks.
func wrap(op string, err error, classify func(error) bool) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	kind := KindPermanent
	if isNetworkFault(err) || (classify != nil && classify(err)) {
		kind = KindTransient
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

func isNetworkFault(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
