package rabbitmq

import (
	"errors"
	"fmt"
)

// ErrTransport marks broker failures: closed connection, missing confirm, nack.
var ErrTransport = errors.New("rabbitmq transport error")

// rejection wraps a handler error that must not be redelivered.
type rejection struct {
	err error
}

func (r rejection) Error() string { return "rejected: " + r.err.Error() }
func (r rejection) Unwrap() error { return r.err }

// Reject marks err as poison: the delivery is nacked without requeue.
func Reject(err error) error {
	if err == nil {
		return nil
	}
	return rejection{err: err}
}

// IsRejected reports whether err, or anything it wraps, was marked with Reject.
func IsRejected(err error) bool {
	var r rejection
	return errors.As(err, &r)
}

func transportErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransport, fmt.Sprintf(format, args...))
}

func wrapTransport(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}
