package crawler

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned by queues after shutdown.
var ErrQueueClosed = errors.New("queue closed")

// TransientError marks failures that are worth retrying (timeouts, lost render contexts).
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err carries a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
