package monitor

import (
	"errors"
	"fmt"

	"cardwatch/internal/models"
)

var (
	// ErrCycleInProgress is returned when a cycle is requested while another
	// one is still running against the same store.
	ErrCycleInProgress = errors.New("monitor: a check cycle is already running")

	// ErrZeroPrice means the source answered with a price of exactly zero,
	// which sources use for "no listings".
	ErrZeroPrice = errors.New("monitor: quoted price is zero")

	// ErrNegativePrice means the source produced a nonsensical price.
	ErrNegativePrice = errors.New("monitor: quoted price is negative")
)

// PersistenceError means the watch store could not be read or written. It
// aborts the current cycle only.
type PersistenceError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("watch store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotifierError wraps a failed chunk delivery.
type NotifierError struct {
	Chunk int
	Err   error
}

func (e *NotifierError) Error() string {
	return fmt.Sprintf("notify chunk %d: %v", e.Chunk, e.Err)
}

func (e *NotifierError) Unwrap() error { return e.Err }

// TaskFailure is recorded when a lookup goroutine panicked instead of
// returning a result.
type TaskFailure struct {
	Key   models.Key
	Value any
	Stack []byte
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("lookup for %s crashed: %v", e.Key, e.Value)
}

type terminalError struct{ err error }

func (e terminalError) Error() string { return e.err.Error() }
func (e terminalError) Unwrap() error { return e.err }

// Terminal marks err as not worth retrying.
func Terminal(err error) error {
	if err == nil {
		return nil
	}
	return terminalError{err: err}
}

// IsTerminal reports whether err, or anything it wraps, was marked Terminal.
func IsTerminal(err error) bool {
	var t terminalError
	return errors.As(err, &t)
}
