package conn

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyConnecting is returned by Connect when a connect attempt
	// was already started on this connection instance.
	ErrAlreadyConnecting = errors.New("conn: connection already being established")

	// ErrConnectionClosed is returned when the connection has reached its
	// terminal state and can no longer carry actions.
	ErrConnectionClosed = errors.New("conn: connection closed")
)

// ClosedError is the terminal failure of a connection. It enumerates every
// action that was still pending or awaiting a response when the transport
// died, so the surrounding session layer can tell callers exactly which
// operations did not complete.
type ClosedError struct {
	// Cause is the I/O or protocol error that killed the connection.
	Cause error

	// Unfinished names the in-flight actions that were resolved with
	// this failure, oldest first.
	Unfinished []string
}

func (e *ClosedError) Error() string {
	if len(e.Unfinished) == 0 {
		return fmt.Sprintf("conn: closed: %v", e.Cause)
	}
	return fmt.Sprintf("conn: closed: %v (unfinished actions: %s)",
		e.Cause, strings.Join(e.Unfinished, ", "))
}

func (e *ClosedError) Unwrap() error { return e.Cause }
