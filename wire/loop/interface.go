// Package loop provides the readiness-notification event loop the transport
// engine runs on. A connection registers a Service with a Looper; the looper
// guarantees that the service's read/write callbacks execute on a single
// goroutine per connection while readiness watching happens off to the side.
//
// The package focuses on:
//   - Non-blocking channel semantics (ErrWouldBlock) over real sockets
//   - Level-triggered readable/writable dispatch driven by interest flags
//   - A write-required signal that callers may raise from any goroutine
package loop

import "errors"

// ErrWouldBlock is returned by Channel reads and writes when the operation
// cannot make progress without blocking.
var ErrWouldBlock = errors.New("loop: operation would block")

// --------------------------------------------------------------------------
// Interest flags
// --------------------------------------------------------------------------

// Interest is the set of readiness events a service is currently subscribed
// to.
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

// Has reports whether every flag of ops is set.
func (i Interest) Has(ops Interest) bool { return i&ops == ops }

// --------------------------------------------------------------------------
// Interface Definitions
// --------------------------------------------------------------------------

// Channel is a non-blocking byte channel. Read returns (0, ErrWouldBlock)
// when no bytes are buffered and io.EOF at end of stream. Write may accept
// only a prefix of p; it returns ErrWouldBlock together with the number of
// bytes accepted when the socket send buffer is full.
type Channel interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ReadyChannel extends Channel with blocking readiness waits. The looper's
// watcher goroutines park in these; services never call them.
type ReadyChannel interface {
	Channel

	// WaitReadable blocks until at least one byte can be read.
	WaitReadable() error

	// WaitWritable blocks until the socket can accept more bytes.
	WaitWritable() error
}

// Service receives readiness callbacks for one registered connection. All
// four methods are invoked from the same dispatch goroutine.
type Service interface {
	// HandleConnect is invoked once, before any other callback.
	HandleConnect() error

	// HandleRead is invoked when the channel is readable.
	HandleRead() error

	// HandleWrite is invoked when a write was requested or the channel
	// became writable while write interest was armed.
	HandleWrite() error

	// HandleError is invoked with the terminal error of the connection.
	// No further callbacks follow.
	HandleError(err error)
}

// Context is the service's handle back into the loop.
type Context interface {
	// Channel returns the registered channel.
	Channel() Channel

	// SetInterest replaces the set of readiness events being watched.
	SetInterest(ops Interest)

	// WriteRequired signals that a write attempt should occur. Safe to
	// call from any goroutine; repeated signals collapse.
	WriteRequired()

	// Close tears the connection down and releases the loop resources.
	Close() error
}
