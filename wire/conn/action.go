package conn

import (
	"fmt"
	"io"

	"github.com/pgtide/pgtide/wire/common"
	"github.com/pgtide/pgtide/wire/frame"
	"github.com/pgtide/pgtide/wire/loop"
)

// --------------------------------------------------------------------------
// Contexts handed to actions
// --------------------------------------------------------------------------

// WriteContext is the view of the connection an action sees while
// serializing its request bytes.
type WriteContext interface {
	// Output is the pooled-buffer stream the request is serialized into.
	Output() io.Writer

	// Config returns the connection properties, read-only.
	Config() *common.ConnectionConfig

	// WriteRequired signals that a further write attempt should occur.
	WriteRequired()
}

// ReadContext is the view of the connection an action sees while consuming a
// backend frame.
type ReadContext interface {
	// Frame returns the frame being delivered to the action.
	Frame() frame.Frame

	// Config returns the connection properties, read-only.
	Config() *common.ConnectionConfig

	// Enqueue appends a follow-up action to the pending queue. Used by
	// handshake steps that must answer a server challenge.
	Enqueue(a Action) error

	// WriteRequired signals that a further write attempt should occur.
	WriteRequired()
}

// ConnectContext is the view of the connection a Connector sees while the
// handshake is being established.
type ConnectContext interface {
	// Channel returns the underlying byte channel.
	Channel() loop.Channel

	// Config returns the connection properties, read-only.
	Config() *common.ConnectionConfig
}

// --------------------------------------------------------------------------
// Action contract
// --------------------------------------------------------------------------

// Action is one unit of protocol exchange: it serializes a request and
// optionally consumes one or more response frames.
//
// Three capabilities shape how the reactor treats an action: whether it
// requires a response (registers in the awaiting queue), whether it blocks
// flushing of later-queued actions until its response arrives, and whether
// its Read returns a continuation that consumes the next frame before the
// awaiting queue is consulted again. The continuation is how one logical
// operation spans a variable number of backend frames.
type Action interface {
	fmt.Stringer

	// Write serializes the request into the context's output stream.
	Write(ctx WriteContext) error

	// RequiresResponse reports whether the action expects at least one
	// backend frame.
	RequiresResponse() bool

	// Blocking reports whether later-queued actions must not be sent
	// until this action's response has been observed.
	Blocking() bool

	// Read consumes one frame. A non-nil return value receives the next
	// frame before the awaiting queue is consulted again.
	Read(ctx ReadContext) (Action, error)

	// HandleError resolves the action with a failure. Invoked exactly
	// once for every action still pending or awaiting when the
	// connection dies.
	HandleError(err error)
}

// --------------------------------------------------------------------------
// Connector contract
// --------------------------------------------------------------------------

// Connector initiates the protocol handshake of a fresh connection.
type Connector interface {
	// Connect begins the handshake, e.g. validates properties or
	// upgrades the channel. I/O failures are delivered back to the
	// connector's HandleError, not thrown at the caller.
	Connect(ctx ConnectContext) error

	// FinishConnect is invoked once the socket is established and
	// returns the initial action to flush, if any.
	FinishConnect(ctx ConnectContext) (Action, error)

	// HandleError resolves the connect attempt with a failure.
	HandleError(err error)
}
