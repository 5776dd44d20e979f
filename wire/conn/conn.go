// Package conn implements the connection-level reactor of the transport
// engine. A Connection owns one socket channel, the pending-request queue,
// the awaiting-response queue and the pooled output stream, and drives the
// PostgreSQL frontend/backend exchange without blocking a goroutine on
// network I/O.
//
// Concurrency model: all handler callbacks (HandleConnect, HandleWrite,
// HandleRead, HandleError) execute on the event loop's dispatch goroutine.
// The only entry point that may be called from arbitrary goroutines is
// Enqueue, which appends to a lock-free multi-producer queue and raises the
// loop's write-required signal.
package conn

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/pgtide/pgtide/wire/buffer"
	"github.com/pgtide/pgtide/wire/common"
	"github.com/pgtide/pgtide/wire/frame"
	"github.com/pgtide/pgtide/wire/loop"
)

var connLogger = logger.GetLogger("wire/conn")

var (
	enqueuedTotal  = metrics.GetOrCreateCounter("pgtide_actions_enqueued_total")
	completedTotal = metrics.GetOrCreateCounter("pgtide_actions_completed_total")
	framesTotal    = metrics.GetOrCreateCounter("pgtide_frames_received_total")
)

// FailureHandler receives the terminal error of a connection after every
// outstanding action has been resolved.
type FailureHandler func(err *ClosedError)

// Connection is the reactor for one backend connection. Construct it with
// New, start the handshake with Connect, then hand it to a loop.Looper via
// Attach; the loop drives it from there.
type Connection struct {
	cfg  *common.ConnectionConfig
	out  *buffer.OutputStream
	fail FailureHandler

	pending *actionQueue
	parser  *frame.Parser
	scratch []byte

	// bound is closed by Attach once the loop context is in place;
	// lctx must not be read before that.
	bound chan struct{}
	lctx  loop.Context

	// mu serializes the reactor handlers against a user-initiated Close.
	mu sync.Mutex

	connectMu sync.Mutex
	connector Connector

	// Reactor-owned state, only touched under mu.
	writeArmed      bool
	awaiting        []Action
	lastAwaiting    Action // dedupes awaiting registration across flushes
	flushedBlocking Action // blocking head already serialized, do not re-send
	continuation    Action
	chainOwner      Action // action whose response chain is being consumed
	current         frame.Frame

	closed    bool
	closedErr *ClosedError
	closedCh  chan struct{}
}

// New creates an unconnected reactor drawing write buffers from the given
// pool. The failure handler may be nil.
func New(cfg *common.ConnectionConfig, pool *buffer.Pool, fail FailureHandler) *Connection {
	return &Connection{
		cfg:      cfg,
		out:      buffer.NewOutputStream(pool, cfg.WriteChunkSize()),
		fail:     fail,
		pending:  newActionQueue(),
		parser:   frame.NewParser(),
		scratch:  make([]byte, cfg.ReadBufferSize()),
		bound:    make(chan struct{}),
		closedCh: make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Public API
// --------------------------------------------------------------------------

// Connect begins the handshake with the given initiator. Only one connect
// attempt is allowed per connection instance; a second call returns
// ErrAlreadyConnecting. An I/O failure during the attempt is delivered to
// the connector, not returned here.
func (c *Connection) Connect(connector Connector) error {
	c.connectMu.Lock()
	if c.connector != nil {
		c.connectMu.Unlock()
		return ErrAlreadyConnecting
	}
	c.connector = connector
	c.connectMu.Unlock()

	if err := connector.Connect(c); err != nil {
		connector.HandleError(err)
	}
	return nil
}

// Attach registers the connection with a loop over the given channel and
// starts the reactor. The loop invokes HandleConnect first.
func (c *Connection) Attach(l *loop.Looper, ch loop.ReadyChannel) error {
	lctx, err := l.Register(ch, c)
	if err != nil {
		return err
	}
	c.lctx = lctx
	close(c.bound)
	return nil
}

// Enqueue appends an action to the pending queue and signals the loop that a
// write attempt should occur.
//
// Thread-safety: safe to call from any goroutine, including concurrently
// with the reactor's own flushing.
func (c *Connection) Enqueue(a Action) error {
	if !c.pending.Push(a) {
		return ErrConnectionClosed
	}
	enqueuedTotal.Inc()

	// The queue's closed check and the append are two separate atomic
	// steps, so teardown can drain the queue in between. Re-check after
	// the append and resolve anything the drain missed.
	select {
	case <-c.closedCh:
		c.mu.Lock()
		c.resolveStragglers()
		c.mu.Unlock()
		return ErrConnectionClosed
	default:
	}

	if lctx := c.loopCtx(); lctx != nil {
		lctx.WriteRequired()
	}
	return nil
}

// resolveStragglers drains actions that were appended concurrently with
// teardown and resolves them with the terminal error. Callers hold mu.
func (c *Connection) resolveStragglers() {
	for {
		a, ok := c.pending.Pop()
		if !ok {
			return
		}
		a.HandleError(c.closedErr)
	}
}

// Close tears the connection down, resolving every outstanding action with
// ErrConnectionClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.closeWith(ErrConnectionClosed)
	c.mu.Unlock()
	return nil
}

// Done is closed once the connection has reached its terminal state.
func (c *Connection) Done() <-chan struct{} { return c.closedCh }

// --------------------------------------------------------------------------
// loop.Service
// --------------------------------------------------------------------------

// HandleConnect finishes the handshake: it asks the connector for the
// initial action, arms writing, and flushes that action immediately.
func (c *Connection) HandleConnect() error {
	<-c.bound

	c.mu.Lock()
	defer c.mu.Unlock()

	c.connectMu.Lock()
	connector := c.connector
	c.connectMu.Unlock()
	if connector == nil {
		return errors.New("conn: no connect attempt in progress")
	}

	initial, err := connector.FinishConnect(c)
	if err != nil {
		connector.HandleError(err)
		return fmt.Errorf("conn: finish connect: %w", err)
	}
	c.writeArmed = true
	c.lctx.SetInterest(loop.Readable)

	// connectors without an initial action still get anything already queued
	if initial == nil {
		return c.flush(c.pending)
	}
	return c.flush(&initialSource{action: initial})
}

// HandleWrite drains the pending queue into the output stream and pushes the
// accumulated buffers to the socket.
func (c *Connection) HandleWrite() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flush(c.pending)
}

// HandleRead consumes everything the socket currently has, feeds it to the
// frame parser, and routes each completed frame to the action expecting it.
func (c *Connection) HandleRead() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	ch := c.lctx.Channel()

	for {
		n, err := ch.Read(c.scratch)
		if err == loop.ErrWouldBlock {
			return nil
		}
		if err == io.EOF {
			return fmt.Errorf("%w: end of stream from backend", ErrConnectionClosed)
		}
		if err != nil {
			return fmt.Errorf("conn: read: %w", err)
		}

		frames, perr := c.parser.Parse(c.scratch[:n])
		if perr != nil {
			return perr
		}
		for _, f := range frames {
			if err := c.deliver(f); err != nil {
				return err
			}
		}
	}
}

// HandleError resolves every outstanding action with the terminal failure.
func (c *Connection) HandleError(err error) {
	c.mu.Lock()
	c.closeWith(err)
	c.mu.Unlock()
}

// --------------------------------------------------------------------------
// Reactor internals
// --------------------------------------------------------------------------

// actionSource abstracts over the pending queue and the one-off queue used
// to flush the connector's initial action.
type actionSource interface {
	Peek() (Action, bool)
	Pop() (Action, bool)
}

// initialSource feeds exactly one action to flush.
type initialSource struct{ action Action }

func (s *initialSource) Peek() (Action, bool) {
	if s.action == nil {
		return nil, false
	}
	return s.action, true
}

func (s *initialSource) Pop() (Action, bool) {
	a := s.action
	s.action = nil
	return a, a != nil
}

// flush implements the write half of the reactor. It serializes queued
// actions in FIFO order (stopping after a blocking action), then writes the
// accumulated buffers to the socket. A buffer the socket would not fully
// accept stays at the head of the output stream for the next writable event.
func (c *Connection) flush(src actionSource) error {
	if !c.writeArmed || c.closed {
		return nil
	}

	for {
		a, ok := src.Peek()
		if !ok {
			break
		}

		// A blocking head's bytes are already out; it stays queued
		// until its response arrives and must not be serialized twice.
		// Everything behind it waits in FIFO order.
		if a == c.flushedBlocking {
			break
		}

		if err := a.Write(c); err != nil {
			return fmt.Errorf("conn: serialize %s: %w", a, err)
		}

		if a.RequiresResponse() && c.lastAwaiting != a {
			c.awaiting = append(c.awaiting, a)
			c.lastAwaiting = a
		}

		if a.Blocking() {
			// bytes are serialized, but nothing queued after this
			// action may be sent until its response is observed
			c.flushedBlocking = a
			break
		}

		src.Pop()
	}

	return c.push()
}

// push writes the output stream's buffers to the socket in order. On a short
// write the partially written buffer stays at the head of the stream, its
// read cursor marking the resume point, and write interest is armed; once
// all buffers are out only read interest remains.
func (c *Connection) push() error {
	ch := c.lctx.Channel()
	flushed := 0
	for _, b := range c.out.Buffers() {
		n, err := ch.Write(b.Bytes())
		b.Advance(n)

		if err == loop.ErrWouldBlock || (err == nil && b.Len() > 0) {
			c.out.Remove(flushed)
			c.lctx.SetInterest(loop.Readable | loop.Writable)
			return nil
		}
		if err != nil {
			return fmt.Errorf("conn: write: %w", err)
		}

		_ = b.Release()
		flushed++
	}

	c.out.Remove(flushed)
	c.lctx.SetInterest(loop.Readable)
	return nil
}

// deliver routes one frame to the pending continuation, or failing that to
// the oldest awaiting action. Responses arrive in the exact order the
// awaiting actions were flushed; the backend never reorders.
func (c *Connection) deliver(f frame.Frame) error {
	framesTotal.Inc()

	var target Action
	switch {
	case c.continuation != nil:
		target = c.continuation
		c.continuation = nil
	case len(c.awaiting) > 0:
		target = c.awaiting[0]
		c.awaiting = c.awaiting[1:]
		c.chainOwner = target
	default:
		// asynchronous backend chatter with nothing expecting it
		connLogger.Warningf("dropping unsolicited %s", f)
		return nil
	}

	c.current = f
	next, err := target.Read(c)
	c.current = frame.Frame{}
	if err != nil {
		// reinstate the target so teardown resolves it with the rest
		c.continuation = target
		return fmt.Errorf("conn: %s failed reading %s: %w", target, f, err)
	}
	c.continuation = next

	if next == nil {
		completedTotal.Inc()

		// Satisfaction is judged by the action that started the chain,
		// not the continuation that consumed the last frame.
		owner := c.chainOwner
		c.chainOwner = nil

		if owner != nil && owner == c.flushedBlocking {
			c.flushedBlocking = nil
			c.lctx.WriteRequired()
		}

		// A satisfied blocking action is still the pending head;
		// popping it unblocks whatever was queued behind it.
		if head, ok := c.pending.Peek(); ok && owner != nil && head == owner {
			c.pending.Pop()
			c.lctx.WriteRequired()
		}
	}
	return nil
}

// closeWith transitions to the terminal state: the pending queue refuses new
// actions, every in-flight action is resolved with a ClosedError, buffers go
// back to the pool, and the failure handler is told what did not complete.
// Callers hold mu.
func (c *Connection) closeWith(cause error) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.closedCh)
	c.pending.Close()

	seen := make(map[Action]bool)
	var unfinished []Action
	collect := func(a Action) {
		if a != nil && !seen[a] {
			seen[a] = true
			unfinished = append(unfinished, a)
		}
	}
	collect(c.continuation)
	c.continuation = nil
	collect(c.chainOwner)
	c.chainOwner = nil
	for _, a := range c.awaiting {
		collect(a)
	}
	c.awaiting = nil
	for {
		a, ok := c.pending.Pop()
		if !ok {
			break
		}
		collect(a)
	}

	names := make([]string, len(unfinished))
	for i, a := range unfinished {
		names[i] = a.String()
	}
	cerr := &ClosedError{Cause: cause, Unfinished: names}
	c.closedErr = cerr

	for _, a := range unfinished {
		a.HandleError(cerr)
	}

	c.out.Reset()

	if lctx := c.loopCtx(); lctx != nil {
		_ = lctx.Close()
	}

	connLogger.Infof("connection to %s closed: %v", c.cfg.Endpoint(), cerr)
	if c.fail != nil {
		c.fail(cerr)
	}
}

// loopCtx returns the loop context once Attach has published it.
func (c *Connection) loopCtx() loop.Context {
	select {
	case <-c.bound:
		return c.lctx
	default:
		return nil
	}
}

// --------------------------------------------------------------------------
// Context implementations (handed to actions and connectors)
// --------------------------------------------------------------------------

func (c *Connection) Output() io.Writer { return c.out }

func (c *Connection) Config() *common.ConnectionConfig { return c.cfg }

func (c *Connection) Frame() frame.Frame { return c.current }

func (c *Connection) WriteRequired() {
	if lctx := c.loopCtx(); lctx != nil {
		lctx.WriteRequired()
	}
}

func (c *Connection) Channel() loop.Channel {
	if lctx := c.loopCtx(); lctx != nil {
		return lctx.Channel()
	}
	return nil
}
