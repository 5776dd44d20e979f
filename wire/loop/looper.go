package loop

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
)

var loopLogger = logger.GetLogger("wire/loop")

// ErrLooperClosed is returned by Register after the looper was shut down.
var ErrLooperClosed = errors.New("loop: looper closed")

// Looper dispatches readiness events to registered services. Every
// registration gets one dispatch goroutine that runs all service callbacks,
// plus two watcher goroutines that park in the kernel waiting for readiness.
//
// The watchers never run service code and never touch the channel while a
// callback is in flight: an event is acknowledged by the dispatcher before
// the watcher resumes waiting. This keeps raw descriptor access serialized
// per direction.
type Looper struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
	closed  bool
}

// NewLooper creates an empty looper.
func NewLooper() *Looper {
	return &Looper{clients: make(map[*client]struct{})}
}

// Register attaches a service to a channel and starts dispatching. The
// service's HandleConnect runs first, on the dispatch goroutine.
func (l *Looper) Register(ch ReadyChannel, svc Service) (Context, error) {
	c := &client{
		looper:     l,
		ch:         ch,
		svc:        svc,
		writeReq:   make(chan struct{}, 1),
		rArm:       make(chan struct{}, 1),
		wArm:       make(chan struct{}, 1),
		readableCh: make(chan struct{}),
		writableCh: make(chan struct{}),
		readDone:   make(chan struct{}),
		writeDone:  make(chan struct{}),
		errCh:      make(chan error, 2),
		closedCh:   make(chan struct{}),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrLooperClosed
	}
	l.clients[c] = struct{}{}
	l.wg.Add(3)
	l.mu.Unlock()

	go c.dispatch()
	go c.watchRead()
	go c.watchWrite()

	return c, nil
}

// Close tears down every registered connection and waits for all loop
// goroutines to exit.
func (l *Looper) Close() error {
	l.mu.Lock()
	l.closed = true
	clients := make([]*client, 0, len(l.clients))
	for c := range l.clients {
		clients = append(clients, c)
	}
	l.mu.Unlock()

	for _, c := range clients {
		_ = c.Close()
	}
	l.wg.Wait()
	return nil
}

// remove detaches a closed client from the registry.
func (l *Looper) remove(c *client) {
	l.mu.Lock()
	delete(l.clients, c)
	l.mu.Unlock()
}

// --------------------------------------------------------------------------
// Per-connection state
// --------------------------------------------------------------------------

// client binds one channel, one service, and the goroutines serving them.
// It implements Context.
type client struct {
	looper *Looper
	ch     ReadyChannel
	svc    Service

	ops uint32 // Interest, atomic

	writeReq chan struct{} // collapsed write-required signal
	rArm     chan struct{} // collapsed interest-change signal, read watcher
	wArm     chan struct{} // collapsed interest-change signal, write watcher

	readableCh chan struct{}
	writableCh chan struct{}
	readDone   chan struct{}
	writeDone  chan struct{}

	errCh chan error

	closeOnce sync.Once
	closedCh  chan struct{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see loop.Context)
// --------------------------------------------------------------------------

func (c *client) Channel() Channel { return c.ch }

func (c *client) SetInterest(ops Interest) {
	atomic.StoreUint32(&c.ops, uint32(ops))
	signal(c.rArm)
	signal(c.wArm)
}

func (c *client) WriteRequired() {
	signal(c.writeReq)
}

func (c *client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		_ = c.ch.Close()
		c.looper.remove(c)
	})
	return nil
}

// --------------------------------------------------------------------------
// Goroutines
// --------------------------------------------------------------------------

func (c *client) interest() Interest {
	return Interest(atomic.LoadUint32(&c.ops))
}

// dispatch runs every service callback. It is the only goroutine that
// invokes the service, which gives connections their single-threaded
// execution guarantee.
func (c *client) dispatch() {
	defer c.looper.wg.Done()

	if err := c.svc.HandleConnect(); err != nil {
		c.fail(err)
		return
	}

	for {
		select {
		case <-c.closedCh:
			return

		case err := <-c.errCh:
			c.fail(err)
			return

		case <-c.writeReq:
			// A parked write watcher owns the descriptor's write
			// lock; the pending flush resumes on its event instead.
			if c.interest().Has(Writable) {
				continue
			}
			if err := c.svc.HandleWrite(); err != nil {
				c.fail(err)
				return
			}

		case <-c.readableCh:
			err := c.svc.HandleRead()
			c.ack(c.readDone)
			if err != nil {
				c.fail(err)
				return
			}

		case <-c.writableCh:
			err := c.svc.HandleWrite()
			c.ack(c.writeDone)
			if err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// watchRead parks in the kernel while read interest is armed and forwards
// readiness to the dispatcher, waiting for the acknowledgement before
// parking again.
func (c *client) watchRead() {
	defer c.looper.wg.Done()

	for {
		select {
		case <-c.closedCh:
			return
		default:
		}

		if !c.interest().Has(Readable) {
			select {
			case <-c.rArm:
				continue
			case <-c.closedCh:
				return
			}
		}

		if err := c.ch.WaitReadable(); err != nil {
			c.reportWaitError(err)
			return
		}

		select {
		case c.readableCh <- struct{}{}:
			select {
			case <-c.readDone:
			case <-c.closedCh:
				return
			}
		case <-c.closedCh:
			return
		}
	}
}

// watchWrite is the writable counterpart of watchRead. It is parked on the
// arm signal for most of a connection's lifetime: write interest is armed
// only while a partial socket write is outstanding.
func (c *client) watchWrite() {
	defer c.looper.wg.Done()

	for {
		select {
		case <-c.closedCh:
			return
		default:
		}

		if !c.interest().Has(Writable) {
			select {
			case <-c.wArm:
				continue
			case <-c.closedCh:
				return
			}
		}

		if err := c.ch.WaitWritable(); err != nil {
			c.reportWaitError(err)
			return
		}

		select {
		case c.writableCh <- struct{}{}:
			select {
			case <-c.writeDone:
			case <-c.closedCh:
				return
			}
		case <-c.closedCh:
			return
		}
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// fail reports the terminal error to the service and closes the client.
func (c *client) fail(err error) {
	loopLogger.Debugf("connection failed: %v", err)
	c.svc.HandleError(err)
	_ = c.Close()
}

// reportWaitError forwards a readiness-wait failure to the dispatcher. Waits
// aborted by Close are expected and not reported.
func (c *client) reportWaitError(err error) {
	select {
	case <-c.closedCh:
		return
	default:
	}
	select {
	case c.errCh <- err:
	default:
	}
}

// ack unblocks the watcher that delivered the current event.
func (c *client) ack(done chan struct{}) {
	select {
	case done <- struct{}{}:
	case <-c.closedCh:
	}
}

// signal raises a collapsed notification.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
