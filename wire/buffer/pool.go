// Package buffer implements the pooled-buffer I/O subsystem of the transport
// engine. A Pool recycles fixed-capacity buffers keyed by size class so that
// high-frequency small writes do not allocate, and an OutputStream accumulates
// serialized request bytes into a sequence of pooled buffers ready for socket
// writes.
//
// A Pool instance is explicitly constructed and injected into each connection;
// it is the only resource shared between connections and is safe for
// concurrent Acquire/Release from multiple goroutines.
package buffer

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// minClassSize is the smallest size class handed out by a Pool.
	minClassSize = 64

	// classRetention is how many free buffers each size class retains
	// before falling back to the allocator.
	classRetention = 128
)

// Pool recycles buffers by size class on top of an IBufferAllocator.
// A buffer handed out is never handed out again until it is released.
type Pool struct {
	alloc   IBufferAllocator
	classes *xsync.MapOf[int, chan []byte]
}

// NewPool creates a buffer pool on top of the given allocator.
func NewPool(alloc IBufferAllocator) *Pool {
	return &Pool{
		alloc:   alloc,
		classes: xsync.NewMapOf[int, chan []byte](),
	}
}

// Acquire borrows a buffer with capacity of at least size bytes. The returned
// handle must be released exactly once.
func (p *Pool) Acquire(size int) *PooledBuffer {
	class := classFor(size)
	free := p.freeList(class)

	var raw []byte
	select {
	case raw = <-free:
		poolCounter("reuses", class).Inc()
	default:
		raw = p.alloc.Allocate(class)
		poolCounter("allocs", class).Inc()
	}
	poolCounter("acquires", class).Inc()

	return &PooledBuffer{pool: p, buf: raw[:class]}
}

// release returns a buffer region to its size class. Called by
// PooledBuffer.Release only.
func (p *Pool) release(raw []byte) {
	class := cap(raw)
	poolCounter("releases", class).Inc()

	select {
	case p.freeList(class) <- raw[:class]:
	default:
		// class full, hand back to the allocator
		p.alloc.Free(raw)
	}
}

// freeList returns the free list channel of a size class, creating it on
// first use.
func (p *Pool) freeList(class int) chan []byte {
	free, ok := p.classes.Load(class)
	if !ok {
		free, _ = p.classes.LoadOrStore(class, make(chan []byte, classRetention))
	}
	return free
}

// classFor rounds a requested size up to the next power of two, with a floor
// of minClassSize.
func classFor(size int) int {
	class := minClassSize
	for class < size {
		class <<= 1
	}
	return class
}

// poolCounter returns the process-wide counter of a pool event for one size
// class.
func poolCounter(event string, class int) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`pgtide_buffer_%s_total{class="%d"}`, event, class))
}
