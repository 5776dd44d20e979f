package buffer

import (
	"errors"
	"sync/atomic"
)

// ErrDoubleRelease is returned when a pooled buffer is released a second
// time. Using the handle after the first release is a programming error on
// the caller's side and must never reach the pool.
var ErrDoubleRelease = errors.New("buffer: pooled buffer released twice")

// PooledBuffer is a borrowed fixed-capacity buffer. It carries a write cursor
// (bytes serialized into it) and a read cursor (bytes already consumed by
// socket writes), so a partially written buffer can be retained and resumed.
//
// A PooledBuffer is owned by exactly one goroutine at a time and must be
// released exactly once.
type PooledBuffer struct {
	pool *Pool
	buf  []byte
	w    int // write cursor
	r    int // read cursor, r <= w

	released atomic.Bool
}

// Cap returns the total capacity of the buffer.
func (b *PooledBuffer) Cap() int { return len(b.buf) }

// Len returns the number of unconsumed bytes, i.e. written but not yet
// handed to the socket.
func (b *PooledBuffer) Len() int { return b.w - b.r }

// Full reports whether the write cursor has reached the capacity.
func (b *PooledBuffer) Full() bool { return b.w == len(b.buf) }

// Bytes returns the unconsumed region of the buffer. The slice is only valid
// until the next Write, Advance, or Release.
func (b *PooledBuffer) Bytes() []byte { return b.buf[b.r:b.w] }

// Write copies as much of p as fits and returns the number of bytes copied.
func (b *PooledBuffer) Write(p []byte) int {
	n := copy(b.buf[b.w:], p)
	b.w += n
	return n
}

// Advance marks n bytes as consumed after a (possibly partial) socket write.
func (b *PooledBuffer) Advance(n int) {
	b.r += n
	if b.r > b.w {
		b.r = b.w
	}
}

// Release returns the buffer to its pool. The handle must not be used
// afterwards. A second release is rejected with ErrDoubleRelease and does not
// reach the pool.
func (b *PooledBuffer) Release() error {
	if !b.released.CompareAndSwap(false, true) {
		return ErrDoubleRelease
	}
	raw := b.buf
	b.buf = nil
	b.w, b.r = 0, 0
	b.pool.release(raw)
	return nil
}
