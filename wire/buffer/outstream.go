package buffer

// OutputStream accumulates serialized request bytes into a sequence of pooled
// buffers of a fixed chunk size. A new buffer is acquired only when the
// current one is full. The reactor flushes the accumulated buffers to the
// socket in order and removes the fully written prefix, retaining a partially
// written buffer for the next writable event.
//
// OutputStream is owned by a single connection and is not safe for concurrent
// use.
type OutputStream struct {
	pool  *Pool
	chunk int
	bufs  []*PooledBuffer
}

// NewOutputStream creates an output stream drawing chunk-sized buffers from
// the given pool.
func NewOutputStream(pool *Pool, chunkSize int) *OutputStream {
	return &OutputStream{pool: pool, chunk: chunkSize}
}

// Write implements io.Writer. It never fails; the stream grows by acquiring
// buffers from the pool as needed.
func (s *OutputStream) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		b := s.current()
		n := b.Write(p)
		p = p[n:]
	}
	return total, nil
}

// WriteByte appends a single byte to the stream.
func (s *OutputStream) WriteByte(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// Buffers returns the ordered buffers written so far. Ownership stays with
// the stream until Remove is called.
func (s *OutputStream) Buffers() []*PooledBuffer {
	return s.bufs
}

// Remove drops the first n buffers from the stream without releasing them.
// The caller has either released them after a full socket write or retains
// the last one for a retry.
func (s *OutputStream) Remove(n int) {
	s.bufs = s.bufs[n:]
}

// Reset releases every buffer still held by the stream. Used on connection
// teardown.
func (s *OutputStream) Reset() {
	for _, b := range s.bufs {
		_ = b.Release()
	}
	s.bufs = nil
}

// current returns the last buffer with remaining capacity, acquiring a fresh
// chunk when the stream is empty or the last buffer is full.
func (s *OutputStream) current() *PooledBuffer {
	if n := len(s.bufs); n > 0 && !s.bufs[n-1].Full() {
		return s.bufs[n-1]
	}
	b := s.pool.Acquire(s.chunk)
	s.bufs = append(s.bufs, b)
	return b
}
