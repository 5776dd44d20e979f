package buffer

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

// countingAllocator wraps the heap allocator and tracks Allocate/Free calls.
type countingAllocator struct {
	mu     sync.Mutex
	allocs int
	frees  int
}

func (a *countingAllocator) Allocate(size int) []byte {
	a.mu.Lock()
	a.allocs++
	a.mu.Unlock()
	return make([]byte, size)
}

func (a *countingAllocator) Free(buf []byte) {
	a.mu.Lock()
	a.frees++
	a.mu.Unlock()
}

// TestPoolAcquireRelease verifies a released buffer is handed out again
func TestPoolAcquireRelease(t *testing.T) {
	alloc := &countingAllocator{}
	p := NewPool(alloc)

	b := p.Acquire(100)
	if b.Cap() < 100 {
		t.Fatalf("Expected capacity >= 100, got %d", b.Cap())
	}
	if err := b.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	// same size class, must come from the free list
	p.Acquire(100)
	if alloc.allocs != 1 {
		t.Errorf("Expected 1 allocation, got %d", alloc.allocs)
	}
}

// TestPoolSizeClasses verifies requests are rounded to power-of-two classes
func TestPoolSizeClasses(t *testing.T) {
	p := NewPool(NewHeapAllocator())

	cases := []struct{ request, class int }{
		{1, 64},
		{64, 64},
		{65, 128},
		{1024, 1024},
		{1025, 2048},
	}
	for _, c := range cases {
		b := p.Acquire(c.request)
		if b.Cap() != c.class {
			t.Errorf("Acquire(%d): expected class %d, got %d", c.request, c.class, b.Cap())
		}
		_ = b.Release()
	}
}

// TestDoubleReleaseRejected verifies the second release fails and does not
// corrupt the pool
func TestDoubleReleaseRejected(t *testing.T) {
	p := NewPool(NewHeapAllocator())

	b := p.Acquire(64)
	if err := b.Release(); err != nil {
		t.Fatalf("First release failed: %v", err)
	}
	if err := b.Release(); !errors.Is(err, ErrDoubleRelease) {
		t.Fatalf("Expected ErrDoubleRelease, got %v", err)
	}

	// the pool must still hand out exactly one distinct buffer per class entry
	b1 := p.Acquire(64)
	b2 := p.Acquire(64)
	b1.Write([]byte{1})
	b2.Write([]byte{2})
	if &b1.buf[0] == &b2.buf[0] {
		t.Error("Pool handed out the same backing array twice")
	}
}

// TestPooledBufferCursors verifies the write/read cursor arithmetic used for
// partial socket writes
func TestPooledBufferCursors(t *testing.T) {
	p := NewPool(NewHeapAllocator())
	b := p.Acquire(64)
	defer b.Release()

	n := b.Write([]byte("hello world"))
	if n != 11 || b.Len() != 11 {
		t.Fatalf("Expected 11 bytes written and pending, got n=%d len=%d", n, b.Len())
	}

	b.Advance(6)
	if b.Len() != 5 {
		t.Errorf("Expected 5 pending bytes after Advance(6), got %d", b.Len())
	}
	if !bytes.Equal(b.Bytes(), []byte("world")) {
		t.Errorf("Expected remaining %q, got %q", "world", b.Bytes())
	}

	// advancing past the write cursor clamps
	b.Advance(100)
	if b.Len() != 0 {
		t.Errorf("Expected empty buffer after over-advance, got %d", b.Len())
	}
}

// TestPooledBufferWritePartialFit verifies Write copies only what fits
func TestPooledBufferWritePartialFit(t *testing.T) {
	p := NewPool(NewHeapAllocator())
	b := p.Acquire(64)
	defer b.Release()

	big := make([]byte, 100)
	n := b.Write(big)
	if n != 64 {
		t.Errorf("Expected 64 bytes copied into a 64-byte buffer, got %d", n)
	}
	if !b.Full() {
		t.Error("Buffer should report full")
	}
}

// TestOutputStreamChunking verifies the stream splits writes across
// chunk-sized buffers and preserves byte order
func TestOutputStreamChunking(t *testing.T) {
	p := NewPool(NewHeapAllocator())
	s := NewOutputStream(p, 64)

	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := s.Write(payload); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	bufs := s.Buffers()
	if len(bufs) != 4 {
		t.Fatalf("Expected 4 chunks for 200 bytes at chunk size 64, got %d", len(bufs))
	}

	var got []byte
	for _, b := range bufs {
		got = append(got, b.Bytes()...)
	}
	if !bytes.Equal(got, payload) {
		t.Error("Reassembled stream differs from written bytes")
	}

	s.Reset()
	if len(s.Buffers()) != 0 {
		t.Error("Expected empty stream after Reset")
	}
}

// TestOutputStreamDrainResume simulates the reactor's flush cycle: a partial
// socket write retains the unfinished buffer and a later flush resumes
// exactly where it stopped
func TestOutputStreamDrainResume(t *testing.T) {
	p := NewPool(NewHeapAllocator())
	s := NewOutputStream(p, 64)

	want := make([]byte, 150)
	for i := range want {
		want[i] = byte(i * 7)
	}
	_, _ = s.Write(want)

	var wire []byte

	// first flush: the socket accepts one full buffer and 10 bytes of the
	// second
	bufs := s.Buffers()
	wire = append(wire, bufs[0].Bytes()...)
	bufs[0].Advance(bufs[0].Len())
	_ = bufs[0].Release()

	wire = append(wire, bufs[1].Bytes()[:10]...)
	bufs[1].Advance(10)

	// retain the partial buffer: drop the released prefix only
	s.Remove(1)

	// second flush drains everything left
	for _, b := range s.Buffers() {
		wire = append(wire, b.Bytes()...)
		b.Advance(b.Len())
		_ = b.Release()
	}
	s.Remove(len(s.Buffers()))

	if !bytes.Equal(wire, want) {
		t.Errorf("Drained bytes differ from written bytes:\n got %v\nwant %v", wire, want)
	}
	if len(s.Buffers()) != 0 {
		t.Errorf("Expected drained stream, %d buffers left", len(s.Buffers()))
	}
}

// TestOutputStreamReuseAfterDrain verifies the stream acquires a fresh chunk
// after being fully drained
func TestOutputStreamReuseAfterDrain(t *testing.T) {
	p := NewPool(NewHeapAllocator())
	s := NewOutputStream(p, 64)

	_, _ = s.Write([]byte("first"))
	for _, b := range s.Buffers() {
		b.Advance(b.Len())
		_ = b.Release()
	}
	s.Remove(len(s.Buffers()))

	_, _ = s.Write([]byte("second"))
	bufs := s.Buffers()
	if len(bufs) != 1 {
		t.Fatalf("Expected 1 buffer after reuse, got %d", len(bufs))
	}
	if string(bufs[0].Bytes()) != "second" {
		t.Errorf("Expected %q, got %q", "second", bufs[0].Bytes())
	}
	s.Reset()
}

// TestPoolConcurrentAcquireRelease verifies the pool survives concurrent use
// from many goroutines
func TestPoolConcurrentAcquireRelease(t *testing.T) {
	p := NewPool(NewHeapAllocator())

	const goroutines = 16
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				b := p.Acquire(64 << (uint(i) % 4))
				b.Write([]byte{byte(id)})
				if got := b.Bytes(); len(got) != 1 || got[0] != byte(id) {
					t.Errorf("Goroutine %d: buffer content corrupted: %v", id, got)
					return
				}
				if err := b.Release(); err != nil {
					t.Errorf("Goroutine %d: release failed: %v", id, err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
}
