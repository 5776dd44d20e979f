package buffer

// --------------------------------------------------------------------------
// Allocator Interface
// --------------------------------------------------------------------------

// IBufferAllocator is the strategy for acquiring and releasing raw byte
// regions. Implementations are free to return heap regions or to do any kind
// of recycling, and must be safe for concurrent use.
type IBufferAllocator interface {
	// Allocate returns a byte region of at least the requested capacity.
	Allocate(size int) []byte

	// Free returns a region previously obtained from Allocate on the same
	// allocator instance.
	Free(buf []byte)
}

// --------------------------------------------------------------------------
// Heap Allocator
// --------------------------------------------------------------------------

// heapAllocator is the trivial allocator: every Allocate is a fresh heap
// slice and Free hands the region to the garbage collector.
type heapAllocator struct{}

// NewHeapAllocator creates an allocator backed directly by the Go heap.
func NewHeapAllocator() IBufferAllocator {
	return heapAllocator{}
}

func (heapAllocator) Allocate(size int) []byte { return make([]byte, size) }

func (heapAllocator) Free([]byte) {}
