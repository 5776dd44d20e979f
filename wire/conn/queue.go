package conn

import (
	"runtime"
	"sync/atomic"
)

// qnode is a single element of the pending queue.
type qnode struct {
	action Action
	next   atomic.Pointer[qnode]
}

// actionQueue is a lock-free multi-producer single-consumer FIFO. Any
// goroutine may Push concurrently; Peek and Pop belong exclusively to the
// reactor goroutine. The queue is a linked list with a sentinel head and
// atomic tail appends, so producers never contend with the consumer.
type actionQueue struct {
	head   atomic.Pointer[qnode]
	tail   atomic.Pointer[qnode]
	closed atomic.Bool
}

// newActionQueue creates an empty queue.
func newActionQueue() *actionQueue {
	sentinel := &qnode{}
	q := &actionQueue{}
	q.head.Store(sentinel)
	q.tail.Store(sentinel)
	return q
}

// Push appends an action. Returns false if the queue is closed.
//
// Thread-safety: safe to call from any number of goroutines.
func (q *actionQueue) Push(a Action) bool {
	if a == nil || q.closed.Load() {
		return false
	}

	newNode := &qnode{action: a}

	var backoff uint8
	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			// the tail has no next node yet, try to append our node
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS on tail may fail if another producer helps
				// update it first; the tail still converges
				q.tail.CompareAndSwap(tailNode, newNode)
				return true
			}
		} else {
			// help a producer that appended but has not updated tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		// exponential backoff under contention: spin at first, then
		// yield so other producers can finish their append
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// Peek returns the oldest action without removing it.
//
// Thread-safety: single consumer only.
func (q *actionQueue) Peek() (Action, bool) {
	next := q.head.Load().next.Load()
	if next == nil {
		return nil, false
	}
	return next.action, true
}

// Pop removes and returns the oldest action.
//
// Thread-safety: single consumer only.
func (q *actionQueue) Pop() (Action, bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		return nil, false
	}
	q.head.Store(next)

	a := next.action
	next.action = nil // help gc
	return a, true
}

// Close prevents further pushes. Items already queued remain consumable.
func (q *actionQueue) Close() {
	q.closed.Store(true)
}

// Len returns an approximate item count. O(n), debugging only.
func (q *actionQueue) Len() int {
	count := 0
	current := q.head.Load()
	for {
		next := current.next.Load()
		if next == nil {
			break
		}
		count++
		current = next
	}
	return count
}
