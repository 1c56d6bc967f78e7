// Package queue implements the bounded, thread-safe FIFO used to hand
// framed packets from the classification path to the utun write path.
package queue

import "sync"

// BlockingDeque is a bounded FIFO of byte-slice entries. Capacity is
// enforced with two counting semaphores, holes and filled, mirroring the
// source's LinkedBlockingDeque: Put waits for a hole, Take waits for a
// filled slot, and PutFirst re-queues at the head for retry without
// jumping the capacity check.
type BlockingDeque struct {
	mu    sync.RWMutex
	items [][]byte

	holes  chan struct{}
	filled chan struct{}
}

// NewBlockingDeque returns an empty deque with room for capacity entries.
func NewBlockingDeque(capacity int) *BlockingDeque {
	if capacity < 1 {
		capacity = 1
	}
	d := &BlockingDeque{
		holes:  make(chan struct{}, capacity),
		filled: make(chan struct{}, capacity),
	}
	for i := 0; i < capacity; i++ {
		d.holes <- struct{}{}
	}
	return d
}

// Put appends x at the tail, blocking until capacity is available.
func (d *BlockingDeque) Put(x []byte) {
	<-d.holes
	d.mu.Lock()
	d.items = append(d.items, x)
	d.mu.Unlock()
	d.filled <- struct{}{}
}

// PutFirst inserts x at the head, blocking until capacity is available.
// Used to re-queue a packet that failed to write with EAGAIN so it is the
// next thing attempted.
func (d *BlockingDeque) PutFirst(x []byte) {
	<-d.holes
	d.mu.Lock()
	d.items = append([][]byte{x}, d.items...)
	d.mu.Unlock()
	d.filled <- struct{}{}
}

// Take removes and returns the head entry, blocking until one is available.
func (d *BlockingDeque) Take() []byte {
	<-d.filled
	d.mu.Lock()
	x := d.items[0]
	d.items = d.items[1:]
	d.mu.Unlock()
	d.holes <- struct{}{}
	return x
}

// Poll removes and returns the head entry without blocking. ok is false if
// the deque was empty.
func (d *BlockingDeque) Poll() (x []byte, ok bool) {
	select {
	case <-d.filled:
	default:
		return nil, false
	}
	d.mu.Lock()
	x = d.items[0]
	d.items = d.items[1:]
	d.mu.Unlock()
	d.holes <- struct{}{}
	return x, true
}

// Offer appends x at the tail without blocking, returning false if the
// deque is at capacity.
func (d *BlockingDeque) Offer(x []byte) bool {
	select {
	case <-d.holes:
	default:
		return false
	}
	d.mu.Lock()
	d.items = append(d.items, x)
	d.mu.Unlock()
	d.filled <- struct{}{}
	return true
}

// Empty reports whether the deque currently has no entries. The result may
// be stale the instant it is observed under concurrent use; callers that
// need a linearizable check should use Poll/Take directly.
func (d *BlockingDeque) Empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items) == 0
}

// Len returns the current number of queued entries.
func (d *BlockingDeque) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.items)
}

// Clear empties the deque, waking any blocked Put/PutFirst callers as
// capacity frees up.
func (d *BlockingDeque) Clear() {
	for {
		if _, ok := d.Poll(); !ok {
			return
		}
	}
}

// First returns the head entry without removing it. ok is false if the
// deque is empty.
func (d *BlockingDeque) First() (x []byte, ok bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.items) == 0 {
		return nil, false
	}
	return d.items[0], true
}

// ForEach invokes fn once per queued entry, in head-to-tail order, over a
// snapshot taken under a shared lock so fn may safely call back into the
// deque (Len, First, Empty) without deadlocking.
func (d *BlockingDeque) ForEach(fn func([]byte)) {
	d.mu.RLock()
	snapshot := make([][]byte, len(d.items))
	copy(snapshot, d.items)
	d.mu.RUnlock()

	for _, item := range snapshot {
		fn(item)
	}
}
