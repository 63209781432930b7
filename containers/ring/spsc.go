// Package ring implements the fixed-capacity ring buffer variants of
// spec.md §4.6: SPSC (fixed, no-wait full error), MPSC (fixed,
// CAS-based multi-push), and extensible (SPSC, grows).
//
// Grounded on Pam-La-jmt_for_mac/internal/async/ring_buffer.go's
// Vyukov-style sequence-CAS MPMC ring, adapted down to the single-writer
// or single-reader shapes spec.md actually asks for (the pack's ring is
// MPMC; spec.md's queue container is producer-many/consumer-one or
// producer-one/consumer-one, so the CAS dance on the consumer side of
// MPSC and both sides of SPSC is unnecessary and dropped).
package ring

import (
	"sync/atomic"

	"github.com/coriolis-labs/corerun/rterr"
)

// SPSC is a fixed-capacity single-producer single-consumer ring buffer.
// Capacity must be a power of two. Push and Pop are each safe to call
// concurrently with the other, but never with themselves — the "S" is
// load-bearing.
type SPSC[T any] struct {
	capacity uint64
	mask     uint64
	slots    []T

	head atomic.Uint64 // consumer-owned
	tail atomic.Uint64 // producer-owned
}

// NewSPSC builds an SPSC ring of the given power-of-two capacity.
func NewSPSC[T any](capacity uint64) (*SPSC[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, rterr.WrapFatal("ring.NewSPSC", rterr.ErrZeroSize)
	}
	return &SPSC[T]{
		capacity: capacity,
		mask:     capacity - 1,
		slots:    make([]T, capacity),
	}, nil
}

// TryPush pushes value without blocking, returning rterr.ErrNoSpace if
// the ring is full.
func (r *SPSC[T]) TryPush(value T) error {
	head := r.head.Load()
	tail := r.tail.Load()
	if tail-head >= r.capacity {
		return rterr.ErrNoSpace
	}
	r.slots[tail&r.mask] = value
	r.tail.Store(tail + 1)
	return nil
}

// Push is an alias for TryPush: spec.md's SPSC has no blocking push.
func (r *SPSC[T]) Push(value T) error { return r.TryPush(value) }

// TryPop pops the oldest value, or (zero, false) if the ring is empty.
func (r *SPSC[T]) TryPop() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	value := r.slots[head&r.mask]
	r.slots[head&r.mask] = zero
	r.head.Store(head + 1)
	return value, true
}

// Pop is an alias for TryPop: spec.md's SPSC has no blocking pop.
func (r *SPSC[T]) Pop() (T, bool) { return r.TryPop() }

// Capacity returns the ring's fixed capacity.
func (r *SPSC[T]) Capacity() uint64 { return r.capacity }

// Size returns the number of currently queued values.
func (r *SPSC[T]) Size() uint64 { return r.tail.Load() - r.head.Load() }

// Empty reports whether the ring holds no values.
func (r *SPSC[T]) Empty() bool { return r.Size() == 0 }

// Full reports whether the ring is at capacity.
func (r *SPSC[T]) Full() bool { return r.Size() >= r.capacity }

// Clear drops all queued values without resetting sequence counters.
func (r *SPSC[T]) Clear() {
	var zero T
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head == tail {
			return
		}
		r.slots[head&r.mask] = zero
		r.head.Store(head + 1)
	}
}

// Reset drops all queued values and rewinds head/tail to zero. Callers
// must guarantee no concurrent Push/Pop is in flight.
func (r *SPSC[T]) Reset() {
	var zero T
	for i := range r.slots {
		r.slots[i] = zero
	}
	r.head.Store(0)
	r.tail.Store(0)
}
