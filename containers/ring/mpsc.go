package ring

import (
	"runtime"
	"sync/atomic"

	"github.com/coriolis-labs/corerun/rterr"
)

type mpscSlot[T any] struct {
	sequence atomic.Uint64
	value    T
}

// MPSC is a fixed-capacity multi-producer single-consumer ring buffer.
// Producers race on tail via CAS (Vyukov-style, per-slot sequence
// numbers make partial writes invisible to the consumer); the single
// consumer needs no CAS on head since it never contends with itself.
type MPSC[T any] struct {
	capacity uint64
	mask     uint64
	slots    []mpscSlot[T]

	head atomic.Uint64
	tail atomic.Uint64
}

// NewMPSC builds an MPSC ring of the given power-of-two capacity.
func NewMPSC[T any](capacity uint64) (*MPSC[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, rterr.WrapFatal("ring.NewMPSC", rterr.ErrZeroSize)
	}
	slots := make([]mpscSlot[T], capacity)
	for i := range slots {
		slots[i].sequence.Store(uint64(i))
	}
	return &MPSC[T]{capacity: capacity, mask: capacity - 1, slots: slots}, nil
}

// TryPush claims the next slot via CAS and publishes value, or returns
// rterr.ErrNoSpace if the ring is full. Safe for any number of
// concurrent callers.
func (r *MPSC[T]) TryPush(value T) error {
	for {
		pos := r.tail.Load()
		slot := &r.slots[pos&r.mask]
		seq := slot.sequence.Load()
		delta := int64(seq) - int64(pos)

		switch {
		case delta == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				slot.value = value
				slot.sequence.Store(pos + 1) // publish: makes the write visible
				return nil
			}
		case delta < 0:
			return rterr.ErrNoSpace
		default:
			runtime.Gosched()
		}
	}
}

func (r *MPSC[T]) Push(value T) error { return r.TryPush(value) }

// TryPop reads the next completed cell in sequence order. Only the
// consumer may call this; concurrent calls are not safe.
func (r *MPSC[T]) TryPop() (T, bool) {
	var zero T
	pos := r.head.Load()
	slot := &r.slots[pos&r.mask]
	seq := slot.sequence.Load()
	if seq != pos+1 {
		return zero, false // producer hasn't published yet, or ring is empty
	}
	value := slot.value
	slot.value = zero
	slot.sequence.Store(pos + r.capacity)
	r.head.Store(pos + 1)
	return value, true
}

func (r *MPSC[T]) Pop() (T, bool) { return r.TryPop() }

func (r *MPSC[T]) Capacity() uint64 { return r.capacity }

func (r *MPSC[T]) Size() uint64 {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail < head {
		return 0
	}
	return tail - head
}

func (r *MPSC[T]) Empty() bool { return r.Size() == 0 }

func (r *MPSC[T]) Full() bool { return r.Size() >= r.capacity }

// Clear drains the ring from the consumer side. Not safe to call
// concurrently with producers expecting FIFO delivery of in-flight pushes.
func (r *MPSC[T]) Clear() {
	for {
		if _, ok := r.TryPop(); !ok {
			return
		}
	}
}

// Reset rewinds the ring to its initial empty state. Callers must
// guarantee no concurrent Push/Pop is in flight.
func (r *MPSC[T]) Reset() {
	var zero T
	for i := range r.slots {
		r.slots[i].value = zero
		r.slots[i].sequence.Store(uint64(i))
	}
	r.head.Store(0)
	r.tail.Store(0)
}
