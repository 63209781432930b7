package ring

// Extensible is a single-producer single-consumer ring buffer that grows
// by doubling instead of returning rterr.ErrNoSpace. Grounded on
// eventloop/ingress.go's ChunkedIngress: like that queue, Extensible is
// NOT internally synchronized — the caller supplies external
// serialization between producer and consumer, same contract the
// teacher documents for its ingress queues.
type Extensible[T any] struct {
	slots []T
	head  uint64
	tail  uint64
	count uint64
}

// NewExtensible builds an Extensible ring starting at the given
// power-of-two capacity (rounded up if not).
func NewExtensible[T any](initialCapacity uint64) *Extensible[T] {
	cap := uint64(2)
	for cap < initialCapacity {
		cap <<= 1
	}
	return &Extensible[T]{slots: make([]T, cap)}
}

func (r *Extensible[T]) mask() uint64 { return uint64(len(r.slots)) - 1 }

// Push appends value, growing the backing array first if full.
func (r *Extensible[T]) Push(value T) {
	if r.count == uint64(len(r.slots)) {
		r.grow()
	}
	r.slots[r.tail&r.mask()] = value
	r.tail++
	r.count++
}

// TryPush never fails for an Extensible ring; it exists so Extensible
// satisfies the same call shape as the fixed variants.
func (r *Extensible[T]) TryPush(value T) error {
	r.Push(value)
	return nil
}

func (r *Extensible[T]) grow() {
	newSlots := make([]T, len(r.slots)*2)
	for i := uint64(0); i < r.count; i++ {
		newSlots[i] = r.slots[(r.head+i)&r.mask()]
	}
	r.slots = newSlots
	r.head = 0
	r.tail = r.count
}

// TryPop pops the oldest value, or (zero, false) if empty.
func (r *Extensible[T]) TryPop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	value := r.slots[r.head&r.mask()]
	r.slots[r.head&r.mask()] = zero
	r.head++
	r.count--
	return value, true
}

func (r *Extensible[T]) Pop() (T, bool) { return r.TryPop() }

// Capacity reports the current backing array size (not a hard limit; it
// grows on demand).
func (r *Extensible[T]) Capacity() uint64 { return uint64(len(r.slots)) }

func (r *Extensible[T]) Size() uint64 { return r.count }

func (r *Extensible[T]) Empty() bool { return r.count == 0 }

// Full always reports false: Extensible grows instead of rejecting pushes.
func (r *Extensible[T]) Full() bool { return false }

func (r *Extensible[T]) Clear() {
	var zero T
	for i := uint64(0); i < r.count; i++ {
		r.slots[(r.head+i)&r.mask()] = zero
	}
	r.head, r.tail, r.count = 0, 0, 0
}

// Reset drops all values and shrinks the ring to the minimum capacity
// of 2, regardless of the capacity it was constructed with.
func (r *Extensible[T]) Reset() {
	r.slots = make([]T, 2)
	r.head, r.tail, r.count = 0, 0, 0
}
