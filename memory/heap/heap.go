// Package heap implements the bump-pointer heap of spec.md §4.2: the
// substrate every other allocator in corerun layers its own bookkeeping
// on top of. It has no free; callers that need to reclaim memory build an
// allocator (arena, buddy) around it.
package heap

import "sync/atomic"

// Heap is a bump-pointer allocator over [origin, origin+limit). Allocate
// atomically advances current by n and returns the pre-advance offset, or
// (0, false) if the request would exceed limit. Zero-size requests always
// fail per spec.md §8's boundary behavior (zero-size allocation returns
// null, not a valid pointer) — an offset of 0 for a non-empty heap can
// still be a valid allocation, so Heap reports success via the bool, not
// via a sentinel offset.
type Heap struct {
	origin  uint64
	limit   uint64
	current atomic.Uint64
}

// New creates a heap spanning [origin, origin+limit).
func New(origin, limit uint64) *Heap {
	h := &Heap{origin: origin, limit: limit}
	h.current.Store(origin)
	return h
}

// Allocate reserves n bytes, returning the offset of the reserved span and
// true, or (0, false) if n is zero or the heap is exhausted.
func (h *Heap) Allocate(n uint64) (uint64, bool) {
	if n == 0 {
		return 0, false
	}
	for {
		cur := h.current.Load()
		next := cur + n
		if next > h.origin+h.limit || next < cur { // overflow guard
			return 0, false
		}
		if h.current.CompareAndSwap(cur, next) {
			return cur, true
		}
	}
}

// Cursor returns the current bump-pointer offset.
func (h *Heap) Cursor() uint64 { return h.current.Load() }

// Origin returns the heap's starting offset.
func (h *Heap) Origin() uint64 { return h.origin }

// Limit returns the total capacity of the heap in bytes.
func (h *Heap) Limit() uint64 { return h.limit }

// Remaining returns the number of bytes not yet handed out.
func (h *Heap) Remaining() uint64 {
	return h.origin + h.limit - h.current.Load()
}

// Reset rewinds the cursor back to origin. Only safe when the caller can
// guarantee no live allocation still references bytes below the new
// cursor — used by arena.Arena.Reset, never called concurrently with
// Allocate.
func (h *Heap) Reset() { h.current.Store(h.origin) }
