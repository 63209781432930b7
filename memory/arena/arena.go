// Package arena implements the arena allocator of spec.md §4.3: a thin
// wrapper over memory/heap that discards free, intended for
// initialization-time allocations reclaimed all at once via Reset.
//
// Grounded on sbl8-sublation/runtime/arena.go, which pre-plans all memory
// for a sublate graph at load time and never frees individual
// allocations — the same "one coarse reset" shape, generalized here from
// sublation's fixed neural-kernel buffers to arbitrary byte spans.
package arena

import "github.com/coriolis-labs/corerun/memory/heap"

// Arena hands out offsets from an underlying heap and never reclaims
// individual allocations; only a full Reset returns capacity.
type Arena struct {
	h *heap.Heap
}

// New wraps h in an Arena. Reset rewinds to the heap's own origin
// (h.Origin()), not to wherever its cursor stood at construction time.
func New(h *heap.Heap) *Arena {
	return &Arena{h: h}
}

// Allocate reserves n bytes. There is no corresponding Free.
func (a *Arena) Allocate(n uint64) (uint64, bool) {
	return a.h.Allocate(n)
}

// Reset rewinds the arena back to its origin, invalidating every prior
// allocation. Callers must guarantee nothing still references arena
// memory before calling Reset.
func (a *Arena) Reset() { a.h.Reset() }

// Remaining reports unallocated capacity.
func (a *Arena) Remaining() uint64 { return a.h.Remaining() }
