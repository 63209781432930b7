package hierarchy

import (
	"github.com/coriolis-labs/corerun/memory/buddy"
	"github.com/coriolis-labs/corerun/memory/heap"
)

// chunkAlloc is one contiguous span obtained from a parent tier, managed
// by its own buddy allocator.
type chunkAlloc struct {
	origin, limit uint64
	b             *buddy.Allocator
}

func (c *chunkAlloc) contains(off uint64) bool { return off >= c.origin && off < c.limit }

// chunkedBuddy is the shape common to the thread-block and process-block
// tiers of spec.md §4.5: a growable list of buddy-managed chunks, each
// obtained on demand from a parent tier via grow. Allocate tries every
// owned chunk before requesting a new one, so steady-state allocation
// never touches the parent at all.
type chunkedBuddy struct {
	region []byte
	unit   uint64
	grow   func(size uint64) (uint64, bool)
	chunks []*chunkAlloc
}

func newChunkedBuddy(region []byte, unit uint64, grow func(uint64) (uint64, bool)) *chunkedBuddy {
	return &chunkedBuddy{region: region, unit: unit, grow: grow}
}

func (c *chunkedBuddy) Allocate(n uint64) (uint64, bool) {
	for _, ca := range c.chunks {
		if off, ok := ca.b.Allocate(n); ok {
			return off, true
		}
	}

	size := c.unit
	if n > size {
		size = n
	}
	off, ok := c.grow(size)
	if !ok {
		return 0, false
	}

	h := heap.New(off, size)
	var sub []byte
	if c.region != nil {
		sub = c.region[off : off+size]
	}
	ca := &chunkAlloc{origin: off, limit: off + size, b: buddy.New(h, sub)}
	c.chunks = append(c.chunks, ca)
	return ca.b.Allocate(n)
}

// Free returns true if off fell within one of this tier's own chunks.
func (c *chunkedBuddy) Free(off, size uint64) bool {
	for _, ca := range c.chunks {
		if ca.contains(off) {
			ca.b.Free(off, size)
			return true
		}
	}
	return false
}
