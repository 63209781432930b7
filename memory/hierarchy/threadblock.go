package hierarchy

// ThreadBlock is the fast-path, lock-free tier of spec.md §4.5: allocate
// and free require no coordination beyond the buddy allocator's own
// uncontended spinlock, since exactly one goroutine ever touches a given
// ThreadBlock (see SPEC_FULL.md §4's goroutine-local-block note).
type ThreadBlock struct {
	pb *ProcessBlock
	cb *chunkedBuddy
}

func newThreadBlock(pb *ProcessBlock, region []byte, unit uint64) *ThreadBlock {
	tb := &ThreadBlock{pb: pb}
	tb.cb = newChunkedBuddy(region, unit, pb.allocate)
	return tb
}

func (tb *ThreadBlock) allocate(n uint64) (uint64, bool) { return tb.cb.Allocate(n) }

func (tb *ThreadBlock) free(off, size uint64) bool { return tb.cb.Free(off, size) }
