package hierarchy

import "sync"

// ProcessBlock is the medium-path, one-lock tier of spec.md §4.5: the
// per-process owner of thread blocks. It holds its own chunk list
// (obtained process_unit-or-larger at a time from Global) and hands
// sub-chunks to exhausted thread blocks under mu.
type ProcessBlock struct {
	pid uint32
	mu  sync.Mutex
	cb  *chunkedBuddy

	threadMu     sync.RWMutex
	threadBlocks map[any]*ThreadBlock
}

func newProcessBlock(pid uint32, region []byte, unit uint64, global *Global) *ProcessBlock {
	pb := &ProcessBlock{pid: pid, threadBlocks: make(map[any]*ThreadBlock)}
	pb.cb = newChunkedBuddy(region, unit, func(size uint64) (uint64, bool) {
		return global.requestChunk(pid, size)
	})
	return pb
}

// allocate serves a chunk request from an exhausted thread block, under
// the process block's single lock.
func (pb *ProcessBlock) allocate(n uint64) (uint64, bool) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.cb.Allocate(n)
}

// free returns true if off belonged to one of this process block's own
// chunks (as opposed to some thread block's private sub-allocation).
func (pb *ProcessBlock) free(off, size uint64) bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.cb.Free(off, size)
}

// threadBlock returns the ThreadBlock for key, creating one on first use.
// key is the caller's stable per-fiber identity (SPEC_FULL.md §4: a
// *worker.fiberSlot pointer, never a goroutine id) — this is the Go
// realization of "thread-local block".
func (pb *ProcessBlock) threadBlock(key any, region []byte, threadUnit uint64) *ThreadBlock {
	pb.threadMu.RLock()
	tb, ok := pb.threadBlocks[key]
	pb.threadMu.RUnlock()
	if ok {
		return tb
	}

	pb.threadMu.Lock()
	defer pb.threadMu.Unlock()
	if tb, ok := pb.threadBlocks[key]; ok {
		return tb
	}
	tb = newThreadBlock(pb, region, threadUnit)
	pb.threadBlocks[key] = tb
	return tb
}

// forgetThreadBlock drops key's thread block, e.g. when a fiber slot is
// returned to its pool. It does not free the thread block's chunks —
// callers that want that must free every outstanding allocation first,
// or accept the leak (spec.md does not define fiber-teardown reclaim).
func (pb *ProcessBlock) forgetThreadBlock(key any) {
	pb.threadMu.Lock()
	defer pb.threadMu.Unlock()
	delete(pb.threadBlocks, key)
}

// allThreadBlocks returns a snapshot of currently registered thread
// blocks, used by Allocator.Free's fallback search.
func (pb *ProcessBlock) allThreadBlocks() []*ThreadBlock {
	pb.threadMu.RLock()
	defer pb.threadMu.RUnlock()
	out := make([]*ThreadBlock, 0, len(pb.threadBlocks))
	for _, tb := range pb.threadBlocks {
		out = append(out, tb)
	}
	return out
}
