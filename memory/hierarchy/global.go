package hierarchy

import (
	"sync"

	"github.com/coriolis-labs/corerun/containers/slist"
	"github.com/coriolis-labs/corerun/memory/buddy"
	"github.com/coriolis-labs/corerun/memory/heap"
)

// chunkRecord is one entry in a process's chunk registry: the offset and
// size of a span the global pool handed to that process, needed so
// teardown (or crash reclaim) can return every chunk without the caller
// having to remember what it was given.
type chunkRecord struct {
	link      slist.Link
	off, size uint64
}

func (c *chunkRecord) Link() *slist.Link { return &c.link }

// processRegistry tracks the chunks one process has been handed, as a
// containers/slist over a private, append-only node pool. This is
// SPEC_FULL.md's realization of the original hermes_shm allocator's
// per-process block list: it lets Global.ReleaseProcess return every
// chunk a (possibly crashed) process held, identified only by PID.
type processRegistry struct {
	nodes []chunkRecord
	list  *slist.List
}

func newProcessRegistry() *processRegistry {
	r := &processRegistry{}
	r.list = slist.New(nil, r.decode)
	return r
}

func (r *processRegistry) decode(off uint64) slist.Node {
	return &r.nodes[off/8-1]
}

func (r *processRegistry) offsetOf(i int) uint64 { return uint64(i+1) * 8 }

func (r *processRegistry) record(off, size uint64) {
	r.nodes = append(r.nodes, chunkRecord{off: off, size: size})
	r.list.EmplaceFront(r.offsetOf(len(r.nodes) - 1))
}

// Global is the slow-path, global-lock tier of spec.md §4.5: one buddy
// allocator over the entire backend, plus a per-process chunk registry
// so process-block teardown (or crash reclaim) can return everything a
// process was holding.
type Global struct {
	mu    sync.Mutex
	b     *buddy.Allocator
	byPID map[uint32]*processRegistry
}

func newGlobal(h *heap.Heap, region []byte) *Global {
	return &Global{b: buddy.New(h, region), byPID: make(map[uint32]*processRegistry)}
}

// Allocate serves a request directly from the global buddy allocator,
// bypassing per-process bookkeeping. Used for the top-level "last
// resort" path and for tests that exercise the global tier directly.
func (g *Global) Allocate(n uint64) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.b.Allocate(n)
}

func (g *Global) Free(off, size uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.b.Free(off, size)
}

// requestChunk allocates size bytes from the global buddy and records
// the span against pid's registry, so it can be reclaimed later even if
// pid never frees it explicitly.
func (g *Global) requestChunk(pid uint32, size uint64) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	off, ok := g.b.Allocate(size)
	if !ok {
		return 0, false
	}
	reg, exists := g.byPID[pid]
	if !exists {
		reg = newProcessRegistry()
		g.byPID[pid] = reg
	}
	reg.record(off, size)
	return off, true
}

// ReleaseProcess returns every chunk registered to pid back to the
// global buddy allocator, then forgets pid's registry. Safe to call for
// a pid that was never registered (a no-op).
func (g *Global) ReleaseProcess(pid uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	reg, ok := g.byPID[pid]
	if !ok {
		return
	}
	for {
		off, ok := reg.list.PopFront()
		if !ok {
			break
		}
		rec := reg.nodes[off/8-1]
		g.b.Free(rec.off, rec.size)
	}
	delete(g.byPID, pid)
}
