package ring

import (
	"sync"

	"github.com/coriolis-labs/corerun/lockdepth"
)

// Guard is an RAII-style scoped mutex for a caller that must externally
// serialize access to an Extensible ring (which, like
// eventloop.ChunkedIngress, is not internally synchronized). The zero
// value is ready to use: acquire with guard.Lock(fiber), release with
// defer guard.Unlock().
//
// Grounded on chimaera/corwlock.h's scoped RAII lock wrapper, same as
// memory/buddy.Guard.
type Guard struct {
	mu    sync.Mutex
	fiber any
	held  bool
}

// Lock acquires the guard on behalf of fiber (the caller's stable fiber
// identity, or nil outside a scheduled task).
func (g *Guard) Lock(fiber any) {
	g.mu.Lock()
	g.fiber = fiber
	g.held = true
	lockdepth.Inc(fiber)
}

// Unlock releases the guard. Safe to call more than once; only the first
// call after a matching Lock has an effect.
func (g *Guard) Unlock() {
	if !g.held {
		return
	}
	g.held = false
	lockdepth.Dec(g.fiber)
	g.fiber = nil
	g.mu.Unlock()
}
