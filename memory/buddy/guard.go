package buddy

import "github.com/coriolis-labs/corerun/lockdepth"

// Guard is an RAII-style scoped hold of an Allocator's internal lock,
// for a caller that needs to perform more than one Allocate/Free under a
// single critical section. Acquire with (*Allocator).Lock, release with
// defer guard.Unlock().
//
// Grounded on chimaera/comutex.h's ScopedCoMutex: Go has no destructor to
// run the release automatically, so Unlock must be deferred explicitly,
// but the depth bookkeeping that guard would otherwise hide is tracked
// here via lockdepth so a worker can detect a fiber yielding while it
// still holds this guard.
type Guard struct {
	a     *Allocator
	fiber any
	held  bool
}

// Lock acquires the allocator's lock on behalf of fiber (the caller's
// stable fiber identity, or nil if called outside a scheduled task) and
// returns a Guard. fiber's lock depth, visible via lockdepth.Get, is
// incremented until Unlock is called.
//
// The lock is not reentrant: Allocate/Free/Reallocate acquire it
// internally, so a caller must not call them on the same Allocator while
// already holding a Guard from it.
func (a *Allocator) Lock(fiber any) *Guard {
	a.lock.Lock()
	lockdepth.Inc(fiber)
	return &Guard{a: a, fiber: fiber, held: true}
}

// Unlock releases the guard. Safe to call more than once; only the first
// call has an effect.
func (g *Guard) Unlock() {
	if !g.held {
		return
	}
	g.held = false
	lockdepth.Dec(g.fiber)
	g.a.lock.Unlock()
}
