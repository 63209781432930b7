package buddy

import (
	"runtime"
	"sync/atomic"
)

// spinlock is the "single spin lock" spec.md §4.4 says guards the buddy
// allocator's free lists by default. Go has no user-space spin primitive
// in the standard library, so this is a small TAS lock with a bounded
// Gosched backoff — the same shape as the CAS-retry loops throughout the
// retrieval pack's lock-free containers (Pam-La-jmt_for_mac's
// internal/async/ring_buffer.go backs off with runtime.Gosched() on CAS
// contention; this lock applies the identical backoff to lock acquisition
// instead of a lock-free slot claim).
type spinlock struct {
	held atomic.Bool
}

func (s *spinlock) Lock() {
	for i := 0; !s.held.CompareAndSwap(false, true); i++ {
		if i > 32 {
			runtime.Gosched()
			i = 0
		}
	}
}

func (s *spinlock) Unlock() {
	s.held.Store(false)
}
