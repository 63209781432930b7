// Package queue implements the multi-lane task queue of spec.md §4.8:
// a fixed-shape (lanes x priorities) grid of MPSC ring buffers, lane
// headers tracking pending count and the enqueued flag, and the
// wake-up-fd protocol a worker's idle branch blocks on.
package queue

import "time"

// WakeSet is the wake-up protocol of spec.md §6: producers signal a
// lane transitioning empty->non-empty, and a worker blocks on Wait
// across all its lanes' wake sources in its idle branch, waking with
// the set of lanes that became ready.
//
// Grounded on eventloop/wakeup_linux.go's per-fd eventfd creation and
// eventloop/poller_linux.go's epoll registration/wait shape (Linux);
// the non-Linux fallback trades the real fd-based wake source for a
// sync.Cond broadcast, since this kernel's wake-up contract only needs
// to unblock a waiting goroutine, not multiplex real OS file
// descriptors.
type WakeSet interface {
	// Signal marks lane as having new work, waking anyone blocked in
	// Wait. Safe to call from multiple producer goroutines concurrently.
	Signal(lane int) error

	// Wait blocks until at least one lane has been signalled since the
	// last Wait call, timeout elapses, or the WakeSet is closed, returning
	// the set of lanes that became ready. timeout <= 0 waits indefinitely.
	Wait(timeout time.Duration) ([]int, error)

	// Close releases the WakeSet's resources. Subsequent Wait calls
	// return immediately with a nil, nil result.
	Close() error
}
