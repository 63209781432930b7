package queue

import (
	"sync"
	"sync/atomic"

	"github.com/coriolis-labs/corerun/ids"
)

// Lane is the header spec.md §3 attaches to every task-queue lane: the
// assigned worker, a total pending count across all of the lane's
// priority rings, the enqueued flag a producer flips 0->1 to trigger a
// wake, and an active marker set when the queue is constructed
// (Reassign does not change it).
type Lane struct {
	ID ids.LaneID

	mu             sync.RWMutex
	assignedWorker ids.WorkerID

	pending  atomic.Int64
	enqueued atomic.Bool
	active   atomic.Bool
}

// AssignedWorker reports the worker currently owning this lane.
func (l *Lane) AssignedWorker() ids.WorkerID {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.assignedWorker
}

func (l *Lane) setAssignedWorker(w ids.WorkerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assignedWorker = w
}

// Pending reports the lane's total item count across all priority rings.
func (l *Lane) Pending() int64 { return l.pending.Load() }

// IsEnqueued reports whether the lane currently has a producer-visible
// non-empty flag set.
func (l *Lane) IsEnqueued() bool { return l.enqueued.Load() }

// Active reports the lane's active marker. queue.New sets it for every
// lane and nothing in this package clears it.
func (l *Lane) Active() bool { return l.active.Load() }
