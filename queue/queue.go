package queue

import (
	"context"
	"sync/atomic"

	"github.com/coriolis-labs/corerun/containers/multilane"
	"github.com/coriolis-labs/corerun/future"
	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/task"
)

// LaneHint steers a caller's routing preference for Enqueue. The zero
// value, AnyLane, lets the queue pick a lane deterministically from the
// pool ID; Hint pins the task to an explicit lane.
type LaneHint struct {
	lane     ids.LaneID
	explicit bool
}

// AnyLane requests the queue's default routing, hashing on the pool ID.
var AnyLane = LaneHint{}

// Hint pins routing to a specific lane.
func Hint(lane ids.LaneID) LaneHint { return LaneHint{lane: lane, explicit: true} }

// MultiLaneQueue is the task queue of spec.md §4.8: a fixed
// (lanes x priorities) grid of MPSC rings of *task.Task, with per-lane
// headers and a wake-up protocol for idle workers.
type MultiLaneQueue struct {
	lanes       []*Lane
	grid        *multilane.MultiLane[*task.Task]
	wake        WakeSet
	depCapacity int
	nextUnique  atomic.Uint64
}

// New builds a MultiLaneQueue with the given lane and priority counts,
// each priority ring sized to ringCapacity (a power of two).
// depCapacity bounds each enqueued task's waiting-for dependency set.
func New(lanes, priorities int, ringCapacity uint64, depCapacity int) (*MultiLaneQueue, error) {
	grid, err := multilane.New[*task.Task](lanes, priorities, ringCapacity)
	if err != nil {
		return nil, err
	}
	wake, err := NewWakeSet(lanes)
	if err != nil {
		return nil, err
	}
	q := &MultiLaneQueue{
		lanes:       make([]*Lane, lanes),
		grid:        grid,
		wake:        wake,
		depCapacity: depCapacity,
	}
	for i := range q.lanes {
		q.lanes[i] = &Lane{ID: ids.LaneID(i)}
		q.lanes[i].active.Store(true)
	}
	return q, nil
}

// NumLanes reports the configured lane count.
func (q *MultiLaneQueue) NumLanes() int { return q.grid.Lanes() }

// NumPriorities reports the configured priority-level count.
func (q *MultiLaneQueue) NumPriorities() int { return q.grid.Priorities() }

// Lane exposes lane i's header for diagnostics and the worker loop's
// per-lane draining.
func (q *MultiLaneQueue) Lane(i int) *Lane { return q.lanes[i] }

// Wake exposes the queue's WakeSet, for a worker's idle-branch
// epoll_wait-equivalent.
func (q *MultiLaneQueue) Wake() WakeSet { return q.wake }

func (q *MultiLaneQueue) resolveLane(poolID ids.PoolID, hint LaneHint) int {
	if hint.explicit {
		return int(hint.lane) % q.grid.Lanes()
	}
	return int(poolID) % q.grid.Lanes()
}

func clampPriority(priority, priorities int) int {
	if priority < 0 {
		return 0
	}
	if priority >= priorities {
		return priorities - 1
	}
	return priority
}

// Enqueue allocates a task, pushes it into the (lane, priority) ring
// selected by hint (or by hashing poolID when hint is AnyLane), and
// returns a future the caller can poll or wait on. Priority is clamped
// into the configured range. If the lane's enqueued flag transitions
// 0->1, the lane's wake source is signalled per spec.md §4.8.
func (q *MultiLaneQueue) Enqueue(ctx context.Context, poolID ids.PoolID, hint LaneHint, priority int, methodID ids.MethodID, args task.Args) (*future.Future, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	lane := q.resolveLane(poolID, hint)
	priority = clampPriority(priority, q.grid.Priorities())

	id := ids.TaskID{Unique: q.nextUnique.Add(1)}
	t := task.New(id, poolID, methodID, ids.LaneID(lane), args, q.depCapacity)
	if !t.TryTransition(task.Allocated, task.Enqueued) {
		return nil, rterr.WrapFatal("queue.Enqueue", rterr.ErrWrongWorker)
	}

	ring := q.grid.GetLane(lane, priority)
	if err := ring.TryPush(t); err != nil {
		return nil, err
	}

	l := q.lanes[lane]
	l.pending.Add(1)
	if l.enqueued.CompareAndSwap(false, true) {
		if err := q.wake.Signal(lane); err != nil {
			return nil, err
		}
	}

	return future.New(t, nil, nil), nil
}

// Dequeue pops the next task from (lane, priority), for the lane's
// assigned worker only. Clears the lane's enqueued flag once the lane's
// total pending count, across every priority level, reaches zero.
func (q *MultiLaneQueue) Dequeue(lane, priority int) (*task.Task, bool) {
	ring := q.grid.GetLane(lane, priority)
	t, ok := ring.TryPop()
	if !ok {
		return nil, false
	}
	l := q.lanes[lane]
	if l.pending.Add(-1) <= 0 {
		l.enqueued.Store(false)
	}
	return t, true
}

// Reassign moves lane's ownership to worker. Permitted only when the
// lane is fully drained (pending count zero across all priorities), per
// spec.md §4.8.
func (q *MultiLaneQueue) Reassign(lane int, worker ids.WorkerID) error {
	l := q.lanes[lane]
	if l.pending.Load() != 0 {
		return rterr.ErrLaneNotDrained
	}
	l.setAssignedWorker(worker)
	return nil
}

// Close releases the queue's wake-up resources.
func (q *MultiLaneQueue) Close() error {
	return q.wake.Close()
}
