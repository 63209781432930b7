// Package ids defines the value-type identities shared across corerun's
// packages: PoolId, TaskId, WorkerId, LaneId and MethodId (spec.md §3).
// All are copyable, hashable and totally ordered.
package ids

import "fmt"

// PoolID identifies a named collection of containers bound to a pool.
type PoolID uint64

func (p PoolID) String() string { return fmt.Sprintf("pool:%d", uint64(p)) }

// PoolKind tags the family of task methods a pool exposes (spec.md §9's
// "tagged-union, not inheritance" note for polymorphism at the dispatch
// boundary). New pool kinds are added by extending this set, never by
// subclassing.
type PoolKind uint32

// WorkerID identifies one worker goroutine.
type WorkerID uint32

func (w WorkerID) String() string { return fmt.Sprintf("worker:%d", uint32(w)) }

// LaneID identifies one MPSC ring buffer within the task queue.
type LaneID uint32

func (l LaneID) String() string { return fmt.Sprintf("lane:%d", uint32(l)) }

// MethodID identifies a registered task method within a PoolKind.
type MethodID uint64

func (m MethodID) String() string { return fmt.Sprintf("method:%d", uint64(m)) }

// TaskID is (process, thread, sequence, replica, unique counter) per
// spec.md §3, packed into a comparable value type. "thread" here is the
// worker goroutine's stable index at allocation time, not an OS thread id
// (see SPEC_FULL.md §4's Go realization notes).
type TaskID struct {
	Process  uint32
	Thread   uint32
	Sequence uint64
	Replica  uint16
	Unique   uint64
}

func (t TaskID) String() string {
	return fmt.Sprintf("task:%d.%d.%d.%d.%d", t.Process, t.Thread, t.Sequence, t.Replica, t.Unique)
}

// Less gives TaskID a total order, primarily by Unique (a global monotonic
// counter), used only for deterministic test output and debug dumps — the
// scheduler itself never depends on task ordering across lanes.
func (t TaskID) Less(o TaskID) bool { return t.Unique < o.Unique }
