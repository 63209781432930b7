// Package task implements the task record and lifecycle of spec.md §3
// and §4.7: identity, routing, argument region, state machine,
// completion signaling, the waiting-for dependency set, and the
// est_cpu_time cost model used to order a worker's ready queue.
//
// Grounded on eventloop/state.go's atomic state machine and
// eventloop/promise.go's completion-flag-plus-fan-out pattern, adapted
// from an event-loop promise to a cooperatively-scheduled task record.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/metrics"
	"github.com/coriolis-labs/corerun/rterr"
)

// Task is one unit of scheduled work: identity, routing, and the
// cooperative-suspension contract (Yield/Wait/SignalComplete) a worker
// drives while running it.
type Task struct {
	ID     ids.TaskID
	Pool   ids.PoolID
	Method ids.MethodID
	Lane   ids.LaneID

	Args Args

	state stateMachine

	completion atomic.Uint32
	done       chan struct{}
	closeOnce  sync.Once

	resultMu sync.Mutex
	result   Result

	waitingFor *DependencySet

	ioSize    uint64
	computeUS uint64

	cancel atomic.Bool
}

// CodeCancelled is the result code Yield publishes when a task's cancel
// flag is set by the time its suspension returns, per spec.md §5's cooperative
// cancellation contract.
const CodeCancelled = -1

// New allocates a task record in state Allocated. depCapacity bounds
// the waiting-for set; spec.md's containers are preallocated, so a task
// that would need more concurrent dependencies than this should be
// restructured rather than grown unbounded.
func New(id ids.TaskID, pool ids.PoolID, method ids.MethodID, lane ids.LaneID, args Args, depCapacity int) *Task {
	return &Task{
		ID:         id,
		Pool:       pool,
		Method:     method,
		Lane:       lane,
		Args:       args,
		done:       make(chan struct{}),
		waitingFor: NewDependencySet(depCapacity),
	}
}

// State reports the task's current lifecycle state.
func (t *Task) State() State { return t.state.Load() }

// TryTransition attempts an atomic from->to lifecycle transition.
func (t *Task) TryTransition(from, to State) bool { return t.state.TryTransition(from, to) }

// SetTelemetry records the I/O and compute cost inputs EstCPUTime uses.
func (t *Task) SetTelemetry(ioSize, computeUS uint64) {
	t.ioSize = ioSize
	t.computeUS = computeUS
}

// EstCPUTime computes this task's estimated scheduling cost, spec.md
// §4.7's exact formula.
func (t *Task) EstCPUTime() time.Duration {
	return metrics.EstCPUTime(t.ioSize, t.computeUS)
}

// Yield is cooperative suspension: it must only be called from the
// worker running this task. It transitions Running -> Blocked, hands
// control to sched, and transitions back to Running once the worker
// resumes the fiber.
func (t *Task) Yield(sched Scheduler, blockHint time.Duration) error {
	if !t.state.TryTransition(Running, Blocked) {
		return rterr.WrapFatal("task.Yield", rterr.ErrYieldWhileBlocked)
	}
	sched.Suspend(blockHint)
	if t.cancel.Load() {
		_ = t.SignalComplete(Result{Code: CodeCancelled, Value: rterr.ErrCancelled})
		return rterr.ErrCancelled
	}
	t.state.Store(Running)
	return nil
}

// Cancel sets the task's cooperative cancel flag. The task itself is
// unaffected until its next suspension returns control to Yield, which
// then completes it with CodeCancelled instead of resuming, per spec.md
// §5: "setting a task's cancel flag causes its next suspension to
// complete it with Cancelled."
func (t *Task) Cancel() { t.cancel.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancel.Load() }

// Wait suspends the calling task until this task's completion flag is
// non-zero, re-checking after every resume. waiter is the task running
// on sched, the one that suspends: if non-nil, this task's ID is
// appended to the waiter's dependency set before the first suspension,
// so the waiter's dependency accounting reflects the wait, and every
// suspension goes through waiter.Yield. With a nil waiter, Wait calls
// sched.Suspend directly without any state transition.
func (t *Task) Wait(sched Scheduler, blockHint time.Duration, waiter *Task) error {
	if t.completion.Load() != 0 {
		return nil
	}
	if waiter != nil {
		if err := waiter.waitingFor.Add(t.ID); err != nil {
			return err
		}
		defer waiter.waitingFor.Remove(t.ID)
	}
	for t.completion.Load() == 0 {
		if waiter == nil {
			sched.Suspend(blockHint)
			continue
		}
		if err := waiter.Yield(sched, blockHint); err != nil {
			return err
		}
	}
	return nil
}

// SignalComplete writes the result, publishes the completion flag with
// release semantics (Go's atomic store already provides this), and
// unparks anything waiting on Done().
func (t *Task) SignalComplete(result Result) error {
	if !t.completion.CompareAndSwap(0, 1) {
		return rterr.WrapFatal("task.SignalComplete", rterr.ErrDoubleComplete)
	}
	t.resultMu.Lock()
	t.result = result
	t.resultMu.Unlock()
	t.closeOnce.Do(func() { close(t.done) })
	t.state.Store(Complete)
	return nil
}

// IsComplete reports whether the completion flag has been published.
func (t *Task) IsComplete() bool { return t.completion.Load() != 0 }

// Done returns a channel closed once SignalComplete has run, for
// callers that can afford to block on it (e.g. future.Wait without a
// backing worker task).
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the published result. Only meaningful after IsComplete
// reports true.
func (t *Task) Result() Result {
	t.resultMu.Lock()
	defer t.resultMu.Unlock()
	return t.result
}

// WaitingFor exposes this task's dependency set, e.g. for diagnostics.
func (t *Task) WaitingFor() *DependencySet { return t.waitingFor }

// Reap transitions a completed task to its terminal Reaped state.
// Callers must not touch the task afterward.
func (t *Task) Reap() error {
	if !t.state.TryTransition(Complete, Reaped) {
		return rterr.ErrAlreadyReaped
	}
	return nil
}
