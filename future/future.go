// Package future implements the future handle of spec.md §3/§4.7: a
// typed handle over a task's completion flag and result, supporting
// poll, wait, and typed projection. Dropping a future never frees its
// task; reaping is an explicit, separate step.
//
// Grounded on eventloop/promise.go's Promise interface (State/Result/
// ToChannel), adapted from a fire-and-forget JS-style promise to a
// handle backed by a cooperatively-scheduled task.
package future

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/task"
)

// Future waits on a task's completion and transports its result.
type Future struct {
	t      *task.Task
	waiter *task.Task // the caller's own task, if invoked from within one
	sched  task.Scheduler
}

// New wraps t. If the caller is itself running inside a task on a
// worker, pass that task and its Scheduler so Wait cooperatively yields
// instead of busy-spinning; otherwise pass (nil, nil) and Wait falls
// back to spec.md §4.7's "busy-spins with an OS yield between polls".
func New(t *task.Task, waiter *task.Task, sched task.Scheduler) *Future {
	return &Future{t: t, waiter: waiter, sched: sched}
}

// Rebind returns a Future over the same underlying task, bound to a
// different (waiter, sched) pair. Method bodies use this to cooperatively
// wait on a future they enqueued themselves: pool.MethodFunc only hands
// them their own running task and scheduler, and a Future returned by
// queue.Enqueue always carries (nil, nil) since the original caller may
// not be running inside a task at all.
func (f *Future) Rebind(waiter *task.Task, sched task.Scheduler) *Future {
	return &Future{t: f.t, waiter: waiter, sched: sched}
}

// Poll returns immediately: (result, true) if the task has completed,
// otherwise (zero, false).
func (f *Future) Poll() (task.Result, bool) {
	if !f.t.IsComplete() {
		return task.Result{}, false
	}
	return f.t.Result(), true
}

// Wait blocks until the task completes, ctx is cancelled, or blockHint
// elapses as a polling hint (zero means wait indefinitely). If this
// Future was constructed with a backing worker task, Wait calls
// task.Wait on the caller's behalf so the scheduler's dependency
// accounting stays correct; otherwise it busy-spins with an OS
// scheduling yield between polls, per spec.md §4.7.
func (f *Future) Wait(ctx context.Context, blockHint time.Duration) (task.Result, error) {
	if f.waiter != nil && f.sched != nil {
		if err := f.t.Wait(f.sched, blockHint, f.waiter); err != nil {
			return task.Result{}, err
		}
		return f.t.Result(), nil
	}

	if blockHint <= 0 {
		select {
		case <-f.t.Done():
			return f.t.Result(), nil
		case <-ctx.Done():
			return task.Result{}, ctx.Err()
		}
	}

	deadline := time.Now().Add(blockHint)
	for {
		if f.t.IsComplete() {
			return f.t.Result(), nil
		}
		select {
		case <-ctx.Done():
			return task.Result{}, ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			return task.Result{}, rterr.ErrWouldBlock
		}
		runtime.Gosched()
	}
}

// Project waits for the future to settle and type-asserts the result's
// value to T. Returns an error if the wait fails, the task's result code
// is non-zero, or the value is not a T.
func Project[T any](ctx context.Context, f *Future, blockHint time.Duration) (T, error) {
	var zero T
	res, err := f.Wait(ctx, blockHint)
	if err != nil {
		return zero, err
	}
	if res.Code != 0 {
		return zero, errors.New("corerun: task completed with non-zero result code")
	}
	v, ok := res.Value.(T)
	if !ok {
		return zero, errors.New("corerun: future result value has an unexpected type")
	}
	return v, nil
}
