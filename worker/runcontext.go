package worker

import (
	"time"

	"github.com/coriolis-labs/corerun/lockdepth"
	"github.com/coriolis-labs/corerun/rterr"
)

// RunContext implements task.Scheduler for one fiber's attachment to a
// task. Suspend is called from inside the task's own goroutine (via
// task.Yield/task.Wait), never from the worker loop: it hands control
// back to the worker by signalling the fiber's yield channel, then
// blocks until the worker sends a resume signal back on the fiber's
// resume channel.
type RunContext struct {
	fiber     *fiberSlot
	blockHint time.Duration
}

// Suspend implements task.Scheduler. It rejects a fiber that still
// holds a core lock (memory/buddy.Guard or containers/ring.Guard) via
// lockdepth, per spec.md §7.5's "yielding while already blocked" family
// of fatal invariant violations: panicking here unwinds through the
// running method into worker.invoke's recover, which routes it to
// worker.Panic.
func (rc *RunContext) Suspend(blockHint time.Duration) {
	if lockdepth.Get(rc.fiber) > 0 {
		panic(rterr.WrapFatal("worker.Suspend", rterr.ErrYieldWhileLocked))
	}
	rc.blockHint = blockHint
	rc.fiber.yield <- struct{}{}
	<-rc.fiber.resume
}

// BlockHint reports the most recent blockHint the running task passed to
// Suspend. Informational per spec.md §4.9: a worker may use it to decide
// whether to keep spinning through short blocks rather than parking the
// whole loop on the wake-set immediately.
func (rc *RunContext) BlockHint() time.Duration { return rc.blockHint }

// FiberKey returns the stable identity this run-context's fiber lends
// to memory/hierarchy's thread-block tier and lockdepth's nesting
// counter: the same value for every suspension of the same task, and
// released by the worker once the task completes.
func (rc *RunContext) FiberKey() any { return rc.fiber }
