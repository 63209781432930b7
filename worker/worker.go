// Package worker implements the worker loop and fiber pool of spec.md
// §4.9: draining owned lanes into a ready set ordered by est_cpu_time,
// resuming fibers cooperatively, moving blocked tasks back to ready once
// they unblock, and parking on the queue's wake-set when idle.
//
// Grounded on SPEC_FULL.md §4's Go realization of "OS thread" and
// "fiber": a worker is one goroutine, a fiber is a pooled
// goroutine+channel-pair rendezvous replacing swapcontext, and the
// eventloop teacher's own reach for exactly this pattern
// (eventloop.Loop's microtask/timer handoff, promise.go's continuation
// chaining) rather than raw stack manipulation.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/memory/hierarchy"
	"github.com/coriolis-labs/corerun/metrics"
	"github.com/coriolis-labs/corerun/pool"
	"github.com/coriolis-labs/corerun/queue"
	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/rtlog"
	"github.com/coriolis-labs/corerun/task"
)

// latencyQuantile is the target quantile every per-lane
// metrics.PercentileEstimator tracks, chosen to surface tail latency
// rather than the (already visible via est_cpu_time) median.
const latencyQuantile = 0.99

// defaultSpinLimit bounds how many uncontended polling iterations the
// idle branch performs before parking on the wake-set, trading a little
// CPU for avoiding a park/wake round trip on bursty workloads where the
// next task typically arrives within microseconds.
//
// Grounded on hermes_shm/util/timer_thread.h and
// chimaera/integer_timer.h's counter-based timers, adapted from
// "measure elapsed integer ticks" to "count bounded spin iterations"
// since Go exposes no raw cycle counter without a syscall.
const defaultSpinLimit = 64

// Option configures a Worker at construction.
type Option func(*Worker)

// WithLogger overrides the worker's logger (default rtlog.Default()).
func WithLogger(l rtlog.Logger) Option {
	return func(w *Worker) { w.log = l }
}

// WithSpinLimit overrides the idle-branch spin bound.
func WithSpinLimit(n int) Option {
	return func(w *Worker) { w.spinLimit = n }
}

// WithInvariantViolationHook overrides worker.Panic's hook, called after
// logging a fatal invariant violation at rtlog.LevelFatal. Defaults to
// panic(err), per spec.md §7.5's "non-recoverable by design".
func WithInvariantViolationHook(fn func(*rterr.Fatal)) Option {
	return func(w *Worker) { w.onViolation = fn }
}

// WithNoProgressHook installs a callback invoked once per Run iteration
// in which the worker had ready or blocked tasks but completed none of
// them, per spec.md §4.9's diagnostic surface for a hot-looping
// misbehaving pool. cycles counts consecutive such iterations, reset to
// zero the moment the worker makes progress again; the hook itself
// decides whether and how often to actually log, typically by rate
// limiting on id.
func WithNoProgressHook(fn func(id ids.WorkerID, cycles int)) Option {
	return func(w *Worker) { w.onNoProgress = fn }
}

type inflight struct {
	fiber   *fiberSlot
	rc      *RunContext
	started time.Time
}

// Worker runs the cooperative fiber scheduler of spec.md §4.9 over the
// lanes it owns.
type Worker struct {
	id       ids.WorkerID
	q        *queue.MultiLaneQueue
	registry *pool.Registry
	alloc    *hierarchy.Allocator
	lanes    []int

	fibers  *fiberPool
	ready   []*task.Task
	blocked map[*task.Task]inflight

	log         rtlog.Logger
	spinLimit   int
	onViolation func(*rterr.Fatal)
	onNoProgress func(id ids.WorkerID, cycles int)
	noProgress   int

	laneLatencyMu sync.Mutex
	laneLatency   map[ids.LaneID]*metrics.PercentileEstimator

	stopping atomic.Bool
}

// New builds a Worker owning lanes (indices into q), with a fiber pool
// sized stacksPerWorker.
func New(id ids.WorkerID, q *queue.MultiLaneQueue, registry *pool.Registry, alloc *hierarchy.Allocator, lanes []int, stacksPerWorker int, opts ...Option) *Worker {
	w := &Worker{
		id:          id,
		q:           q,
		registry:    registry,
		alloc:       alloc,
		lanes:       lanes,
		fibers:      newFiberPool(stacksPerWorker),
		blocked:     make(map[*task.Task]inflight),
		log:         rtlog.Default(),
		spinLimit:   defaultSpinLimit,
		laneLatency: make(map[ids.LaneID]*metrics.PercentileEstimator, len(lanes)),
	}
	for _, l := range lanes {
		w.laneLatency[ids.LaneID(l)] = metrics.NewPercentileEstimator(latencyQuantile)
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.onViolation == nil {
		w.onViolation = func(f *rterr.Fatal) { panic(f) }
	}
	for _, l := range lanes {
		_ = q.Reassign(l, id)
	}
	return w
}

// ID reports this worker's identity.
func (w *Worker) ID() ids.WorkerID { return w.id }

// Lanes reports the lane indices this worker owns.
func (w *Worker) Lanes() []int { return w.lanes }

// Stop requests that the worker drain its blocked tasks and return from
// Run without admitting further work. Safe to call from any goroutine.
func (w *Worker) Stop() { w.stopping.Store(true) }

// Run drives the worker loop until ctx is cancelled or Stop is called
// and every blocked task has drained, per spec.md §4.9's "if stopping:
// drain blocked, exit" and the normal-stop condition "an empty queue
// plus a closed signal fd".
func (w *Worker) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			w.stopping.Store(true)
		}

		if w.stopping.Load() {
			if len(w.blocked) == 0 {
				return nil
			}
			w.resumeBlockedOnce(ctx)
			continue
		}

		w.admit()
		w.sortReady()

		didWork := w.runReady(ctx)
		w.resumeBlockedOnce(ctx)

		switch {
		case !didWork && len(w.ready) == 0 && len(w.blocked) == 0:
			w.noProgress = 0
			w.idleWait(ctx)
		case !didWork:
			// Ready or blocked tasks exist but none completed this
			// cycle: a livelocked dependency chain or a method stuck
			// spinning inside Suspend. Surfaced via onNoProgress rather
			// than logged directly here, so the caller (typically
			// orchestrator) can rate-limit it.
			w.noProgress++
			if w.onNoProgress != nil {
				w.onNoProgress(w.id, w.noProgress)
			}
		default:
			w.noProgress = 0
		}
	}
}

// admit drains every owned lane, highest priority first, pushing
// dequeued tasks onto ready. Priority index 0 is highest, per this
// realization's chosen convention (spec.md §4.8 leaves the numeric
// direction unspecified; recorded as an Open Question decision in
// DESIGN.md).
func (w *Worker) admit() {
	priorities := w.q.NumPriorities()
	for _, lane := range w.lanes {
		for prio := 0; prio < priorities; prio++ {
			for {
				t, ok := w.q.Dequeue(lane, prio)
				if !ok {
					break
				}
				w.ready = append(w.ready, t)
			}
		}
	}
}

// sortReady stably orders ready by est_cpu_time ascending, per spec.md
// §4.9's scheduling policy.
func (w *Worker) sortReady() {
	slices.SortStableFunc(w.ready, func(a, b *task.Task) int {
		da, db := a.EstCPUTime(), b.EstCPUTime()
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		default:
			return 0
		}
	})
}

// runReady pops and resumes every ready task once. A task that
// completes on this entry is released and reported as work done; a task
// that blocks is moved into the blocked set. Returns whether any task
// completed this pass.
func (w *Worker) runReady(ctx context.Context) bool {
	didWork := false
	for len(w.ready) > 0 {
		t := w.ready[0]
		w.ready = w.ready[1:]

		fiber, ok := w.fibers.tryCheckout()
		if !ok {
			// Pool exhausted: put the task back and stop admitting new
			// entries this pass, so resumeBlockedOnce gets a chance to
			// free a slot before we try again next iteration.
			w.ready = append([]*task.Task{t}, w.ready...)
			break
		}

		start := time.Now()
		rc := &RunContext{fiber: fiber}
		w.dispatch(ctx, t, fiber, rc)

		if t.IsComplete() {
			w.finish(t, fiber, time.Since(start))
			didWork = true
		} else {
			w.blocked[t] = inflight{fiber: fiber, rc: rc, started: start}
		}
	}
	return didWork
}

// resumeBlockedOnce resumes every currently blocked task's fiber exactly
// once, per this realization's chosen simplification of spec.md §4.9's
// "for each t in blocked: if completion_condition_met(): move to ready":
// rather than tracking a completion-condition index back from a
// dependency's TaskID to its live *task.Task, every blocked fiber is
// unconditionally resumed once per pass, and the fiber's own re-check
// loop inside task.Wait (which holds a direct pointer to the dependency)
// decides whether to actually proceed or immediately re-suspend. This
// costs one extra context switch per still-blocked task per pass.
func (w *Worker) resumeBlockedOnce(ctx context.Context) {
	for t, inf := range w.blocked {
		inf.fiber.resume <- struct{}{}
		<-inf.fiber.yield
		if t.IsComplete() {
			delete(w.blocked, t)
			w.finish(t, inf.fiber, time.Since(inf.started))
		}
	}
}

// dispatch admits t onto fiber for the first time: it resolves and
// invokes the method in a new goroutine and blocks until that goroutine
// either completes or reaches its first suspension. Resuming an
// already-blocked task uses resumeBlockedOnce instead, which sends on
// fiber.resume directly since the goroutine is already parked inside
// RunContext.Suspend.
func (w *Worker) dispatch(ctx context.Context, t *task.Task, fiber *fiberSlot, rc *RunContext) {
	if !t.TryTransition(task.Enqueued, task.Running) {
		w.Panic(rterr.WrapFatal("worker.dispatch", rterr.ErrWrongWorker))
		return
	}
	go w.invoke(ctx, t, fiber, rc)
	<-fiber.yield
}

// invoke resolves and runs t's method body to completion, recovering a
// panic as a fatal invariant violation rather than crashing the whole
// process silently, then signals the worker exactly once more: either
// the method returned (t is now complete) or it yielded/blocked partway
// (handled by RunContext.Suspend's own send).
func (w *Worker) invoke(ctx context.Context, t *task.Task, fiber *fiberSlot, rc *RunContext) {
	defer func() {
		if r := recover(); r != nil {
			fatal, ok := r.(*rterr.Fatal)
			if !ok {
				fatal = rterr.WrapFatal("worker.invoke", fmt.Errorf("panic: %v", r))
			}
			if !t.IsComplete() {
				_ = t.SignalComplete(task.Result{Code: task.CodeCancelled, Value: fatal})
			}
			fiber.yield <- struct{}{}
			w.Panic(fatal)
		}
	}()

	fn, err := w.registry.Resolve(t.Pool, t.Method)
	var result task.Result
	if err != nil {
		result = task.Result{Code: -1, Value: err}
	} else {
		result, err = fn(ctx, t, rc)
		if err != nil && result.Value == nil {
			result.Value = err
		}
	}
	if !t.IsComplete() {
		_ = t.SignalComplete(result)
	}
	fiber.yield <- struct{}{}
}

// finish releases fiber back to the pool now that t has completed, and
// feeds latency (wall-clock time from dispatch to completion) into t's
// lane's PercentileEstimator for LaneLatencyP99.
func (w *Worker) finish(t *task.Task, fiber *fiberSlot, latency time.Duration) {
	w.recordLatency(t.Lane, latency)
	if w.alloc != nil {
		w.alloc.ReleaseThreadBlock(fiber)
	}
	w.fibers.release(fiber)
}

// recordLatency updates lane's streaming P99 estimator, a no-op for
// lanes this worker was not constructed to own.
func (w *Worker) recordLatency(lane ids.LaneID, latency time.Duration) {
	w.laneLatencyMu.Lock()
	defer w.laneLatencyMu.Unlock()
	if e, ok := w.laneLatency[lane]; ok {
		e.Update(float64(latency))
	}
}

// LaneLatencyP99 reports the current streaming P99 task-completion
// latency estimate for lane, and the number of samples it has seen so
// far. ok is false for a lane this worker does not own.
func (w *Worker) LaneLatencyP99(lane ids.LaneID) (p99 time.Duration, samples int, ok bool) {
	w.laneLatencyMu.Lock()
	defer w.laneLatencyMu.Unlock()
	e, found := w.laneLatency[lane]
	if !found {
		return 0, 0, false
	}
	return time.Duration(e.Quantile()), e.Count(), true
}

// idleWait is the worker's "epoll_wait(signal_fds, timeout)" branch: a
// short bounded spin across owned lanes (cheaper than a syscall round
// trip for bursty producers) before parking on the queue's wake-set.
func (w *Worker) idleWait(ctx context.Context) {
	hasWork := func() bool {
		for _, l := range w.lanes {
			if w.q.Lane(l).Pending() > 0 {
				return true
			}
		}
		return false
	}
	for i := 0; i < w.spinLimit; i++ {
		if hasWork() {
			return
		}
		runtime.Gosched()
	}

	timeout := 100 * time.Millisecond
	if ctx.Err() != nil {
		return
	}
	_, _ = w.q.Wake().Wait(timeout)
}

// Panic handles a fatal invariant violation (spec.md §7.5): it logs at
// rtlog.LevelFatal and calls the hook set by WithInvariantViolationHook,
// which defaults to panic and never silently continues.
func (w *Worker) Panic(err *rterr.Fatal) {
	w.log.Log(rtlog.LogEntry{
		Level:    rtlog.LevelFatal,
		Category: "worker",
		WorkerID: int64(w.id),
		Message:  "fatal invariant violation",
		Err:      err,
	})
	w.onViolation(err)
}
