// Package orchestrator owns the worker fleet lifecycle of spec.md §4.9's
// "Workers & Orchestrator" component and the orchestrator_init/
// orchestrator_start/orchestrator_stop external interface of spec.md §6:
// it splits the queue's lanes across a fixed set of workers, starts and
// stops them as a unit, and honors the CLI-facing guarantee that
// stop_runtime drains an admin pool's lanes before setting every
// worker's stop flag.
//
// Grounded on the eventloop teacher's single-loop-per-goroutine-plus-
// external-owner shape (eventloop.Loop is started and stopped by a
// caller that never touches its internals directly), generalized here
// from one loop to a fleet the Orchestrator starts and stops as a unit.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/memory/hierarchy"
	"github.com/coriolis-labs/corerun/pool"
	"github.com/coriolis-labs/corerun/queue"
	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/rtlog"
	"github.com/coriolis-labs/corerun/worker"
)

// Defaults for the queue construction parameters orchestrator_init's
// fixed three-argument signature (spec.md §6) leaves unspecified.
const (
	DefaultPriorities  = 4
	DefaultRingCap     = 1024
	DefaultDepCapacity = 8
)

// Option configures an Orchestrator at construction, mirroring
// worker.Option's plain closure shape.
type Option func(*Orchestrator)

// WithRegistry supplies the pool/module manager registry workers dispatch
// through. Defaults to a fresh, empty pool.NewRegistry(); callers that
// need to register pools before Start typically call WithRegistry with
// one they built themselves so they retain a handle to it.
func WithRegistry(r *pool.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// WithAllocator supplies the hierarchy.Allocator workers pass through to
// task methods for shared-memory allocation. Nil (the default) is valid:
// pools that never allocate need none.
func WithAllocator(a *hierarchy.Allocator) Option {
	return func(o *Orchestrator) { o.alloc = a }
}

// WithLogger overrides the orchestrator's own diagnostic logger and the
// one handed to every constructed worker. Defaults to rtlog.Default().
func WithLogger(l rtlog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithPriorities overrides the queue's priority-level count (default
// DefaultPriorities).
func WithPriorities(n int) Option {
	return func(o *Orchestrator) { o.priorities = n }
}

// WithRingCapacity overrides each priority ring's capacity (default
// DefaultRingCap).
func WithRingCapacity(n uint64) Option {
	return func(o *Orchestrator) { o.ringCapacity = n }
}

// WithDepCapacity overrides each task's dependency-set capacity (default
// DefaultDepCapacity).
func WithDepCapacity(n int) Option {
	return func(o *Orchestrator) { o.depCapacity = n }
}

// WithStacksPerWorker is an alias construction path for callers building
// an Orchestrator from a config.Config, where stacksPerWorker is one
// field among many rather than a positional Init argument; Init's own
// stacksPerWorker parameter always wins if both are supplied.
func WithStacksPerWorker(n int) Option {
	return func(o *Orchestrator) {
		if o.stacksPerWorker == 0 {
			o.stacksPerWorker = n
		}
	}
}

// WithAdminLanes marks lanes as the admin pool that stop_runtime drains
// before flipping every worker's stop flag, per spec.md §6's CLI
// contract. Defaults to lane 0 alone.
func WithAdminLanes(lanes ...int) Option {
	return func(o *Orchestrator) { o.adminLanes = append([]int(nil), lanes...) }
}

// WithWorkerOptions passes additional worker.Option values through to
// every worker.New call the Orchestrator makes, e.g.
// worker.WithInvariantViolationHook or worker.WithSpinLimit.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(o *Orchestrator) { o.workerOpts = append(o.workerOpts, opts...) }
}

// WithLimiterRates overrides the diagnostic-log throttle's sliding
// windows (see throttle.go). Defaults to defaultThrottleRates.
func WithLimiterRates(rates map[time.Duration]int) Option {
	return func(o *Orchestrator) { o.throttleRates = rates }
}

// Orchestrator owns a fixed fleet of workers over a shared
// queue.MultiLaneQueue, per spec.md §4.9 and the orchestrator_init/
// orchestrator_start/orchestrator_stop external interface of spec.md §6.
type Orchestrator struct {
	q        *queue.MultiLaneQueue
	registry *pool.Registry
	alloc    *hierarchy.Allocator
	log      rtlog.Logger
	throttle *diagLimiter

	workers    []*worker.Worker
	adminLanes []int
	workerOpts []worker.Option

	priorities      int
	ringCapacity    uint64
	depCapacity     int
	stacksPerWorker int

	throttleRates map[time.Duration]int

	started atomic.Bool
	stopped atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Init builds an Orchestrator over numWorkers workers evenly splitting
// lanes lanes, each worker owning a fiber pool of stacksPerWorker slots,
// per spec.md §6's orchestrator_init(num_workers, lanes,
// stacks_per_worker). It constructs and owns the underlying
// queue.MultiLaneQueue; queue sizing beyond lanes itself (priority
// levels, ring capacity, dependency capacity) is supplied via Option and
// defaults sanely when omitted.
func Init(numWorkers, lanes, stacksPerWorker int, opts ...Option) (*Orchestrator, error) {
	if numWorkers <= 0 || lanes <= 0 || stacksPerWorker <= 0 {
		return nil, rterr.WrapFatal("orchestrator.Init", rterr.ErrZeroSize)
	}

	o := &Orchestrator{
		registry:        pool.NewRegistry(),
		log:             rtlog.Default(),
		priorities:      DefaultPriorities,
		ringCapacity:    DefaultRingCap,
		depCapacity:     DefaultDepCapacity,
		stacksPerWorker: stacksPerWorker,
		adminLanes:      []int{0},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.throttle = newDiagLimiter(o.throttleRates)

	q, err := queue.New(lanes, o.priorities, o.ringCapacity, o.depCapacity)
	if err != nil {
		return nil, err
	}
	o.q = q

	o.workers = make([]*worker.Worker, 0, numWorkers)
	for i, laneSet := range splitLanes(lanes, numWorkers) {
		if len(laneSet) == 0 {
			continue
		}
		hookOpts := append(append([]worker.Option(nil), o.workerOpts...), o.diagnosticHooks(ids.WorkerID(i))...)
		w := worker.New(ids.WorkerID(i), o.q, o.registry, o.alloc, laneSet, o.stacksPerWorker, hookOpts...)
		o.workers = append(o.workers, w)
	}

	return o, nil
}

// splitLanes divides [0, lanes) into numWorkers contiguous, near-equal
// ranges, the remainder distributed one-per-worker starting from worker
// 0, mirroring the teacher's own even-split slicing idiom.
func splitLanes(lanes, numWorkers int) [][]int {
	out := make([][]int, numWorkers)
	base := lanes / numWorkers
	rem := lanes % numWorkers
	next := 0
	for i := 0; i < numWorkers; i++ {
		n := base
		if i < rem {
			n++
		}
		set := make([]int, 0, n)
		for j := 0; j < n; j++ {
			set = append(set, next)
			next++
		}
		out[i] = set
	}
	return out
}

// Registry returns the pool/module manager registry workers dispatch
// through, for a caller to register pools and methods before Start.
func (o *Orchestrator) Registry() *pool.Registry { return o.registry }

// Queue returns the underlying task queue, for callers that enqueue work
// directly rather than through a higher-level pool API.
func (o *Orchestrator) Queue() *queue.MultiLaneQueue { return o.q }

// Workers returns the constructed worker fleet, in worker-id order.
func (o *Orchestrator) Workers() []*worker.Worker { return o.workers }

// workerByID finds the worker owning id, or nil if none does. Called
// only from the throttled diagnostic path, so a linear scan over the
// (small) fleet is fine.
func (o *Orchestrator) workerByID(id ids.WorkerID) *worker.Worker {
	for _, w := range o.workers {
		if w.ID() == id {
			return w
		}
	}
	return nil
}

// Start launches every worker's Run loop on its own goroutine. Per
// spec.md §6's "start_runtime is idempotent under a one-shot guard",
// calling Start again after the first successful call is a no-op that
// returns nil rather than starting a second fleet.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(len(o.workers))
	for _, w := range o.workers {
		w := w
		go func() {
			defer o.wg.Done()
			if err := w.Run(runCtx); err != nil {
				o.log.Log(rtlog.LogEntry{
					Level:    rtlog.LevelError,
					Category: "orchestrator",
					WorkerID: int64(w.ID()),
					Message:  "worker exited with error",
					Err:      err,
				})
			}
		}()
	}
	return nil
}

// Stop implements spec.md §6's stop_runtime(grace_period_ms): it first
// waits, bounded by gracePeriod, for the admin lanes (see WithAdminLanes)
// to fully drain, then sets every worker's stop flag and waits the
// remaining grace period for the fleet to exit cleanly. If gracePeriod
// elapses before every worker has returned, Stop cancels the context
// passed to each worker's Run and waits unboundedly for the now-forced
// exit, returning rterr.ErrWouldBlock to signal the grace period was
// exceeded.
//
// Calling Stop before Start, or calling it more than once, is a no-op
// returning nil.
func (o *Orchestrator) Stop(ctx context.Context, gracePeriod time.Duration) error {
	if !o.started.Load() {
		return nil
	}
	if !o.stopped.CompareAndSwap(false, true) {
		return nil
	}

	deadline := time.Now().Add(gracePeriod)
	o.drainAdminLanes(ctx, deadline)

	for _, w := range o.workers {
		w.Stop()
	}

	exited := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(exited)
	}()

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-exited:
		return nil
	case <-timer.C:
		if o.cancel != nil {
			o.cancel()
		}
		<-exited
		return rterr.ErrWouldBlock
	case <-ctx.Done():
		if o.cancel != nil {
			o.cancel()
		}
		<-exited
		return ctx.Err()
	}
}

// drainAdminLanes blocks until every admin lane's pending count reaches
// zero or deadline passes, polling rather than requiring a dedicated
// signal since admin-pool draining is a one-shot shutdown step, not a hot
// path.
func (o *Orchestrator) drainAdminLanes(ctx context.Context, deadline time.Time) {
	const pollInterval = time.Millisecond
	for {
		drained := true
		for _, lane := range o.adminLanes {
			if lane < 0 || lane >= o.q.NumLanes() {
				continue
			}
			if o.q.Lane(lane).Pending() > 0 {
				drained = false
				break
			}
		}
		if drained || time.Now().After(deadline) || ctx.Err() != nil {
			return
		}
		time.Sleep(pollInterval)
	}
}
