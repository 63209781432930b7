package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/pool"
	"github.com/coriolis-labs/corerun/queue"
	"github.com/coriolis-labs/corerun/task"
	"github.com/coriolis-labs/corerun/worker"
)

// TestWorker_CooperativeCancellation exercises spec.md §8 scenario 5 and
// the §5 cancellation contract: Cancel only takes effect at the task's
// next suspension, at which point task.Yield itself completes it with
// task.CodeCancelled rather than resuming it.
func TestWorker_CooperativeCancellation(t *testing.T) {
	q := newTestQueue(t, 1, 1)
	registry := pool.NewRegistry()
	registry.RegisterPool(testPool, testKind)

	started := make(chan *task.Task, 1)
	require.NoError(t, registry.RegisterMethod(testKind, ids.MethodID(1), func(ctx context.Context, tk *task.Task, sched task.Scheduler) (task.Result, error) {
		started <- tk
		for i := 0; i < 10_000; i++ {
			if err := tk.Yield(sched, time.Millisecond); err != nil {
				return task.Result{Code: task.CodeCancelled, Value: err}, err
			}
		}
		return task.Result{Code: 0, Value: "ran to completion"}, nil
	}))

	f, err := q.Enqueue(context.Background(), testPool, queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.NoError(t, err)

	w := worker.New(ids.WorkerID(0), q, registry, nil, []int{0}, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runInBackground(t, ctx, w)

	tk := <-started
	require.False(t, tk.Cancelled())
	tk.Cancel()

	res, err := f.Wait(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, task.CodeCancelled, res.Code)

	w.Stop()
	require.NoError(t, <-done)
}
