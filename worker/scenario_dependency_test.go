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

// TestWorker_DependencyChainOnSameWorker exercises spec.md §8 scenario 2:
// a task's method enqueues a dependent task on the same queue/worker and
// cooperatively waits on it via future.Rebind. Without Rebind this would
// busy-spin inside the consumer's goroutine and never yield the fiber,
// starving the very worker that needs to run the producer: the deadlock
// future.Rebind exists to avoid.
func TestWorker_DependencyChainOnSameWorker(t *testing.T) {
	q := newTestQueue(t, 1, 1)
	registry := pool.NewRegistry()
	registry.RegisterPool(testPool, testKind)

	const (
		producerMethod = ids.MethodID(1)
		consumerMethod = ids.MethodID(2)
	)

	require.NoError(t, registry.RegisterMethod(testKind, producerMethod, func(ctx context.Context, tk *task.Task, sched task.Scheduler) (task.Result, error) {
		return task.Result{Code: 0, Value: 21}, nil
	}))

	require.NoError(t, registry.RegisterMethod(testKind, consumerMethod, func(ctx context.Context, tk *task.Task, sched task.Scheduler) (task.Result, error) {
		f, err := q.Enqueue(ctx, testPool, queue.AnyLane, 0, producerMethod, task.Args{})
		if err != nil {
			return task.Result{}, err
		}
		res, err := f.Rebind(tk, sched).Wait(ctx, time.Millisecond)
		if err != nil {
			return task.Result{}, err
		}
		return task.Result{Code: 0, Value: res.Value.(int) * 2}, nil
	}))

	f, err := q.Enqueue(context.Background(), testPool, queue.AnyLane, 0, consumerMethod, task.Args{})
	require.NoError(t, err)

	// Two fibers: the consumer occupies one while blocked, the producer
	// needs the other to run concurrently on the same worker.
	w := worker.New(ids.WorkerID(0), q, registry, nil, []int{0}, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := runInBackground(t, ctx, w)

	res, err := f.Wait(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 42, res.Value)

	w.Stop()
	require.NoError(t, <-done)
}
