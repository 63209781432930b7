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

// TestWorker_HigherPriorityDrainsFirst exercises spec.md §8's priority
// ordering: a lower est_cpu_time or higher-priority ring is fully
// admitted into ready ahead of a lower-priority one queued earlier,
// since admit walks priority levels from 0 (highest, per this
// realization's Open Question decision) up.
func TestWorker_HigherPriorityDrainsFirst(t *testing.T) {
	q := newTestQueue(t, 1, 2)
	registry := pool.NewRegistry()
	registry.RegisterPool(testPool, testKind)

	order := make(chan int, 2)
	require.NoError(t, registry.RegisterMethod(testKind, ids.MethodID(1), func(ctx context.Context, tk *task.Task, sched task.Scheduler) (task.Result, error) {
		order <- int(tk.Args.Inline[0])
		return task.Result{Code: 0}, nil
	}))

	// Enqueue the low-priority task first, then the high-priority one, to
	// confirm priority (not arrival order) governs admission order.
	_, err := q.Enqueue(context.Background(), testPool, queue.AnyLane, 1, ids.MethodID(1), task.Args{Inline: []byte{1}})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), testPool, queue.AnyLane, 0, ids.MethodID(1), task.Args{Inline: []byte{0}})
	require.NoError(t, err)

	w := worker.New(ids.WorkerID(0), q, registry, nil, []int{0}, 4)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := runInBackground(t, ctx, w)

	require.Equal(t, 0, <-order)
	require.Equal(t, 1, <-order)

	w.Stop()
	require.NoError(t, <-done)
}
