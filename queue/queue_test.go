package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/queue"
	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/task"
)

func TestQueue_EnqueueDequeueFIFOWithinLanePriority(t *testing.T) {
	q, err := queue.New(2, 2, 8, 4)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(context.Background(), ids.PoolID(0), queue.Hint(0), 0, ids.MethodID(1), task.Args{})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		tk, ok := q.Dequeue(0, 0)
		require.True(t, ok)
		require.NotNil(t, tk)
	}
	_, ok := q.Dequeue(0, 0)
	require.False(t, ok)
}

func TestQueue_ProducerOverflowReturnsNoSpace(t *testing.T) {
	// spec.md §8 concrete scenario 3, applied to the queue's ring.
	q, err := queue.New(1, 1, 4, 4)
	require.NoError(t, err)
	defer q.Close()

	for i := 0; i < 4; i++ {
		_, err := q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
		require.NoError(t, err)
	}
	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.ErrorIs(t, err, rterr.ErrNoSpace)

	_, ok := q.Dequeue(0, 0)
	require.True(t, ok)

	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.NoError(t, err)
}

func TestQueue_LaneClearsEnqueuedFlagOnlyOnceFullyDrained(t *testing.T) {
	q, err := queue.New(1, 2, 8, 4)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 1, ids.MethodID(1), task.Args{})
	require.NoError(t, err)

	require.True(t, q.Lane(0).IsEnqueued())

	_, ok := q.Dequeue(0, 0)
	require.True(t, ok)
	require.True(t, q.Lane(0).IsEnqueued(), "lane still has a pending item in the other priority ring")

	_, ok = q.Dequeue(0, 1)
	require.True(t, ok)
	require.False(t, q.Lane(0).IsEnqueued())
}

func TestQueue_ReassignRequiresDrainedLane(t *testing.T) {
	q, err := queue.New(1, 1, 8, 4)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.NoError(t, err)

	err = q.Reassign(0, ids.WorkerID(2))
	require.ErrorIs(t, err, rterr.ErrLaneNotDrained)

	_, _ = q.Dequeue(0, 0)
	require.NoError(t, q.Reassign(0, ids.WorkerID(2)))
	require.Equal(t, ids.WorkerID(2), q.Lane(0).AssignedWorker())
}

// TestQueue_WorkerWakeUp is spec.md §8 concrete scenario 6: a worker idle
// in its wake-set wait is woken by a producer's enqueue within a bounded
// latency.
func TestQueue_WorkerWakeUp(t *testing.T) {
	q, err := queue.New(1, 1, 8, 4)
	require.NoError(t, err)
	defer q.Close()

	woken := make(chan []int, 1)
	go func() {
		lanes, err := q.Wake().Wait(2 * time.Second)
		require.NoError(t, err)
		woken <- lanes
	}()

	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	_, err = q.Enqueue(context.Background(), ids.PoolID(0), queue.AnyLane, 0, ids.MethodID(1), task.Args{})
	require.NoError(t, err)

	select {
	case lanes := <-woken:
		require.Contains(t, lanes, 0)
		require.Less(t, time.Since(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("worker was not woken within the bound")
	}

	tk, ok := q.Dequeue(0, 0)
	require.True(t, ok)
	require.NotNil(t, tk)
}
