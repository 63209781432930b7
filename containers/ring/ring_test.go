package ring_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/containers/ring"
	"github.com/coriolis-labs/corerun/rterr"
)

// TestSPSC_ProducerOverflow is spec.md §8 concrete scenario 3: fixed ring
// with capacity 4. Push five items; the fifth push returns NoSpace. After
// one pop, push succeeds and the restored sequence is 2,3,4,5.
func TestSPSC_ProducerOverflow(t *testing.T) {
	r, err := ring.NewSPSC[int](4)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		require.NoError(t, r.TryPush(i))
	}
	err = r.TryPush(5)
	require.True(t, errors.Is(err, rterr.ErrNoSpace))

	v, ok := r.TryPop()
	require.True(t, ok)
	require.Equal(t, 1, v)

	require.NoError(t, r.TryPush(5))

	var got []int
	for {
		v, ok := r.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, []int{2, 3, 4, 5}, got)
}

func TestSPSC_RejectsNonPowerOfTwo(t *testing.T) {
	_, err := ring.NewSPSC[int](3)
	require.Error(t, err)
}

func TestSPSC_EmptyFullSize(t *testing.T) {
	r, err := ring.NewSPSC[int](2)
	require.NoError(t, err)
	require.True(t, r.Empty())
	require.NoError(t, r.TryPush(1))
	require.NoError(t, r.TryPush(2))
	require.True(t, r.Full())
	require.Equal(t, uint64(2), r.Size())
	r.Clear()
	require.True(t, r.Empty())
}

func TestMPSC_ConcurrentProducersNoLoss(t *testing.T) {
	const producers = 8
	const perProducer = 500
	r, err := ring.NewMPSC[int](4096)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for r.TryPush(base+i) != nil {
					// spin until space frees; capacity comfortably exceeds total pushes.
				}
			}
		}(p * perProducer)
	}
	wg.Wait()

	seen := make(map[int]bool, producers*perProducer)
	for i := 0; i < producers*perProducer; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		require.False(t, seen[v], "value %d popped twice", v)
		seen[v] = true
	}
	_, ok := r.TryPop()
	require.False(t, ok)
}

func TestMPSC_FullReturnsNoSpace(t *testing.T) {
	r, err := ring.NewMPSC[int](2)
	require.NoError(t, err)
	require.NoError(t, r.TryPush(1))
	require.NoError(t, r.TryPush(2))
	err = r.TryPush(3)
	require.True(t, errors.Is(err, rterr.ErrNoSpace))
}

func TestExtensible_GrowsPastInitialCapacity(t *testing.T) {
	r := ring.NewExtensible[int](2)
	initial := r.Capacity()
	for i := 0; i < 100; i++ {
		r.Push(i)
	}
	require.Greater(t, r.Capacity(), initial)
	require.Equal(t, uint64(100), r.Size())

	for i := 0; i < 100; i++ {
		v, ok := r.TryPop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.True(t, r.Empty())
}

func TestGuard_ExternallySerializesExtensiblePushPop(t *testing.T) {
	r := ring.NewExtensible[int](2)
	var g ring.Guard

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			g.Lock(nil)
			defer g.Unlock()
			r.Push(v)
		}(i)
	}
	wg.Wait()

	require.Equal(t, uint64(50), r.Size())
}
