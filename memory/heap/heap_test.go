package heap_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/memory/heap"
)

func TestHeap_AllocateAdvances(t *testing.T) {
	h := heap.New(0, 1024)
	off, ok := h.Allocate(64)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)

	off, ok = h.Allocate(64)
	require.True(t, ok)
	require.Equal(t, uint64(64), off)
}

func TestHeap_ZeroSizeFails(t *testing.T) {
	h := heap.New(0, 1024)
	_, ok := h.Allocate(0)
	require.False(t, ok)
}

func TestHeap_ExhaustionReturnsNull(t *testing.T) {
	h := heap.New(0, 128)
	_, ok := h.Allocate(128)
	require.True(t, ok)
	_, ok = h.Allocate(1)
	require.False(t, ok)
}

func TestHeap_ConcurrentAllocateNonOverlapping(t *testing.T) {
	h := heap.New(0, 1<<20)
	const n = 1000
	offs := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off, ok := h.Allocate(16)
			require.True(t, ok)
			offs[i] = off
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, off := range offs {
		require.False(t, seen[off], "offset %d double-allocated", off)
		seen[off] = true
	}
}

func TestHeap_Reset(t *testing.T) {
	h := heap.New(0, 128)
	h.Allocate(64)
	require.Equal(t, uint64(64), h.Cursor())
	h.Reset()
	require.Equal(t, uint64(0), h.Cursor())
	off, ok := h.Allocate(128)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)
}
