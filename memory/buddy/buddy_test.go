package buddy_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/lockdepth"
	"github.com/coriolis-labs/corerun/memory/buddy"
	"github.com/coriolis-labs/corerun/memory/heap"
)

func newAllocator(t *testing.T, size uint64) (*buddy.Allocator, []byte) {
	t.Helper()
	region := make([]byte, size)
	h := heap.New(0, size)
	return buddy.New(h, region), region
}

func TestBuddy_AllocateRoundsToClass(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	off, ok := a.Allocate(10)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)
	// A second allocation of the same rounded size must not overlap.
	off2, ok := a.Allocate(10)
	require.True(t, ok)
	require.NotEqual(t, off, off2)
}

func TestBuddy_FreeThenAllocateReusesSpan(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	off, ok := a.Allocate(buddy.MinClassSize)
	require.True(t, ok)
	a.Free(off, buddy.MinClassSize)

	off2, ok := a.Allocate(buddy.MinClassSize)
	require.True(t, ok)
	require.Equal(t, off, off2, "freed span should be the first candidate handed back out")
}

func TestBuddy_SplitOnMiss(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	// Force a large class to be split down to satisfy a small request.
	big, ok := a.Allocate(1024)
	require.True(t, ok)
	a.Free(big, 1024)

	small, ok := a.Allocate(buddy.MinClassSize)
	require.True(t, ok)
	require.GreaterOrEqual(t, small, uint64(0))
	require.Less(t, small, big+1024)
}

func TestBuddy_CoalesceOnFree(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	// Two minimum-class allocations that are buddies coalesce back into
	// one free span at the next class up, then satisfy a request for it.
	off1, ok := a.Allocate(buddy.MinClassSize)
	require.True(t, ok)
	off2, ok := a.Allocate(buddy.MinClassSize)
	require.True(t, ok)

	a.Free(off1, buddy.MinClassSize)
	a.Free(off2, buddy.MinClassSize)

	doubled, ok := a.Allocate(buddy.MinClassSize * 2)
	require.True(t, ok)
	lo := off1
	if off2 < lo {
		lo = off2
	}
	require.Equal(t, lo, doubled, "coalesced buddies should satisfy the next class up at the lower offset")
}

func TestBuddy_OversizeBypassesFreeLists(t *testing.T) {
	a, _ := newAllocator(t, 4<<20)
	off, ok := a.Allocate(buddy.MaxClassSize + 1)
	require.True(t, ok)
	// Free on an oversized span is a documented no-op; it must not panic
	// or corrupt the free lists.
	require.NotPanics(t, func() { a.Free(off, buddy.MaxClassSize+1) })
}

func TestBuddy_ReallocateCopiesAndFrees(t *testing.T) {
	a, region := newAllocator(t, 1<<16)
	off, ok := a.Allocate(16)
	require.True(t, ok)
	copy(a.Resolve(off, 16), []byte("hello, buddy!!!!"))

	newOff, err := a.Reallocate(off, 16, 64)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, buddy!!!!"), a.Resolve(newOff, 16))
	_ = region
}

func TestBuddy_FreeBytesPlusOutstandingEqualsReachable(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	const n = 8
	offs := make([]uint64, 0, n)
	sizes := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		size := uint64(buddy.MinClassSize << (i % 4))
		off, ok := a.Allocate(size)
		require.True(t, ok)
		offs = append(offs, off)
		sizes = append(sizes, size)
	}

	var outstanding uint64
	for i, off := range offs {
		if i%2 == 0 {
			a.Free(off, sizes[i])
			continue
		}
		outstanding += classRoundedSize(sizes[i])
	}

	require.Equal(t, a.ReachableBytes(), a.FreeBytes()+outstanding)
}

func classRoundedSize(n uint64) uint64 {
	size := uint64(buddy.MinClassSize)
	for size < n {
		size <<= 1
	}
	return size
}

func TestBuddy_GuardTracksLockDepth(t *testing.T) {
	a, _ := newAllocator(t, 1<<16)
	fiber := "fiber-guard"

	require.Equal(t, 0, lockdepth.Get(fiber))
	g := a.Lock(fiber)
	require.Equal(t, 1, lockdepth.Get(fiber))
	g.Unlock()
	require.Equal(t, 0, lockdepth.Get(fiber))

	// Unlock is idempotent.
	g.Unlock()
	require.Equal(t, 0, lockdepth.Get(fiber))
}
