package lockdepth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/lockdepth"
)

func TestLockDepth_IncDecTracksNesting(t *testing.T) {
	fiber := "fiber-a"
	require.Equal(t, 0, lockdepth.Get(fiber))
	require.Equal(t, 1, lockdepth.Inc(fiber))
	require.Equal(t, 2, lockdepth.Inc(fiber))
	require.Equal(t, 2, lockdepth.Get(fiber))
	require.Equal(t, 1, lockdepth.Dec(fiber))
	require.Equal(t, 0, lockdepth.Dec(fiber))
	require.Equal(t, 0, lockdepth.Get(fiber))
}

func TestLockDepth_NilFiberIsNoop(t *testing.T) {
	require.Equal(t, 0, lockdepth.Inc(nil))
	require.Equal(t, 0, lockdepth.Get(nil))
	require.Equal(t, 0, lockdepth.Dec(nil))
}

func TestLockDepth_IndependentFibersDoNotInterfere(t *testing.T) {
	a, b := "fiber-a2", "fiber-b2"
	lockdepth.Inc(a)
	lockdepth.Inc(a)
	lockdepth.Inc(b)
	require.Equal(t, 2, lockdepth.Get(a))
	require.Equal(t, 1, lockdepth.Get(b))
	lockdepth.Dec(a)
	lockdepth.Dec(a)
	lockdepth.Dec(b)
}
