package metrics_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coriolis-labs/corerun/metrics"
)

func TestEstCPUTime_ZeroIsFixedOverheadOnly(t *testing.T) {
	d := metrics.EstCPUTime(0, 0)
	require.Equal(t, 5*time.Microsecond, d)
}

func TestEstCPUTime_ScalesWithIOAndCompute(t *testing.T) {
	// 4 GiB at the assumed 4 GiB/s throughput should cost ~1 second of
	// I/O time, plus compute and the fixed overhead.
	d := metrics.EstCPUTime(4<<30, 1000)
	require.InDelta(t, float64(time.Second+time.Millisecond+5*time.Microsecond), float64(d), float64(time.Millisecond))
}

func TestPercentileEstimator_ConvergesOnUniform(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	est := metrics.NewPercentileEstimator(0.5)
	for i := 0; i < 10000; i++ {
		est.Update(r.Float64() * 100)
	}
	require.InDelta(t, 50.0, est.Quantile(), 5.0)
	require.Equal(t, 10000, est.Count())
}

func TestPercentileEstimator_FewSamples(t *testing.T) {
	est := metrics.NewPercentileEstimator(0.9)
	est.Update(1)
	est.Update(2)
	require.False(t, math.IsNaN(est.Quantile()))
}
