// Package metrics implements the telemetry formulas and streaming
// estimators spec.md §4.7 and SPEC_FULL.md's ambient stack call for:
// the worker's est_cpu_time cost model, and a P² percentile estimator
// the worker uses to track per-lane task completion latency.
package metrics

import "time"

// bytesPerSecondIO is the assumed I/O throughput the est_cpu_time
// formula charges against, spec.md §4.7: 4 GiB/s.
const bytesPerSecondIO = 4 << 30

// fixedOverhead is the constant per-task scheduling overhead spec.md
// §4.7 adds on top of I/O and compute time.
const fixedOverhead = 5 * time.Microsecond

// EstCPUTime computes a task's estimated scheduling cost: the time to
// move ioSize bytes at 4 GiB/s, plus computeUS microseconds of compute,
// plus a fixed 5 microsecond overhead. Used by the worker to order its
// ready queue.
func EstCPUTime(ioSize uint64, computeUS uint64) time.Duration {
	ioSeconds := float64(ioSize) / bytesPerSecondIO
	ioTime := time.Duration(ioSeconds * float64(time.Second))
	return ioTime + time.Duration(computeUS)*time.Microsecond + fixedOverhead
}
