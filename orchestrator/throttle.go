package orchestrator

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/rtlog"
	"github.com/coriolis-labs/corerun/worker"
)

// defaultThrottleRates caps a single worker's no-progress diagnostic to
// at most 5 log lines per second and 60 per minute, per SPEC_FULL.md
// §11: enough to notice a hot-looping misbehaving pool without letting
// it flood rtlog.
var defaultThrottleRates = map[time.Duration]int{
	time.Second: 5,
	time.Minute: 60,
}

// minNoProgressCycles is how many consecutive no-work cycles a worker
// must observe before the orchestrator considers it worth a diagnostic
// log line at all, filtering out the ordinary single-cycle stall every
// worker sees under normal contention.
const minNoProgressCycles = 8

// diagLimiter wraps a catrate.Limiter to throttle per-worker diagnostic
// logging, keyed by ids.WorkerID.
type diagLimiter struct {
	limiter *catrate.Limiter
}

func newDiagLimiter(rates map[time.Duration]int) *diagLimiter {
	if rates == nil {
		rates = defaultThrottleRates
	}
	return &diagLimiter{limiter: catrate.NewLimiter(rates)}
}

// allow reports whether a diagnostic for id may be logged now.
func (d *diagLimiter) allow(id ids.WorkerID) bool {
	_, ok := d.limiter.Allow(id)
	return ok
}

// diagnosticHooks builds the worker.Option(s) that route a worker's
// no-progress telemetry through the throttle, per spec.md §4.9's
// diagnostic surface and SPEC_FULL.md §11's rate-limited logging
// requirement. The same throttled log line carries each owned lane's
// streaming P99 task-completion latency (metrics.PercentileEstimator,
// fed by worker.Worker.finish), since a livelocked worker's lane
// latencies are exactly what a diagnosing operator needs alongside the
// no-progress count.
func (o *Orchestrator) diagnosticHooks(id ids.WorkerID) []worker.Option {
	return []worker.Option{
		worker.WithNoProgressHook(func(wid ids.WorkerID, cycles int) {
			if cycles < minNoProgressCycles {
				return
			}
			if !o.throttle.allow(wid) {
				return
			}
			logCtx := map[string]any{"consecutive_cycles": cycles}
			if w := o.workerByID(wid); w != nil {
				for _, lane := range w.Lanes() {
					p99, n, ok := w.LaneLatencyP99(ids.LaneID(lane))
					if !ok || n == 0 {
						continue
					}
					logCtx[fmt.Sprintf("lane_%d_p99_us", lane)] = p99.Microseconds()
				}
			}
			o.log.Log(rtlog.LogEntry{
				Level:    rtlog.LevelWarn,
				Category: "orchestrator",
				WorkerID: int64(wid),
				Message:  "worker made no progress across consecutive cycles",
				Context:  logCtx,
			})
		}),
	}
}
