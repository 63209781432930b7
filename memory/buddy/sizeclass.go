package buddy

import "math/bits"

// Size-class table (spec.md §4.4). The spec describes two banks — a
// "round-up" bank for small sizes (<=2^14) and a "round-down" bank for
// large sizes (<=2^20) — which SPEC_FULL.md §12 resolves into one
// concrete, contiguous power-of-two ladder: every allocation is rounded up
// to the nearest class, and the two named banks collapse into the low and
// high halves of the same table (the distinction only matters for how a
// caller picks an initial guess, not for the free-list shape itself,
// which is identical buddy bookkeeping at every class).
const (
	MinClassLog = 3  // 8 bytes
	MaxClassLog = 20 // 1 MiB
	NumClasses  = MaxClassLog - MinClassLog + 1

	MinClassSize = 1 << MinClassLog
	MaxClassSize = 1 << MaxClassLog
)

// classFor returns the size-class index for a request of n bytes, or
// (0, false) if n exceeds the largest managed class (the caller then
// falls back to a direct heap-extend allocation, per spec.md §4.4's
// "if no class can satisfy, extend the heap pointer").
func classFor(n uint64) (int, bool) {
	if n == 0 || n > MaxClassSize {
		return 0, false
	}
	if n <= MinClassSize {
		return 0, true
	}
	log := bits.Len64(n - 1) // smallest log2 >= n
	return log - MinClassLog, true
}

func classSize(class int) uint64 {
	return 1 << (class + MinClassLog)
}
