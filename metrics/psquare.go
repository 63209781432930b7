package metrics

// PercentileEstimator implements the P² algorithm for streaming quantile
// estimation (Jain & Chlamtac, 1985): O(1) per-observation update, O(1)
// quantile retrieval, no stored observation history.
//
// Grounded on eventloop/psquare.go's pSquareQuantile, adapted here to
// track per-lane task latency (the worker feeds wall-clock time from
// dispatch to completion) rather than event-loop tick latency.
//
// Thread safety: NOT thread-safe, matching the teacher's estimator —
// callers serialize updates the same way a worker already serializes
// its own per-lane bookkeeping.
type PercentileEstimator struct {
	p float64

	q  [5]float64
	n  [5]int
	np [5]float64
	dn [5]float64

	count      int
	initBuffer [5]float64
}

// NewPercentileEstimator builds an estimator for target quantile p, in
// [0, 1] (e.g. 0.99 for P99).
func NewPercentileEstimator(p float64) *PercentileEstimator {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return &PercentileEstimator{
		p:  p,
		dn: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

// Update adds a new observation.
func (e *PercentileEstimator) Update(x float64) {
	e.count++

	if e.count <= 5 {
		e.initBuffer[e.count-1] = x
		if e.count == 5 {
			e.initialize()
		}
		return
	}

	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x >= e.q[4]:
		e.q[4] = x
		k = 3
	default:
		for k = 0; k < 4; k++ {
			if e.q[k] <= x && x < e.q[k+1] {
				break
			}
		}
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	for i := 1; i < 4; i++ {
		d := e.np[i] - float64(e.n[i])
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}
			qPrime := e.parabolic(i, sign)
			if e.q[i-1] < qPrime && qPrime < e.q[i+1] {
				e.q[i] = qPrime
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
}

func (e *PercentileEstimator) initialize() {
	for i := 1; i < 5; i++ {
		key := e.initBuffer[i]
		j := i - 1
		for j >= 0 && e.initBuffer[j] > key {
			e.initBuffer[j+1] = e.initBuffer[j]
			j--
		}
		e.initBuffer[j+1] = key
	}
	for i := 0; i < 5; i++ {
		e.q[i] = e.initBuffer[i]
		e.n[i] = i
	}
	e.np = [5]float64{0, 2 * e.p, 4 * e.p, 2 + 2*e.p, 4}
}

func (e *PercentileEstimator) parabolic(i, d int) float64 {
	df := float64(d)
	ni := float64(e.n[i])
	niPrev := float64(e.n[i-1])
	niNext := float64(e.n[i+1])

	term1 := df / (niNext - niPrev)
	term2 := (ni - niPrev + df) * (e.q[i+1] - e.q[i]) / (niNext - ni)
	term3 := (niNext - ni - df) * (e.q[i] - e.q[i-1]) / (ni - niPrev)
	return e.q[i] + term1*(term2+term3)
}

func (e *PercentileEstimator) linear(i, d int) float64 {
	if d == 1 {
		return e.q[i] + (e.q[i+1]-e.q[i])/float64(e.n[i+1]-e.n[i])
	}
	return e.q[i] - (e.q[i]-e.q[i-1])/float64(e.n[i]-e.n[i-1])
}

// Quantile returns the current estimate.
func (e *PercentileEstimator) Quantile() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		sorted := make([]float64, e.count)
		copy(sorted, e.initBuffer[:e.count])
		for i := 1; i < e.count; i++ {
			key := sorted[i]
			j := i - 1
			for j >= 0 && sorted[j] > key {
				sorted[j+1] = sorted[j]
				j--
			}
			sorted[j+1] = key
		}
		index := int(float64(e.count-1) * e.p)
		if index >= e.count {
			index = e.count - 1
		}
		return sorted[index]
	}
	return e.q[2]
}

// Count returns the number of observations received.
func (e *PercentileEstimator) Count() int { return e.count }
