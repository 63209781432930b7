// Package multilane implements the multi-lane ring buffer of spec.md
// §4.6: L lanes by P priority levels of ring buffers, addressed by
// (lane, priority), contiguous and sized at construction.
package multilane

import "github.com/coriolis-labs/corerun/containers/ring"

// MultiLane is an L x P grid of fixed-capacity MPSC rings: L worker
// lanes, each with P priority levels. Storage is one contiguous slice
// allocated at construction, matching spec.md §4.6's "contiguous and
// sized at construction" requirement.
type MultiLane[T any] struct {
	lanes      int
	priorities int
	rings      []*ring.MPSC[T]
}

// New builds a MultiLane with the given lane and priority counts, each
// ring sized to capacity (must be a power of two).
func New[T any](lanes, priorities int, capacity uint64) (*MultiLane[T], error) {
	m := &MultiLane[T]{
		lanes:      lanes,
		priorities: priorities,
		rings:      make([]*ring.MPSC[T], lanes*priorities),
	}
	for i := range m.rings {
		r, err := ring.NewMPSC[T](capacity)
		if err != nil {
			return nil, err
		}
		m.rings[i] = r
	}
	return m, nil
}

func (m *MultiLane[T]) index(lane, priority int) int { return lane*m.priorities + priority }

// GetLane returns the ring buffer for (lane, priority).
func (m *MultiLane[T]) GetLane(lane, priority int) *ring.MPSC[T] {
	return m.rings[m.index(lane, priority)]
}

// Lanes reports the configured lane count.
func (m *MultiLane[T]) Lanes() int { return m.lanes }

// Priorities reports the configured priority-level count.
func (m *MultiLane[T]) Priorities() int { return m.priorities }
