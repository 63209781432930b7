package task

import (
	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/rterr"
)

// DependencySet is the "waiting-for" set spec.md §3 attaches to every
// task/run-context: the subtasks this task is blocked on. SPEC_FULL.md
// §9 calls for a small preallocated slice per spec.md's container
// ownership model rather than a general DAG library.
//
// Deviation from spec.md's literal wording: the set holds ids.TaskID
// values rather than full pointers. Tasks in this implementation are
// ordinary Go values a worker holds a direct reference to, not records
// resolved through an allocator on every touch, so a full pointer would
// name a resolution step nothing here performs; the ID still uniquely
// and comparably identifies the dependency, which is all the waiting
// graph needs.
type DependencySet struct {
	ids []ids.TaskID
	cap int
}

// NewDependencySet preallocates a set with room for capacity entries.
func NewDependencySet(capacity int) *DependencySet {
	return &DependencySet{ids: make([]ids.TaskID, 0, capacity), cap: capacity}
}

// Add records dep as a subtask this task is waiting on. Returns
// rterr.ErrNoSpace if the preallocated capacity is exhausted.
func (d *DependencySet) Add(dep ids.TaskID) error {
	if len(d.ids) >= d.cap {
		return rterr.ErrNoSpace
	}
	d.ids = append(d.ids, dep)
	return nil
}

// Remove drops dep from the set, if present.
func (d *DependencySet) Remove(dep ids.TaskID) {
	for i, v := range d.ids {
		if v == dep {
			d.ids = append(d.ids[:i], d.ids[i+1:]...)
			return
		}
	}
}

// Len reports how many dependencies are outstanding.
func (d *DependencySet) Len() int { return len(d.ids) }

// All returns the outstanding dependency IDs.
func (d *DependencySet) All() []ids.TaskID { return d.ids }
