package task

import "github.com/coriolis-labs/corerun/memory/offset"

// Args is a task's argument region: spec.md §3 allows either an inline
// payload small enough to travel with the task record, or a bulk
// pointer into shared memory for larger arguments the caller has
// already staged.
type Args struct {
	Inline []byte
	Bulk   offset.Pointer
}

// HasBulk reports whether Args carries an out-of-line bulk reference.
func (a Args) HasBulk() bool { return !a.Bulk.IsNull() }
