package task

import "sync/atomic"

// State is a task's position in the lifecycle spec.md §3 defines:
//
//	Allocated -> Enqueued -> (Running <-> Blocked)* -> Complete -> Reaped
//
// Grounded on eventloop/state.go's FastState: a lock-free atomic state
// machine using CAS for checked transitions (Enqueued->Running,
// Running->Blocked, Complete->Reaped) and a plain Store where the caller
// already owns the task (Blocked->Running on resume, ->Complete on signal).
type State uint32

const (
	Allocated State = iota
	Enqueued
	Running
	Blocked
	Complete
	Reaped
)

func (s State) String() string {
	switch s {
	case Allocated:
		return "Allocated"
	case Enqueued:
		return "Enqueued"
	case Running:
		return "Running"
	case Blocked:
		return "Blocked"
	case Complete:
		return "Complete"
	case Reaped:
		return "Reaped"
	default:
		return "Unknown"
	}
}

// stateMachine is an atomic State with CAS transitions, embedded in Task.
type stateMachine struct {
	v atomic.Uint32
}

func (sm *stateMachine) Load() State { return State(sm.v.Load()) }

func (sm *stateMachine) Store(s State) { sm.v.Store(uint32(s)) }

func (sm *stateMachine) TryTransition(from, to State) bool {
	return sm.v.CompareAndSwap(uint32(from), uint32(to))
}
