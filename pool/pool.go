// Package pool implements the pool and module manager contract of
// spec.md §4.10: pools are named collections of containers keyed by
// ids.PoolID, and the module manager registers method implementations
// per (pool kind, method) pair. From the kernel's perspective both are
// leaves: the kernel only needs register_method/resolve to deliver a
// task to a (pool, lane, method) tuple.
//
// Grounded on eventloop/registry.go's mutex-guarded, typed registration
// table shape, adapted here from a weak-pointer promise registry to a
// plain (kind, method) -> function map, since pool method registrations
// live for the runtime's lifetime rather than being scavenged.
package pool

import (
	"context"
	"sync"

	"github.com/coriolis-labs/corerun/ids"
	"github.com/coriolis-labs/corerun/rterr"
	"github.com/coriolis-labs/corerun/task"
)

// MethodFunc is a registered task method implementation. The run context
// argument gives the method access to the cooperative-suspension contract
// (task.Scheduler) so it can call task.Yield/task.Wait on the current
// task's behalf, per spec.md §4.10's "within fn the callee may call
// task.yield, task.wait, other enqueue+future.wait" contract.
type MethodFunc func(ctx context.Context, t *task.Task, sched task.Scheduler) (task.Result, error)

type methodKey struct {
	kind   ids.PoolKind
	method ids.MethodID
}

// Registry is the module manager: it binds pools to kinds and kinds'
// methods to implementations, then resolves a (pool, method) dispatch
// target for the worker loop.
type Registry struct {
	mu      sync.RWMutex
	pools   map[ids.PoolID]ids.PoolKind
	methods map[methodKey]MethodFunc
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		pools:   make(map[ids.PoolID]ids.PoolKind),
		methods: make(map[methodKey]MethodFunc),
	}
}

// RegisterPool binds poolID to kind, so a later Resolve(poolID, ...) can
// find kind's methods. Idempotent: rebinding poolID to the same kind is a
// no-op; rebinding it to a different kind overwrites the binding, since a
// pool's kind may legitimately be reprovisioned by a compose reload.
func (r *Registry) RegisterPool(poolID ids.PoolID, kind ids.PoolKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[poolID] = kind
}

// RegisterMethod binds fn as kind's implementation of method. Idempotent:
// registering the same (kind, method) again overwrites the prior
// registration rather than erroring, matching spec.md §4.10's "must be
// idempotent" requirement for dynamic module (re)loading.
func (r *Registry) RegisterMethod(kind ids.PoolKind, method ids.MethodID, fn MethodFunc) error {
	if fn == nil {
		return rterr.ErrNilMethod
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[methodKey{kind, method}] = fn
	return nil
}

// Resolve looks up the method implementation bound to poolID's kind and
// method. Returns rterr.ErrUnknownPool if poolID was never registered, or
// rterr.ErrUnknownMethod if the pool's kind has no such method — both
// non-fatal per spec.md §7's edge-case table, surfaced through the task's
// result code rather than panicking the worker.
func (r *Registry) Resolve(poolID ids.PoolID, method ids.MethodID) (MethodFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.pools[poolID]
	if !ok {
		return nil, rterr.ErrUnknownPool
	}
	fn, ok := r.methods[methodKey{kind, method}]
	if !ok {
		return nil, rterr.ErrUnknownMethod
	}
	return fn, nil
}
