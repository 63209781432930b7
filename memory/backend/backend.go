// Package backend implements the shared-memory backend of spec.md §4.1: a
// contiguous region attachable from multiple processes, split into a
// per-process private header, a cross-process shared header, and a data
// region.
//
// Two backends are provided: [PosixMmapBackend], a real file-backed mmap
// region usable across processes (grounded on
// original_source/context-transport-primitives's posix_mmap.h /
// posix_shm_mmap.h, and on the direct golang.org/x/sys/unix usage pattern
// in the teacher's eventloop poller/wakeup code), and [MallocBackend], a
// single-process heap-backed region for tests and in-process pools
// (grounded on hermes_shm's malloc_backend.h).
package backend

import (
	"fmt"
	"sync"

	"github.com/coriolis-labs/corerun/memory/offset"
	"github.com/coriolis-labs/corerun/rterr"
)

// ID identifies a backend, distinct from the shared-region's own identity
// field so a process can name backends before attaching to them.
type ID uint64

func (i ID) String() string { return fmt.Sprintf("backend:%d", uint64(i)) }

// pageSize is the alignment unit sizes in the shared header must round up
// to (spec.md §4.1 invariant). 4KiB matches the common Linux page size;
// it is a fixed constant shared by every backend, and sizes are always
// rounded up, never down.
const pageSize = 4096

func roundUpPage(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return (n + pageSize - 1) &^ (pageSize - 1)
}

// SharedHeader is the cross-process-visible prefix of a backend's data
// region: identity, sizes, and the owner flag. Every attaching process
// observes the same bytes here (spec.md §4.1 invariant).
type SharedHeader struct {
	ID         uint64
	TotalSize  uint64
	DataOffset uint64
	// owner is 0 or 1; mutated only via SetOwner/UnsetOwner, which use
	// atomic stores so concurrent attach/destroy races are well-defined.
	owner uint32
}

// PrivateHeaderSize is the size in bytes of the per-process scratch prefix
// reserved ahead of the shared header. It is never shared and never
// written into the backing file/region.
const PrivateHeaderSize = 64

// Backend is a contiguous, process-attachable shared-memory region.
type Backend interface {
	offset.Resolver

	ID() ID
	URL() string
	// Size is the size of the data region, excluding headers.
	Size() uint64
	Header() *SharedHeader

	// Data returns the full data region as a byte slice, valid only in
	// the calling process.
	Data() []byte

	IsOwner() bool
	SetOwner()
	UnsetOwner()

	// Detach unmaps the region in the calling process only.
	Detach() error
	// Destroy unlinks and unmaps; permitted only when IsOwner().
	Destroy() error
}

var (
	registryMu sync.Mutex
	registry   = map[ID]Backend{}
)

func register(id ID, b Backend) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[id]; exists {
		return fmt.Errorf("%w: backend %s", rterr.ErrAlreadyExists, id)
	}
	registry[id] = b
	return nil
}

func unregister(id ID) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, id)
}

// Lookup returns a previously created/attached backend by id, within this
// process only.
func Lookup(id ID) (Backend, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	b, ok := registry[id]
	return b, ok
}

// Destroy looks up id in this process's registry and destroys it. It is a
// convenience wrapper over Backend.Destroy for the spec.md §6
// backend_destroy(id) entry point.
func Destroy(id ID) error {
	b, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: backend %s", rterr.ErrNotFound, id)
	}
	return b.Destroy()
}
