package backend

import (
	"fmt"
	"sync/atomic"

	"github.com/coriolis-labs/corerun/rterr"
)

// MallocBackend is a single-process, Go-heap-backed region. It satisfies
// the same Backend contract as PosixMmapBackend but has no cross-process
// visibility — intended for unit tests and in-process pools where the
// overhead of a real mmap is unwarranted. Grounded on hermes_shm's
// malloc_backend.h, which serves the identical role in the original.
type MallocBackend struct {
	id        ID
	url       string
	private   [PrivateHeaderSize]byte
	data      []byte
	sharedID  uint64
	sharedSz  uint64
	sharedOff uint64
	owner     atomic.Uint32
}

// NewMalloc creates an in-process backend of the given size.
func NewMalloc(id ID, size uint64) (*MallocBackend, error) {
	dataSize := roundUpPage(size)
	if _, exists := Lookup(id); exists {
		return nil, fmt.Errorf("%w: backend %s", rterr.ErrAlreadyExists, id)
	}
	b := &MallocBackend{
		id:        id,
		url:       fmt.Sprintf("malloc://%d", uint64(id)),
		data:      make([]byte, dataSize),
		sharedID:  uint64(id),
		sharedSz:  dataSize,
		sharedOff: PrivateHeaderSize,
	}
	b.owner.Store(1)
	if err := register(id, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MallocBackend) ID() ID       { return b.id }
func (b *MallocBackend) URL() string  { return b.url }
func (b *MallocBackend) Size() uint64 { return b.sharedSz }
func (b *MallocBackend) Data() []byte { return b.data }

func (b *MallocBackend) Header() *SharedHeader {
	return &SharedHeader{
		ID:         b.sharedID,
		TotalSize:  b.sharedSz,
		DataOffset: b.sharedOff,
		owner:      b.owner.Load(),
	}
}

func (b *MallocBackend) IsOwner() bool  { return b.owner.Load() == 1 }
func (b *MallocBackend) SetOwner()      { b.owner.Store(1) }
func (b *MallocBackend) UnsetOwner()    { b.owner.Store(0) }

// Resolve implements offset.Resolver.
func (b *MallocBackend) Resolve(off uint64, n uint64) []byte {
	if off+n > uint64(len(b.data)) {
		return nil
	}
	return b.data[off : off+n]
}

func (b *MallocBackend) Detach() error {
	unregister(b.id)
	return nil
}

func (b *MallocBackend) Destroy() error {
	if !b.IsOwner() {
		return rterr.ErrNotOwner
	}
	return b.Detach()
}
