//go:build unix

package backend

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/coriolis-labs/corerun/rterr"
)

// PosixMmapBackend is a file-backed MAP_SHARED region: real cross-process
// shared memory. Grounded on
// original_source/context-transport-primitives/include/hermes_shm/memory/backend/posix_mmap.h
// and posix_shm_mmap.h.
type PosixMmapBackend struct {
	id      ID
	url     string
	file    *os.File
	region  []byte // full mapping: private header + shared header + data
	private []byte
	shared  []byte
	data    []byte
	owned   bool
}

// headerWireSize is the on-disk encoding size of SharedHeader (three
// uint64 fields + one uint32 owner flag, padded to 8-byte alignment).
const headerWireSize = 32

// Create allocates size bytes backed by the file at path (spec.md §4.1
// backend_create). Fails with rterr.ErrAlreadyExists if the file already
// exists, or rterr.ErrBackingStore on any OS-level failure.
func Create(id ID, size uint64, path string) (Backend, error) {
	dataSize := roundUpPage(size)
	total := uint64(PrivateHeaderSize) + headerWireSize + dataSize

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", rterr.ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	if err := f.Truncate(int64(total)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}

	b := &PosixMmapBackend{id: id, url: path, file: f, region: region, owned: true}
	b.slice(dataSize)
	binary.LittleEndian.PutUint64(b.shared[0:8], uint64(id))
	binary.LittleEndian.PutUint64(b.shared[8:16], dataSize)
	binary.LittleEndian.PutUint64(b.shared[16:24], PrivateHeaderSize+headerWireSize)
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.shared[24])), 1)

	if err := register(id, b); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

// Attach maps an existing region read/write without clearing the owner
// flag (spec.md §4.1 backend_attach).
func Attach(path string) (Backend, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", rterr.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	total := fi.Size()
	region, err := unix.Mmap(int(f.Fd()), 0, int(total), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	b := &PosixMmapBackend{url: path, file: f, region: region, owned: false}
	dataSize := binary.LittleEndian.Uint64(region[PrivateHeaderSize+8 : PrivateHeaderSize+16])
	b.id = ID(binary.LittleEndian.Uint64(region[PrivateHeaderSize : PrivateHeaderSize+8]))
	b.slice(dataSize)

	// Unlike Create, Attach does not register into this process's
	// id->Backend registry: that registry backs the convenience
	// backend.Destroy(id) entry point for backends this process itself
	// created, and a single process may legitimately hold more than one
	// attached handle to a backend it did not create (as in the
	// multi-process simulation in scenario tests).
	return b, nil
}

func (b *PosixMmapBackend) slice(dataSize uint64) {
	b.private = b.region[:PrivateHeaderSize]
	b.shared = b.region[PrivateHeaderSize : PrivateHeaderSize+headerWireSize]
	dataStart := PrivateHeaderSize + headerWireSize
	b.data = b.region[dataStart : uint64(dataStart)+dataSize]
}

func (b *PosixMmapBackend) ID() ID      { return b.id }
func (b *PosixMmapBackend) URL() string { return b.url }
func (b *PosixMmapBackend) Size() uint64 {
	return binary.LittleEndian.Uint64(b.shared[8:16])
}
func (b *PosixMmapBackend) Data() []byte { return b.data }

func (b *PosixMmapBackend) Header() *SharedHeader {
	return &SharedHeader{
		ID:         binary.LittleEndian.Uint64(b.shared[0:8]),
		TotalSize:  binary.LittleEndian.Uint64(b.shared[8:16]),
		DataOffset: binary.LittleEndian.Uint64(b.shared[16:24]),
		owner:      atomic.LoadUint32((*uint32)(unsafe.Pointer(&b.shared[24]))),
	}
}

func (b *PosixMmapBackend) IsOwner() bool {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&b.shared[24]))) == 1
}

func (b *PosixMmapBackend) SetOwner()   { atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.shared[24])), 1) }
func (b *PosixMmapBackend) UnsetOwner() { atomic.StoreUint32((*uint32)(unsafe.Pointer(&b.shared[24])), 0) }

// Resolve implements offset.Resolver over the data region.
func (b *PosixMmapBackend) Resolve(off uint64, n uint64) []byte {
	if off+n > uint64(len(b.data)) {
		return nil
	}
	return b.data[off : off+n]
}

func (b *PosixMmapBackend) Detach() error {
	unregister(b.id)
	if err := unix.Munmap(b.region); err != nil {
		return fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	return b.file.Close()
}

func (b *PosixMmapBackend) Destroy() error {
	if !b.IsOwner() {
		return rterr.ErrNotOwner
	}
	path := b.url
	if err := b.Detach(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", rterr.ErrBackingStore, err)
	}
	return nil
}
