// Package offset implements the process-independent reference the core uses
// in place of raw pointers: an offset pointer, (allocator id, byte offset),
// resolved to a real address only within one process via a Resolver.
//
// Grounded on the shared-memory ring buffer pattern in the retrieval pack
// (markrussinovich-grpc-go-shmem's ShmRing keeps (hdrOff, dataOff) as
// uintptr offsets into an mmap'd []byte and computes addresses on demand,
// never persisting a resolved pointer across a process boundary); corerun
// applies the same discipline to every shared container.
package offset

import (
	"fmt"
	"unsafe"
)

// AllocatorID identifies the allocator (and, transitively, the backend)
// an offset is relative to.
type AllocatorID uint64

func (a AllocatorID) String() string { return fmt.Sprintf("alloc:%d", uint64(a)) }

// Null is the reserved zero offset; it never denotes a valid allocation, so
// it doubles as the "null offset pointer" spec.md requires allocation
// failure and zero-size allocation to return.
const Null uint64 = 0

// Pointer is a process-independent reference: (base allocator identity,
// byte offset within that allocator's region). The core never stores raw
// addresses in shared memory — only Pointer values.
type Pointer struct {
	Alloc AllocatorID
	Off   uint64
}

// IsNull reports whether p is the null offset pointer.
func (p Pointer) IsNull() bool { return p.Off == Null }

func (p Pointer) String() string {
	if p.IsNull() {
		return "ptr:nil"
	}
	return fmt.Sprintf("ptr:%d+%#x", uint64(p.Alloc), p.Off)
}

// Resolver translates offsets within one allocator's region into addresses
// valid in the calling process. Every allocator implements Resolver over
// its own backing region.
type Resolver interface {
	// Resolve returns a byte slice of length n starting at off within the
	// resolver's region, or nil if off+n exceeds the region.
	Resolve(off uint64, n uint64) []byte
}

// FullPointer pairs an offset pointer with a resolved address, valid only
// within the process that produced it via Resolve. A FullPointer must never
// be written into shared memory or handed to another process — only its
// Pointer field may cross that boundary.
type FullPointer struct {
	Pointer
	addr unsafe.Pointer
	size uint64
}

// Resolve produces a FullPointer for p within res, or the zero FullPointer
// (Addr() == nil) if p is out of range.
func Resolve(res Resolver, p Pointer, size uint64) FullPointer {
	if p.IsNull() {
		return FullPointer{Pointer: p}
	}
	b := res.Resolve(p.Off, size)
	if b == nil {
		return FullPointer{Pointer: p}
	}
	return FullPointer{Pointer: p, addr: unsafe.Pointer(&b[0]), size: size}
}

// Addr returns the resolved address, or nil if resolution failed or the
// pointer is null.
func (f FullPointer) Addr() unsafe.Pointer { return f.addr }

// Size returns the resolved span length in bytes.
func (f FullPointer) Size() uint64 { return f.size }

// Bytes reinterprets the resolved span as a byte slice. Panics if the
// FullPointer failed to resolve; callers are expected to check Addr()
// first when resolution failure is a normal (non-programmer-error) case.
func (f FullPointer) Bytes() []byte {
	if f.addr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(f.addr), int(f.size))
}
