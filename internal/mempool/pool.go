// Package mempool provides fixed-cell allocators that hand out byte
// cells without calling into the Go allocator once a Datastore is built.
// The worker's reply buffers come from one when the worker is given a
// ResponsePool (otherwise they are made per reply); received packet
// buffers, Requests and Tasks do not (they are ordinary Go allocations),
// so the hot path is not allocation-free. Two attachment scopes are
// supported, mirroring the two buffer-pool strategies seen in network
// dataplanes:
//
//   - Global: many goroutines share one pool of cells, reclaimed through
//     sync.Pool the way a generic buffer cache would be.
//   - PerCPU: a single goroutine (typically one pinned to a CPU) owns an
//     exclusive slab of cells and a LIFO free-index stack with no
//     synchronization at all, because only its owner ever touches it.
//
// Alloc never blocks: it returns ok=false on exhaustion rather than
// growing the pool or waiting, so callers on the hot path can fall back
// to dropping or backpressure instead of stalling.
package mempool

import "sync"

// Scope selects how a Datastore's cells are shared.
type Scope int

const (
	// Global cells are reclaimed through a shared sync.Pool; safe for
	// concurrent use by any number of goroutines.
	Global Scope = iota
	// PerCPU cells are owned exclusively by whichever single goroutine
	// called Attach; Alloc/Free on the returned Allocator must only ever
	// be called from that one goroutine.
	PerCPU
)

// Allocator hands out and reclaims fixed-size cells from a Datastore.
type Allocator interface {
	// Alloc returns a cell of the Datastore's configured cell size, or
	// ok=false if the pool is exhausted.
	Alloc() (cell []byte, ok bool)
	// Free returns a cell previously obtained from Alloc. Freeing a
	// slice not obtained from this Allocator is undefined.
	Free(cell []byte)
}

// Datastore is a fixed-cell-size buffer pool. Create one per distinct
// cell size (e.g. one per MaxFragmentsPerRequest-sized packet buffer,
// one for Request structs serialized to bytes) and Attach to it from
// each consumer.
type Datastore struct {
	cellSize uint32
	capacity int

	global sync.Pool
}

// CreateDatastore builds a Datastore whose cells are cellSize bytes.
// capacity bounds a PerCPU attachment's exclusive slab; it has no effect
// on Global attachments, which grow and shrink through sync.Pool.
func CreateDatastore(cellSize uint32, capacity int) *Datastore {
	d := &Datastore{cellSize: cellSize, capacity: capacity}
	d.global = sync.Pool{
		New: func() any {
			b := make([]byte, d.cellSize)
			return &b
		},
	}
	return d
}

// CellSize returns the fixed size of cells this Datastore hands out.
func (d *Datastore) CellSize() uint32 { return d.cellSize }

// Attach returns an Allocator bound to the given scope. Each call to
// Attach(PerCPU) creates a fresh, independent slab; callers must attach
// once per owning goroutine and keep the returned Allocator for that
// goroutine's lifetime.
func (d *Datastore) Attach(scope Scope) Allocator {
	switch scope {
	case PerCPU:
		return newPerCPUAllocator(d.cellSize, d.capacity)
	default:
		return &globalAllocator{store: d}
	}
}

// globalAllocator draws from the Datastore's shared sync.Pool.
type globalAllocator struct {
	store *Datastore
}

func (a *globalAllocator) Alloc() ([]byte, bool) {
	ptr := a.store.global.Get().(*[]byte)
	cell := (*ptr)[:a.store.cellSize]
	return cell, true
}

func (a *globalAllocator) Free(cell []byte) {
	if uint32(cap(cell)) < a.store.cellSize {
		return
	}
	cell = cell[:a.store.cellSize]
	a.store.global.Put(&cell)
}

// perCPUAllocator owns a preallocated slab of capacity cells and an
// index-based LIFO free stack. No locking: the single-writer/
// single-reader invariant is structural, enforced by construction (one
// Allocator per owning goroutine), not by a mutex.
type perCPUAllocator struct {
	cellSize uint32
	slab     []byte // capacity*cellSize contiguous bytes
	free     []int32
	top      int
}

func newPerCPUAllocator(cellSize uint32, capacity int) *perCPUAllocator {
	a := &perCPUAllocator{
		cellSize: cellSize,
		slab:     make([]byte, int(cellSize)*capacity),
		free:     make([]int32, capacity),
	}
	for i := 0; i < capacity; i++ {
		a.free[i] = int32(i)
	}
	a.top = capacity
	return a
}

func (a *perCPUAllocator) Alloc() ([]byte, bool) {
	if a.top == 0 {
		return nil, false
	}
	a.top--
	idx := a.free[a.top]
	off := int(idx) * int(a.cellSize)
	return a.slab[off : off+int(a.cellSize) : off+int(a.cellSize)], true
}

func (a *perCPUAllocator) Free(cell []byte) {
	if a.top >= len(a.free) {
		return
	}
	off := cellOffset(a.slab, cell)
	if off < 0 {
		return
	}
	idx := int32(off / int(a.cellSize))
	a.free[a.top] = idx
	a.top++
}

// cellOffset returns cell's byte offset within slab, or -1 if cell does
// not point into slab (e.g. a cell from a different Allocator).
func cellOffset(slab, cell []byte) int {
	if len(cell) == 0 || len(slab) == 0 {
		return -1
	}
	base := &slab[0]
	head := &cell[0]
	off := int(uintptrDiff(base, head))
	if off < 0 || off >= len(slab) {
		return -1
	}
	return off
}
