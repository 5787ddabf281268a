// Package arena implements the per-enclave bump allocator HOSK uses for
// its data-layer nodes and its two index-layer node shapes.
//
// Each enclave owns three independent Arenas — one for data nodes, one
// for intermediate index nodes, one for raised index nodes — so a burst
// of index-layer churn can never fragment the data-layer's backing
// storage or vice versa. Allocation bumps a cursor
// forward over a fixed-capacity region obtained from a NUMA-local page
// mapping (see numatopo.AllocPages); freeing only ever rolls the cursor
// back to the single most recent allocation, which is all a CAS-race
// rollback in the data layer ever needs. Running out of a region is
// fatal: an enclave is sized by the caller up front and never silently
// grows mid-run, since growing would invalidate every pointer already
// handed out into the old backing region.
//
// The two node shapes (data node, index node) are each individually
// cache-line padded (see the datalayer and index packages), so this
// package no longer needs the byte-level half/full-cache-line packing its
// C ancestor used to pack two differently sized node kinds into one
// linear buffer — splitting data and index nodes into their own typed
// Arenas makes that packing trick unnecessary. See DESIGN.md.
//
// Node storage deliberately lives outside the Go heap (mmap'd pages, not
// make()): these nodes hold raw pointers to one another that must survive
// for the arena's entire lifetime regardless of GC activity, and an
// enclave's nodes are reclaimed in one shot at teardown, never
// individually. Go's collector never scans this region, which is exactly
// what manual, arena-lifetime-scoped memory needs.
package arena

import (
	"fmt"
	"unsafe"

	"hosk/debug"
	"hosk/numatopo"
)

// CacheLineSize is the alignment every node type in this module pads
// itself to, matching allocator.cpp's CACHE_LINE_SIZE.
const CacheLineSize = 64

// Arena is a fixed-capacity, single-writer bump allocator over a region
// of NUMA-local page memory, viewed as a slice of T. It is not safe for
// concurrent use: each enclave's data arena is touched only by that
// enclave's application thread, and each index arena only by that
// enclave's helper thread.
type Arena[T any] struct {
	backing []byte
	storage []T
	cur     int
	lastIdx int
	hasLast bool
	label   string
}

// New returns an Arena with room for exactly capacity elements of T,
// backed by freshly mmap'd pages. The backing region is never
// reallocated or grown; Alloc is fatal once it is exhausted.
func New[T any](label string, capacity int) *Arena[T] {
	if capacity <= 0 {
		debug.Fatal("arena", fmt.Sprintf("%s: non-positive capacity %d", label, capacity))
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	pages, err := numatopo.AllocPages(elemSize * capacity)
	if err != nil {
		debug.Fatal("arena", fmt.Sprintf("%s: %v", label, err))
	}
	storage := unsafe.Slice((*T)(unsafe.Pointer(&pages[0])), capacity)
	return &Arena[T]{
		backing: pages,
		storage: storage,
		label:   label,
	}
}

// Alloc returns a pointer to the next free element, fatally terminating
// the process if the arena is exhausted.
//
//go:nosplit
//go:inline
func (a *Arena[T]) Alloc() *T {
	if a.cur >= len(a.storage) {
		debug.Fatal("arena", fmt.Sprintf("%s: exhausted (capacity %d)", a.label, len(a.storage)))
	}
	idx := a.cur
	a.cur++
	a.lastIdx = idx
	a.hasLast = true
	return &a.storage[idx]
}

// Free rolls the cursor back, but only if ptr is the single most recent
// allocation from this arena — any other call is a silent no-op, matching
// the original's LIFO-only nfree.
func (a *Arena[T]) Free(ptr *T) {
	if !a.hasLast {
		return
	}
	if ptr != &a.storage[a.lastIdx] {
		return
	}
	var zero T
	a.storage[a.lastIdx] = zero
	a.cur = a.lastIdx
	a.hasLast = false
}

// Used returns the number of elements currently allocated.
func (a *Arena[T]) Used() int { return a.cur }

// Cap returns the arena's total element capacity.
func (a *Arena[T]) Cap() int { return len(a.storage) }

// ResetCursor rewinds the bump cursor to the start of the arena without
// releasing its backing pages, discarding every node it has handed out
// so far. Only safe when nothing still holds a pointer into this arena —
// the coordinator uses it to discard the skewed index an enclave built
// during initial population before the timed run begins.
func (a *Arena[T]) ResetCursor() {
	var zero T
	for i := 0; i < a.cur; i++ {
		a.storage[i] = zero
	}
	a.cur = 0
	a.lastIdx = 0
	a.hasLast = false
}

// Reset releases the backing pages back to the OS. Only safe once every
// node this arena ever handed out is unreachable — in practice, only at
// enclave teardown.
func (a *Arena[T]) Reset() error {
	if a.backing == nil {
		return nil
	}
	err := numatopo.FreePages(a.backing)
	a.backing = nil
	a.storage = nil
	a.cur = 0
	a.hasLast = false
	return err
}
