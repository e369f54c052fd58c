// Package pmm is the physical page-frame allocator (spec §4.1): a free list
// over a byte arena standing in for discovered RAM, handing out and
// reclaiming whole PageSize frames.
package pmm

import (
	"sync"
	"unsafe"

	"github.com/gamer07340/xv6go/kernel/kerr"
)

// PageSize is the frame size the rest of the kernel allocates in.
const PageSize = 4096

// Allocator partitions a byte arena into PageSize frames and serves them
// from a free list. The free list is a stack of frame indices rather than
// pointers threaded through the pages themselves (xv6's trick), since Go
// slices can't be reinterpreted as linked-list nodes without unsafe.
//
// GUARDED_BY(mu)
type Allocator struct {
	mu     sync.Mutex
	arena  []byte
	free   []int // indices of free frames, LIFO
	ntotal int
}

// New partitions size bytes (rounded down to a whole number of pages) into
// free frames.
func New(size int) *Allocator {
	n := size / PageSize
	a := &Allocator{
		arena:  make([]byte, n*PageSize),
		free:   make([]int, n),
		ntotal: n,
	}
	for i := 0; i < n; i++ {
		a.free[i] = n - 1 - i
	}
	return a
}

// Alloc removes one page from the free list and returns it, zeroed.
// Returns kerr.ErrNoMem when the list is empty.
func (a *Allocator) Alloc() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		return nil, kerr.ErrNoMem
	}
	i := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	page := a.arena[i*PageSize : (i+1)*PageSize : (i+1)*PageSize]
	for j := range page {
		page[j] = 0
	}
	return page, nil
}

// Free zeroes the page (to catch dangling use) and links it back onto the
// free list. page must have been returned by Alloc on this Allocator and not
// already freed.
func (a *Allocator) Free(page []byte) {
	if len(page) != PageSize {
		panic("pmm: freeing a non-page-sized buffer")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	off := frameOffset(a.arena, page)
	i := off / PageSize
	for j := range page {
		page[j] = 0
	}
	a.free = append(a.free, i)
}

// frameOffset computes page's byte offset within arena by address
// arithmetic on the slice headers, panicking if page doesn't alias arena.
func frameOffset(arena, page []byte) int {
	if len(arena) == 0 {
		panic("pmm: free on an empty arena")
	}
	base := uintptr(unsafe.Pointer(&arena[0]))
	head := uintptr(unsafe.Pointer(&page[0]))
	off := int(head - base)
	if off < 0 || off >= len(arena) || off%PageSize != 0 {
		panic("pmm: freed page does not belong to this allocator")
	}
	return off
}

// Stats reports free and total page counts, for the /metrics gauge.
func (a *Allocator) Stats() (free, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free), a.ntotal
}
