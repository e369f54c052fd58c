// Package vmem simulates the per-process address space of spec §4.2: a
// user segment backed by whole pages from kernel/pmm, grown and shrunk by
// sbrk, deep-copied on fork (copy-on-write is an explicit non-goal), and an
// optional VGA framebuffer window that an address space reserves with
// MapFramebuffer. Writes into the window are mirrored into the shared
// framebuffer slice; reads return the window's own pages, and Fork does not
// carry the mapping over to the child.
//
// There is no literal two-level x86 page table here — user virtual addresses
// map onto Go-heap pages through a slice of page frames — but the externally
// visible contract (sz grows/shrinks by whole pages, addresses beyond sz are
// invalid, fork deep-copies) is exactly spec §4.2's.
package vmem

import (
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/pmm"
)

// AddressSpace is one process's user memory: a sequence of page frames
// allocated from a shared Allocator, addressed 0..Sz.
type AddressSpace struct {
	alloc  *pmm.Allocator
	pages  [][]byte
	sz     uint64
	fbRes  []byte // reserved framebuffer window, if MapFramebuffer was called
	fbAddr uint64
}

// New creates an empty address space over alloc.
func New(alloc *pmm.Allocator) *AddressSpace {
	return &AddressSpace{alloc: alloc}
}

// Size returns the current size of the user segment in bytes.
func (as *AddressSpace) Size() uint64 { return as.sz }

// Sbrk grows (n > 0) or shrinks (n < 0) the top of the user segment by n
// bytes, rounded up to whole pages on growth, and returns the address of the
// break before the change (matching the sbrk(2) convention spec §4.2 cites).
func (as *AddressSpace) Sbrk(n int64) (oldSz uint64, err error) {
	oldSz = as.sz
	if n == 0 {
		return oldSz, nil
	}
	if n > 0 {
		newSz := as.sz + uint64(n)
		for as.sz < newSz {
			p, allocErr := as.alloc.Alloc()
			if allocErr != nil {
				return oldSz, allocErr
			}
			as.pages = append(as.pages, p)
			as.sz += pmm.PageSize
		}
		return oldSz, nil
	}

	shrink := uint64(-n)
	if shrink > as.sz {
		return oldSz, kerr.ErrInval
	}
	newSz := as.sz - shrink
	for as.sz > newSz {
		last := as.pages[len(as.pages)-1]
		as.pages = as.pages[:len(as.pages)-1]
		as.alloc.Free(last)
		as.sz -= pmm.PageSize
	}
	return oldSz, nil
}

// Fork deep-copies this address space into a brand-new one (no
// copy-on-write, per spec's explicit non-goal).
func (as *AddressSpace) Fork() (*AddressSpace, error) {
	child := New(as.alloc)
	for _, p := range as.pages {
		np, err := child.alloc.Alloc()
		if err != nil {
			child.Destroy()
			return nil, err
		}
		copy(np, p)
		child.pages = append(child.pages, np)
		child.sz += pmm.PageSize
	}
	return child, nil
}

// Destroy frees every page back to the allocator. Called on process exit, or
// on exec failure after the old address space must be restored (the caller
// keeps the old AddressSpace around and only destroys the new one in that
// case, per spec §4.2's exec-failure rule).
func (as *AddressSpace) Destroy() {
	for _, p := range as.pages {
		as.alloc.Free(p)
	}
	as.pages = nil
	as.sz = 0
}

// CheckRange validates that [addr, addr+n) lies entirely within [0, sz) —
// the bounds check every syscall argument fetch must perform (spec §4.5):
// "no access beyond sz, no kernel addresses".
func (as *AddressSpace) CheckRange(addr uint64, n int) error {
	if n < 0 || addr+uint64(n) < addr || addr+uint64(n) > as.sz {
		return kerr.ErrInval
	}
	return nil
}

// CopyOut copies src into the address space starting at addr, mirroring
// any portion that falls within a MapFramebuffer window into the backing
// fb slice so a write through the mapped window is actually visible to
// kernel/console, not just to the page-backed copy of the window.
func (as *AddressSpace) CopyOut(addr uint64, src []byte) error {
	if err := as.CheckRange(addr, len(src)); err != nil {
		return err
	}
	remaining := src
	off := addr
	for len(remaining) > 0 {
		pageIdx := off / pmm.PageSize
		pageOff := off % pmm.PageSize
		n := copy(as.pages[pageIdx][pageOff:], remaining)
		remaining = remaining[n:]
		off += uint64(n)
	}
	as.mirrorToFramebuffer(addr, src)
	return nil
}

// mirrorToFramebuffer copies the overlap between [addr, addr+len(src)) and
// the reserved framebuffer window into fbRes, so writes through the window
// MapFramebuffer returned land in the same slice kernel/console reads.
func (as *AddressSpace) mirrorToFramebuffer(addr uint64, src []byte) {
	if as.fbRes == nil {
		return
	}
	winStart, winEnd := as.fbAddr, as.fbAddr+uint64(len(as.fbRes))
	wStart, wEnd := addr, addr+uint64(len(src))
	if wEnd <= winStart || wStart >= winEnd {
		return
	}
	lo, hi := wStart, wEnd
	if lo < winStart {
		lo = winStart
	}
	if hi > winEnd {
		hi = winEnd
	}
	copy(as.fbRes[lo-winStart:hi-winStart], src[lo-wStart:hi-wStart])
}

// CopyIn reads n bytes from addr into a freshly allocated slice.
func (as *AddressSpace) CopyIn(addr uint64, n int) ([]byte, error) {
	if err := as.CheckRange(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	off := addr
	for i := 0; i < n; {
		pageIdx := off / pmm.PageSize
		pageOff := off % pmm.PageSize
		k := copy(out[i:], as.pages[pageIdx][pageOff:])
		i += k
		off += uint64(k)
	}
	return out, nil
}

// MapFramebuffer reserves a window for fb (the VGA memory, owned by
// kernel/console) for the mapvga syscall. The window starts at the current
// break, which is the returned address, and Sz grows by whole pages to cover
// it. CopyOut into the window is also copied into fb; CopyIn reads the
// window's own pages, not fb. A second call returns ErrInval.
func (as *AddressSpace) MapFramebuffer(fb []byte) (addr uint64, err error) {
	if as.fbRes != nil {
		return 0, kerr.ErrInval
	}
	addr = as.sz
	npages := (len(fb) + pmm.PageSize - 1) / pmm.PageSize
	for i := 0; i < npages; i++ {
		p, allocErr := as.alloc.Alloc()
		if allocErr != nil {
			return 0, allocErr
		}
		as.pages = append(as.pages, p)
		as.sz += pmm.PageSize
	}
	as.fbRes = fb
	as.fbAddr = addr
	return addr, nil
}
