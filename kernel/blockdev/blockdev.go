// Package blockdev is the PIO-style block driver of spec §4.7: a single
// ordered request queue over a disk image, with per-request completion
// driven by a simulated interrupt rather than real IDE port I/O. The raw
// flag lets two logical devices (a filesystem partition and, e.g., a swap or
// scratch partition) share one backing image, exactly as spec describes.
package blockdev

import (
	"io"
	"os"
	"sync"

	"github.com/containerd/log"
	"github.com/detailyang/go-fallocate"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// SectorSize matches the filesystem block size used throughout this kernel.
const SectorSize = 512

// Buf is the unit of I/O the driver operates on: one sector plus the flags
// that let completion and the caller coordinate over klock's sleep/wakeup.
type Buf struct {
	Dev     int
	BlockNo uint64
	Raw     bool // bypasses the filesystem's block offset (spec §4.7)
	Data    [SectorSize]byte

	valid bool
	dirty bool
	wq    *klock.WaitQueue
	mu    sync.Mutex
	next  *Buf
}

func NewBuf(dev int, blockno uint64) *Buf {
	return &Buf{Dev: dev, BlockNo: blockno, wq: klock.NewWaitQueue()}
}

func (b *Buf) Valid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.valid
}

func (b *Buf) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

func (b *Buf) MarkDirty() {
	b.mu.Lock()
	b.dirty = true
	b.mu.Unlock()
}

// Device is a file-backed stand-in for the IDE controller: a single request
// queue, serviced head-first, each request's completion simulated by a
// goroutine instead of a hardware interrupt.
type Device struct {
	mu      klock.Spinlock
	f       *os.File
	offset  int64 // byte offset of the raw partition's start, for the raw flag
	head    *Buf
	tail    *Buf
	running bool
}

// Open opens (creating and preallocating if necessary) a disk image of the
// given size in bytes at path. rawOffset is the byte offset at which the raw
// partition namespace begins within the same file.
func Open(path string, size int64, rawOffset int64) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < size {
		if err := fallocate.Fallocate(f, fi.Size(), size-fi.Size()); err != nil {
			// Fall back to a plain truncate on filesystems that reject
			// fallocate (e.g. some overlay/tmpfs mounts in CI).
			if err2 := f.Truncate(size); err2 != nil {
				f.Close()
				return nil, err2
			}
		}
	}
	return &Device{f: f, offset: rawOffset}, nil
}

func (d *Device) Close() error { return d.f.Close() }

// Rw enqueues buf and blocks until the device has transitioned it to valid,
// not-dirty (spec §4.7's iderw contract). On a read, buf.Data is filled with
// the sector's contents; on a write, buf.Data is written out.
func (d *Device) Rw(buf *Buf) error {
	d.mu.Lock()
	if buf.next != nil || d.tail == buf {
		panic("blockdev: buf already queued")
	}
	wasEmpty := d.head == nil
	if d.head == nil {
		d.head, d.tail = buf, buf
	} else {
		d.tail.next = buf
		d.tail = buf
	}
	if wasEmpty {
		go d.service()
	}
	d.mu.Unlock()

	buf.mu.Lock()
	for !(buf.valid && !buf.dirty) {
		// Park on the buffer's own wait queue; service() wakes it after
		// each completed request.
		buf.wq.Sleep(&buf.mu)
	}
	buf.mu.Unlock()
	return nil
}

// service drains the queue head-first, simulating one interrupt-completion
// per request.
func (d *Device) service() {
	for {
		d.mu.Lock()
		buf := d.head
		if buf == nil {
			d.mu.Unlock()
			return
		}
		d.mu.Unlock()

		if err := d.transfer(buf); err != nil {
			log.L.WithError(err).WithField("block", buf.BlockNo).Error("blockdev: transfer failed")
		}

		d.mu.Lock()
		d.head = buf.next
		buf.next = nil
		if d.head == nil {
			d.tail = nil
		}
		d.mu.Unlock()

		buf.mu.Lock()
		buf.valid = true
		buf.dirty = false
		buf.mu.Unlock()
		buf.wq.Wake()
	}
}

func (d *Device) sectorOffset(buf *Buf) int64 {
	if buf.Raw {
		return d.offset + int64(buf.BlockNo)*SectorSize
	}
	return int64(buf.BlockNo) * SectorSize
}

func (d *Device) transfer(buf *Buf) error {
	off := d.sectorOffset(buf)
	if buf.Dirty() {
		_, err := d.f.WriteAt(buf.Data[:], off)
		if err != nil {
			return kerr.ErrDevice
		}
		return nil
	}
	n, err := d.f.ReadAt(buf.Data[:], off)
	if err != nil && err != io.EOF {
		return kerr.ErrDevice
	}
	for i := n; i < SectorSize; i++ {
		buf.Data[i] = 0
	}
	return nil
}
