// Package bcache is the fixed-size buffer cache of spec §4.8: at most one
// buffer per (dev, blockno), served sleep-locked from bget, evicted LRU when
// full, with the invariant that a dirty buffer is never evicted (that would
// lose an update the log hasn't committed yet).
package bcache

import (
	"container/list"
	"sync"

	"github.com/gamer07340/xv6go/kernel/blockdev"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// DefaultSize matches spec's "~30 buffers".
const DefaultSize = 30

type key struct {
	dev     int
	blockno uint64
}

// Buffer is one cached disk block: device, block number, the valid/dirty
// flags from spec §3, a sleep-lock serializing access to its content, and
// its 512-byte payload.
type Buffer struct {
	Dev     int
	BlockNo uint64

	lock  *klock.SleepLock
	valid bool
	dirty bool
	data  [blockdev.SectorSize]byte

	refcnt int // GUARDED_BY cache.mu
}

func (b *Buffer) Data() []byte { return b.data[:] }

func (b *Buffer) SetData(d []byte) {
	copy(b.data[:], d)
}

func (b *Buffer) Dirty() bool { return b.dirty }

// MarkDirty flags the buffer dirty. Callers must hold b's sleep-lock (taken
// by Read/Bget) and must route the buffer through kernel/journal before it
// can be evicted, per the log-set invariant.
func (b *Buffer) MarkDirty() { b.dirty = true }

// Cache is the fixed LRU pool plus the spinlock guarding its chain; each
// buffer's own sleep-lock guards its content.
type Cache struct {
	mu    sync.Mutex
	dev   *blockdev.Device
	lru   *list.List // front = most recently released, back = eviction candidate
	index map[key]*list.Element

	hits, misses uint64
}

// New preallocates size empty, unreferenced buffers.
func New(dev *blockdev.Device, size int) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache{dev: dev, lru: list.New(), index: make(map[key]*list.Element, size)}
	for i := 0; i < size; i++ {
		b := &Buffer{Dev: -1, lock: klock.NewSleepLock()}
		c.lru.PushBack(b)
	}
	return c
}

// Bget returns the sleep-locked buffer for (dev, blockno): if already
// cached, blocks on its existing sleep-lock; otherwise evicts the
// least-recently-used unreferenced, clean buffer, rekeys it, and returns it
// without doing any I/O — the caller decides whether a read is needed.
func (c *Cache) Bget(dev int, blockno uint64) (*Buffer, error) {
	c.mu.Lock()
	k := key{dev, blockno}
	if el, ok := c.index[k]; ok {
		b := el.Value.(*Buffer)
		b.refcnt++
		c.hits++
		c.mu.Unlock()
		b.lock.Acquire()
		return b, nil
	}
	c.misses++

	for el := c.lru.Back(); el != nil; el = el.Prev() {
		b := el.Value.(*Buffer)
		if b.refcnt != 0 {
			continue
		}
		if b.dirty {
			// A dirty buffer must never reach the back of the LRU chain
			// unreferenced and un-logged; reaching here is a bug in the
			// caller that marked it dirty without routing it through the
			// log (spec §4.8's invariant).
			panic("bcache: refusing to evict a dirty buffer")
		}
		if b.Dev != -1 {
			delete(c.index, key{b.Dev, b.BlockNo})
		}
		b.Dev, b.BlockNo = dev, blockno
		b.valid = false
		b.refcnt = 1
		c.index[k] = el
		c.lru.MoveToFront(el)
		c.mu.Unlock()
		b.lock.Acquire()
		return b, nil
	}
	c.mu.Unlock()
	return nil, kerr.ErrNoMem
}

// Read returns the sleep-locked buffer for (dev, blockno), reading it from
// disk first if it wasn't already cached and valid.
func (c *Cache) Read(dev int, blockno uint64) (*Buffer, error) {
	b, err := c.Bget(dev, blockno)
	if err != nil {
		return nil, err
	}
	if !b.valid {
		req := blockdev.NewBuf(dev, blockno)
		if err := c.dev.Rw(req); err != nil {
			b.lock.Release()
			return nil, err
		}
		b.data = req.Data
		b.valid = true
	}
	return b, nil
}

// Write flushes b's content straight to the device, bypassing the log. Only
// kernel/journal should call this (during commit's install phase); ordinary
// filesystem code must go through log_write instead.
func (c *Cache) Write(b *Buffer) error {
	req := blockdev.NewBuf(b.Dev, b.BlockNo)
	req.Data = b.data
	req.MarkDirty()
	if err := c.dev.Rw(req); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Release unlocks b and moves it to the front of the LRU chain (brelse,
// spec §4.8): most recently released is least likely to be evicted next.
func (c *Cache) Release(b *Buffer) {
	b.lock.Release()

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key{b.Dev, b.BlockNo}]; ok {
		b.refcnt--
		c.lru.MoveToFront(el)
	}
}

// Stats reports cumulative hit/miss counts, for the /metrics gauge.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
