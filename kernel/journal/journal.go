// Package journal is the write-ahead, redo-only log of spec §4.9: groups of
// block writes are made atomic by staging them in a reserved log region,
// committing the header that records which blocks were staged, installing
// the blocks to their final locations, and only then clearing the header.
// A crash between any two of those steps is recovered by replaying the
// header on the next boot (spec §8 scenario 1).
package journal

import (
	"encoding/binary"

	"github.com/containerd/log"
	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// MaxOpBlocks bounds how many distinct blocks a single filesystem operation
// may log, matching spec's "operations must stage at most LOGSIZE blocks"
// (LOGSIZE here being derived from the on-disk log region's size).
const MaxOpBlocks = 10

// Log owns the on-disk log region [start, start+size) on dev and the
// in-memory bookkeeping of the currently active transaction.
type Log struct {
	mu  klock.Spinlock
	cwq *klock.WaitQueue

	cache *bcache.Cache
	dev   int
	start uint64
	size  uint64 // total log blocks, including the header block

	outstanding int  // number of begin_op callers not yet matched by end_op
	committing  bool // GUARDED_BY mu

	pending []uint64 // distinct target block numbers logged this "batch"
}

// logsize is the usable capacity: one block is reserved for the header.
func (l *Log) logsize() uint64 { return l.size - 1 }

// Open attaches to an existing log region and replays any committed-but-not-
// installed transaction left over from a crash (spec §4.9's recovery).
func Open(cache *bcache.Cache, dev int, start, size uint64) (*Log, error) {
	l := &Log{
		cache: cache,
		dev:   dev,
		start: start,
		size:  size,
		cwq:   klock.NewWaitQueue(),
	}
	if err := l.recover(); err != nil {
		return nil, err
	}
	return l, nil
}

// header is the on-disk log header layout from spec §6: a count followed by
// an array of target block numbers, packed as little-endian uint64s.
type header struct {
	count  uint64
	blocks []uint64
}

func (l *Log) readHeader() (header, error) {
	b, err := l.cache.Read(l.dev, l.start)
	if err != nil {
		return header{}, err
	}
	defer l.cache.Release(b)

	data := b.Data()
	count := binary.LittleEndian.Uint64(data[0:8])
	h := header{count: count, blocks: make([]uint64, count)}
	for i := uint64(0); i < count; i++ {
		off := 8 + i*8
		h.blocks[i] = binary.LittleEndian.Uint64(data[off : off+8])
	}
	return h, nil
}

func (l *Log) writeHeader(h header) error {
	b, err := l.cache.Read(l.dev, l.start)
	if err != nil {
		return err
	}
	defer l.cache.Release(b)

	data := b.Data()
	for i := range data {
		data[i] = 0
	}
	binary.LittleEndian.PutUint64(data[0:8], h.count)
	for i, blockno := range h.blocks {
		off := 8 + uint64(i)*8
		binary.LittleEndian.PutUint64(data[off:off+8], blockno)
	}
	b.MarkDirty()
	return l.cache.Write(b)
}

// recover replays a non-empty header left by a crash mid-commit, then
// clears it. Safe to call on a clean shutdown too: count will be zero.
func (l *Log) recover() error {
	h, err := l.readHeader()
	if err != nil {
		return err
	}
	if h.count == 0 {
		return nil
	}
	log.L.WithField("count", h.count).Info("journal: replaying committed transaction")
	if err := l.installFromLog(h); err != nil {
		return err
	}
	return l.writeHeader(header{})
}

// Begin reserves a slot for a new transaction, blocking while a commit is in
// flight or while admitting this transaction could overflow the log's
// capacity (spec: "operations must stage at most LOGSIZE blocks").
func (l *Log) Begin() {
	l.mu.Lock()
	for {
		full := uint64(len(l.pending)+MaxOpBlocks) > l.logsize()
		if !l.committing && !full {
			l.outstanding++
			l.mu.Unlock()
			return
		}
		l.cwq.Sleep(l.mu.Locker())
	}
}

// Write promotes b into the active transaction's log set, deduplicating
// against blocks already pending, and prevents its eviction until commit by
// relying on the caller to keep b locked/referenced for the duration of the
// transaction.
func (l *Log) Write(b *bcache.Buffer) {
	b.MarkDirty()

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, bn := range l.pending {
		if bn == b.BlockNo {
			return
		}
	}
	l.pending = append(l.pending, b.BlockNo)
}

// End matches a prior Begin. When the last outstanding transaction ends, it
// runs commit: copy each logged block into the log region, write the header
// last, install blocks to their final locations, then clear the header.
func (l *Log) End() error {
	l.mu.Lock()
	l.outstanding--
	doCommit := l.outstanding == 0
	if doCommit {
		l.committing = true
	}
	l.mu.Unlock()

	if !doCommit {
		l.cwq.Wake()
		return nil
	}

	err := l.commit()

	l.mu.Lock()
	l.committing = false
	l.pending = nil
	l.mu.Unlock()
	l.cwq.Wake()
	return err
}

func (l *Log) commit() error {
	l.mu.Lock()
	pending := append([]uint64(nil), l.pending...)
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if uint64(len(pending)) > l.logsize() {
		return kerr.ErrNoSpace
	}

	if err := l.writeLog(pending); err != nil {
		return err
	}
	h := header{count: uint64(len(pending)), blocks: pending}
	if err := l.writeHeader(h); err != nil {
		return err
	}
	if err := l.installFromLog(h); err != nil {
		return err
	}
	return l.writeHeader(header{})
}

// writeLog copies each pending block's current (dirty, cached) contents into
// the log region, in order, ahead of writing the header.
func (l *Log) writeLog(pending []uint64) error {
	for i, blockno := range pending {
		from, err := l.cache.Read(l.dev, blockno)
		if err != nil {
			return err
		}
		to, err := l.cache.Read(l.dev, l.start+1+uint64(i))
		if err != nil {
			l.cache.Release(from)
			return err
		}
		to.SetData(from.Data())
		to.MarkDirty()
		err = l.cache.Write(to)
		l.cache.Release(to)
		l.cache.Release(from)
		if err != nil {
			return err
		}
	}
	return nil
}

// installFromLog copies the log region's contents to each block's home
// location, the final step of commit (and the whole of crash recovery).
func (l *Log) installFromLog(h header) error {
	for i, blockno := range h.blocks {
		from, err := l.cache.Read(l.dev, l.start+1+uint64(i))
		if err != nil {
			return err
		}
		to, err := l.cache.Read(l.dev, blockno)
		if err != nil {
			l.cache.Release(from)
			return err
		}
		to.SetData(from.Data())
		to.MarkDirty()
		err = l.cache.Write(to)
		l.cache.Release(to)
		l.cache.Release(from)
		if err != nil {
			return err
		}
	}
	return nil
}
