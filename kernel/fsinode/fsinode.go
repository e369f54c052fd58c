package fsinode

import (
	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// MaxActiveInodes bounds the in-memory inode cache, mirroring spec's
// "table of active inodes" with a compile-time-fixed size.
const MaxActiveInodes = 64

// Inode is the in-memory cached copy of a dinode: a sleep-lock over its
// content plus the reference count and validity bit spec §4.10 calls for.
type Inode struct {
	fs    *FS
	Dev   int
	Inum  uint32
	lock  *klock.SleepLock
	ref   int // GUARDED_BY fs.mu
	valid bool
	dinode
}

func (ip *Inode) Type() InodeType   { return ip.dinode.Type }
func (ip *Inode) Nlink() uint16     { return ip.dinode.Nlink }
func (ip *Inode) Size() uint32      { return ip.dinode.Size }
func (ip *Inode) Uid() uint32       { return ip.dinode.Uid }
func (ip *Inode) Gid() uint32       { return ip.dinode.Gid }
func (ip *Inode) Mode() uint32      { return ip.dinode.Mode }
func (ip *Inode) Major() uint16     { return ip.dinode.Major }
func (ip *Inode) Minor() uint16     { return ip.dinode.Minor }
func (ip *Inode) SetMode(m uint32)  { ip.dinode.Mode = m }
func (ip *Inode) SetOwner(u, g uint32) {
	ip.dinode.Uid, ip.dinode.Gid = u, g
}

// FS is one mounted filesystem instance: a superblock, its buffer cache,
// its journal, and the in-memory active-inode table.
type FS struct {
	cache *bcache.Cache
	log   *journal.Log
	dev   int
	sb    SuperBlock

	mu     klock.Spinlock
	active []*Inode // len <= MaxActiveInodes; nil entries are free slots
}

// Format writes a fresh superblock, zeroes the bitmap, and seeds inode 1 as
// the root directory. totalBlocks and nLogBlocks are block counts; nInodes
// is the number of inode slots.
func Format(cache *bcache.Cache, log *journal.Log, dev int, totalBlocks, nInodes, nLogBlocks uint32) (*FS, error) {
	inodeBlocks := (nInodes + IPB - 1) / IPB
	logStart := uint32(1) + 1 // block 0 boot, block 1 superblock
	inodeStart := logStart + nLogBlocks
	bmapStart := inodeStart + inodeBlocks
	nbitmapBlocks := nBitmapBlocks(totalBlocks) // upper bound; actual NBlocks is <= totalBlocks
	firstDataBlock := bmapStart + nbitmapBlocks

	sb := SuperBlock{
		Size:       totalBlocks,
		NBlocks:    totalBlocks - firstDataBlock,
		NInodes:    nInodes,
		NLog:       nLogBlocks,
		LogStart:   logStart,
		InodeStart: inodeStart,
		BmapStart:  bmapStart,
	}

	sbBuf, err := cache.Read(dev, 1)
	if err != nil {
		return nil, err
	}
	data := sb.marshal()
	sbBuf.SetData(data[:])
	sbBuf.MarkDirty()
	err = cache.Write(sbBuf)
	cache.Release(sbBuf)
	if err != nil {
		return nil, err
	}

	for i := uint32(0); i < nbitmapBlocks; i++ {
		buf, err := cache.Read(dev, uint64(bmapStart+i))
		if err != nil {
			return nil, err
		}
		d := buf.Data()
		for j := range d {
			d[j] = 0
		}
		buf.MarkDirty()
		err = cache.Write(buf)
		cache.Release(buf)
		if err != nil {
			return nil, err
		}
	}
	for i := uint32(0); i < inodeBlocks; i++ {
		buf, err := cache.Read(dev, uint64(inodeStart+i))
		if err != nil {
			return nil, err
		}
		d := buf.Data()
		for j := range d {
			d[j] = 0
		}
		buf.MarkDirty()
		err = cache.Write(buf)
		cache.Release(buf)
		if err != nil {
			return nil, err
		}
	}

	fs := &FS{cache: cache, log: log, dev: dev, sb: sb}

	root, err := fs.Alloc(TypeDir, 0, 0, 0o755)
	if err != nil {
		return nil, err
	}
	if root.Inum != RootInum {
		panic("fsinode: root directory must be inode 1")
	}
	root.Lock()
	root.dinode.Nlink = 1
	if err := fs.Update(root); err != nil {
		root.Unlock()
		return nil, err
	}
	if err := fs.dirlink(root, ".", root.Inum); err != nil {
		root.Unlock()
		return nil, err
	}
	if err := fs.dirlink(root, "..", root.Inum); err != nil {
		root.Unlock()
		return nil, err
	}
	root.Unlock()
	fs.Put(root)

	return fs, nil
}

// RootInum is the fixed inode number of the filesystem root, assigned by
// Format always allocating it first.
const RootInum = 1

// Open attaches to an already-formatted filesystem, reading its superblock.
func Open(cache *bcache.Cache, log *journal.Log, dev int) (*FS, error) {
	buf, err := cache.Read(dev, 1)
	if err != nil {
		return nil, err
	}
	sb := unmarshalSuperBlock(buf.Data())
	cache.Release(buf)
	return &FS{cache: cache, log: log, dev: dev, sb: sb}, nil
}

func (fs *FS) SuperBlock() SuperBlock { return fs.sb }

// Dev is the device number this filesystem instance is mounted on.
func (fs *FS) Dev() int { return fs.dev }

// Log returns this filesystem's write-ahead log, so callers that mutate
// persistent state through it (kernel/filetable, kernel/trap, xv6fs) can
// bracket their operation in Begin/End, exactly as xv6's sys_write/create/
// etc. bracket their own calls into fs.c with begin_op/end_op.
func (fs *FS) Log() *journal.Log { return fs.log }

// Get returns the in-memory cached Inode for inum, allocating a cache slot
// and bumping its reference count, but does not read the dinode from disk
// (iget, spec §4.10) — callers must Lock before touching fields.
func (fs *FS) Get(inum uint32) *Inode {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var free *Inode
	for _, ip := range fs.active {
		if ip == nil {
			continue
		}
		if ip.ref > 0 && ip.Dev == fs.dev && ip.Inum == inum {
			ip.ref++
			return ip
		}
		if ip.ref == 0 && free == nil {
			free = ip
		}
	}
	if free != nil {
		free.Dev, free.Inum, free.ref, free.valid = fs.dev, inum, 1, false
		return free
	}
	if len(fs.active) >= MaxActiveInodes {
		panic("fsinode: active inode table exhausted")
	}
	ip := &Inode{fs: fs, Dev: fs.dev, Inum: inum, ref: 1, lock: klock.NewSleepLock()}
	fs.active = append(fs.active, ip)
	return ip
}

// Lock sleep-locks ip and, if not already valid, reads its dinode from disk.
func (ip *Inode) Lock() error {
	ip.lock.Acquire()
	if ip.valid {
		return nil
	}
	buf, err := ip.fs.cache.Read(ip.Dev, uint64(dinodeBlock(ip.fs.sb, ip.Inum)))
	if err != nil {
		ip.lock.Release()
		return err
	}
	off := int(ip.Inum%IPB) * DinodeSize
	ip.dinode = unmarshalDinode(buf.Data()[off : off+DinodeSize])
	ip.fs.cache.Release(buf)
	if ip.dinode.Type == TypeFree {
		ip.lock.Release()
		return kerr.ErrNoEnt
	}
	ip.valid = true
	return nil
}

func (ip *Inode) Unlock() { ip.lock.Release() }

// Put drops a reference; if it reaches zero and the link count is zero, the
// inode's content and both indirect trees are freed and the slot reused.
func (fs *FS) Put(ip *Inode) {
	ip.lock.Acquire()
	if ip.valid && ip.dinode.Nlink == 0 {
		fs.mu.Lock()
		refOne := ip.ref == 1
		fs.mu.Unlock()
		if refOne {
			fs.trunc(ip)
			ip.dinode.Type = TypeFree
			fs.update(ip)
			ip.valid = false
		}
	}
	ip.lock.Release()

	fs.mu.Lock()
	ip.ref--
	fs.mu.Unlock()
}

// Update writes ip's dinode back through the log (iupdate, spec §4.9/§4.10).
func (fs *FS) Update(ip *Inode) error { return fs.update(ip) }

func (fs *FS) update(ip *Inode) error {
	buf, err := fs.cache.Read(ip.Dev, uint64(dinodeBlock(fs.sb, ip.Inum)))
	if err != nil {
		return err
	}
	off := int(ip.Inum%IPB) * DinodeSize
	copy(buf.Data()[off:off+DinodeSize], ip.dinode.marshal())
	fs.log.Write(buf)
	fs.cache.Release(buf)
	return nil
}

// Alloc scans inode blocks for a free slot (ialloc, spec §4.10), marks it
// with the given type/owner/mode, and returns it locked-free (caller must
// Lock before further use, matching xv6's ialloc contract).
func (fs *FS) Alloc(typ InodeType, uid, gid, mode uint32) (*Inode, error) {
	for inum := uint32(1); inum < fs.sb.NInodes; inum++ {
		buf, err := fs.cache.Read(fs.dev, uint64(dinodeBlock(fs.sb, inum)))
		if err != nil {
			return nil, err
		}
		off := int(inum%IPB) * DinodeSize
		d := unmarshalDinode(buf.Data()[off : off+DinodeSize])
		if d.Type == TypeFree {
			d = dinode{Type: typ, Uid: uid, Gid: gid, Mode: mode}
			copy(buf.Data()[off:off+DinodeSize], d.marshal())
			fs.log.Write(buf)
			fs.cache.Release(buf)
			return fs.Get(inum), nil
		}
		fs.cache.Release(buf)
	}
	return nil, kerr.ErrNoSpace
}

// bmap returns the disk block number holding ip's logical block bn,
// allocating it (through the bitmap) if it doesn't exist yet.
func (ip *Inode) bmap(bn uint32) (uint32, error) {
	fs := ip.fs
	if bn < NDirect {
		if ip.dinode.Addrs[bn] == 0 {
			addr, err := balloc(fs.cache, fs.log, fs.dev, fs.sb)
			if err != nil {
				return 0, err
			}
			ip.dinode.Addrs[bn] = addr
		}
		return ip.dinode.Addrs[bn], nil
	}
	bn -= NDirect
	if bn < NIndirect1 {
		return ip.bmapIndirect(NDirect, bn)
	}
	bn -= NIndirect1
	if bn < NIndirect2 {
		return ip.bmapDoubleIndirect(NDirect+1, bn)
	}
	return 0, kerr.ErrNoSpace
}

func (ip *Inode) bmapIndirect(slot int, bn uint32) (uint32, error) {
	fs := ip.fs
	if ip.dinode.Addrs[slot] == 0 {
		addr, err := balloc(fs.cache, fs.log, fs.dev, fs.sb)
		if err != nil {
			return 0, err
		}
		ip.dinode.Addrs[slot] = addr
	}
	buf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[slot]))
	if err != nil {
		return 0, err
	}
	defer fs.cache.Release(buf)
	addr := readBlockPtr(buf.Data(), int(bn))
	if addr == 0 {
		addr, err = balloc(fs.cache, fs.log, fs.dev, fs.sb)
		if err != nil {
			return 0, err
		}
		writeBlockPtr(buf.Data(), int(bn), addr)
		fs.log.Write(buf)
	}
	return addr, nil
}

func (ip *Inode) bmapDoubleIndirect(slot int, bn uint32) (uint32, error) {
	fs := ip.fs
	if ip.dinode.Addrs[slot] == 0 {
		addr, err := balloc(fs.cache, fs.log, fs.dev, fs.sb)
		if err != nil {
			return 0, err
		}
		ip.dinode.Addrs[slot] = addr
	}
	outer := bn / pointersPerBlock
	inner := bn % pointersPerBlock

	obuf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[slot]))
	if err != nil {
		return 0, err
	}
	mid := readBlockPtr(obuf.Data(), int(outer))
	if mid == 0 {
		mid, err = balloc(fs.cache, fs.log, fs.dev, fs.sb)
		if err != nil {
			fs.cache.Release(obuf)
			return 0, err
		}
		writeBlockPtr(obuf.Data(), int(outer), mid)
		fs.log.Write(obuf)
	}
	fs.cache.Release(obuf)

	ibuf, err := fs.cache.Read(fs.dev, uint64(mid))
	if err != nil {
		return 0, err
	}
	defer fs.cache.Release(ibuf)
	addr := readBlockPtr(ibuf.Data(), int(inner))
	if addr == 0 {
		addr, err = balloc(fs.cache, fs.log, fs.dev, fs.sb)
		if err != nil {
			return 0, err
		}
		writeBlockPtr(ibuf.Data(), int(inner), addr)
		fs.log.Write(ibuf)
	}
	return addr, nil
}

// ReadI copies min(n, size-off) bytes starting at off into dst (readi).
func (ip *Inode) ReadI(dst []byte, off, n uint32) (int, error) {
	if off > ip.dinode.Size {
		return 0, nil
	}
	if off+n > ip.dinode.Size {
		n = ip.dinode.Size - off
	}
	total := uint32(0)
	for total < n {
		bn := (off + total) / BlockSize
		boff := (off + total) % BlockSize
		addr, err := ip.bmap(bn)
		if err != nil {
			return int(total), err
		}
		buf, err := ip.fs.cache.Read(ip.Dev, uint64(addr))
		if err != nil {
			return int(total), err
		}
		m := min32(n-total, BlockSize-boff)
		copy(dst[total:total+m], buf.Data()[boff:boff+m])
		ip.fs.cache.Release(buf)
		total += m
	}
	return int(total), nil
}

// WriteI writes src at off, growing the file (and allocating blocks via
// bmap) as needed, and failing gracefully past MaxFileBlocks (spec §8).
func (ip *Inode) WriteI(src []byte, off, n uint32) (int, error) {
	if uint64(off)+uint64(n) > uint64(MaxFileBlocks)*BlockSize {
		return 0, kerr.ErrNoSpace
	}
	if off > ip.dinode.Size {
		return 0, kerr.ErrInval
	}
	total := uint32(0)
	for total < n {
		bn := (off + total) / BlockSize
		boff := (off + total) % BlockSize
		addr, err := ip.bmap(bn)
		if err != nil {
			return int(total), err
		}
		buf, err := ip.fs.cache.Read(ip.Dev, uint64(addr))
		if err != nil {
			return int(total), err
		}
		m := min32(n-total, BlockSize-boff)
		copy(buf.Data()[boff:boff+m], src[total:total+m])
		ip.fs.log.Write(buf)
		ip.fs.cache.Release(buf)
		total += m
	}
	if off+total > ip.dinode.Size {
		ip.dinode.Size = off + total
	}
	if total > 0 {
		if err := ip.fs.Update(ip); err != nil {
			return int(total), err
		}
	}
	return int(total), nil
}

// trunc frees every block reachable from ip, both indirect trees included
// (itrunc, spec §4.10), and resets size to zero.
func (fs *FS) trunc(ip *Inode) {
	for i := 0; i < NDirect; i++ {
		if ip.dinode.Addrs[i] != 0 {
			_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[i])
			ip.dinode.Addrs[i] = 0
		}
	}
	if ip.dinode.Addrs[NDirect] != 0 {
		buf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[NDirect]))
		if err == nil {
			for i := 0; i < pointersPerBlock; i++ {
				if a := readBlockPtr(buf.Data(), i); a != 0 {
					_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, a)
				}
			}
			fs.cache.Release(buf)
		}
		_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[NDirect])
		ip.dinode.Addrs[NDirect] = 0
	}
	if ip.dinode.Addrs[NDirect+1] != 0 {
		obuf, err := fs.cache.Read(fs.dev, uint64(ip.dinode.Addrs[NDirect+1]))
		if err == nil {
			for i := 0; i < pointersPerBlock; i++ {
				mid := readBlockPtr(obuf.Data(), i)
				if mid == 0 {
					continue
				}
				ibuf, err := fs.cache.Read(fs.dev, uint64(mid))
				if err == nil {
					for j := 0; j < pointersPerBlock; j++ {
						if a := readBlockPtr(ibuf.Data(), j); a != 0 {
							_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, a)
						}
					}
					fs.cache.Release(ibuf)
				}
				_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, mid)
			}
			fs.cache.Release(obuf)
		}
		_ = bfree(fs.cache, fs.log, fs.dev, fs.sb, ip.dinode.Addrs[NDirect+1])
		ip.dinode.Addrs[NDirect+1] = 0
	}
	ip.dinode.Size = 0
	fs.update(ip)
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
