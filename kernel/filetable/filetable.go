// Package filetable is the global open-file table and pipe implementation
// of spec §4.11/§4.12: a reference-counted array of file entries, each
// either backed by an inode+offset or a pipe endpoint, indexed indirectly
// through a process's own fd array.
package filetable

import (
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// Kind discriminates what a File entry is backed by.
type Kind int

const (
	KindNone Kind = iota
	KindInode
	KindPipe
)

// File is one global open-file entry: a type discriminator, reference
// count, readable/writable flags, and either an inode+offset or a pipe
// endpoint (spec §4.11).
type File struct {
	mu       klock.Spinlock
	kind     Kind
	ref      int
	readable bool
	writable bool

	fs     *fsinode.FS
	ip     *fsinode.Inode
	offset uint32

	pipe    *Pipe
	reading bool // this end reads the pipe (false = write end)
}

// Table is the global, fixed-size open-file array (spec: "Global open-file
// array"). NFile bounds it at compile time like the rest of the kernel's
// tables.
const NFile = 256

type Table struct {
	mu    klock.Spinlock
	files [NFile]*File
}

func NewTable() *Table { return &Table{} }

// OpenInode installs a new inode-backed file entry, returning it with
// ref==1.
func (t *Table) OpenInode(fs *fsinode.FS, ip *fsinode.Inode, readable, writable bool) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, f := range t.files {
		if f == nil {
			nf := &File{kind: KindInode, ref: 1, readable: readable, writable: writable, fs: fs, ip: ip}
			t.files[i] = nf
			return nf, nil
		}
	}
	return nil, kerr.ErrNoSpace
}

// OpenPipeEnds installs the two ends of a fresh pipe.
func (t *Table) OpenPipeEnds() (r, w *File, err error) {
	p := newPipe()
	t.mu.Lock()
	defer t.mu.Unlock()
	var slots []int
	for i, f := range t.files {
		if f == nil {
			slots = append(slots, i)
			if len(slots) == 2 {
				break
			}
		}
	}
	if len(slots) != 2 {
		return nil, nil, kerr.ErrNoSpace
	}
	r = &File{kind: KindPipe, ref: 1, readable: true, pipe: p, reading: true}
	w = &File{kind: KindPipe, ref: 1, writable: true, pipe: p, reading: false}
	t.files[slots[0]] = r
	t.files[slots[1]] = w
	return r, w, nil
}

// Dup bumps f's reference count (dup, spec §4.11).
func (t *Table) Dup(f *File) *File {
	f.mu.Lock()
	f.ref++
	f.mu.Unlock()
	return f
}

// Close drops a reference; at zero it releases the backing inode or closes
// the pipe endpoint, waking the other end so it observes EOF.
func (t *Table) Close(f *File) error {
	f.mu.Lock()
	f.ref--
	ref := f.ref
	f.mu.Unlock()
	if ref > 0 {
		return nil
	}

	t.mu.Lock()
	for i, e := range t.files {
		if e == f {
			t.files[i] = nil
			break
		}
	}
	t.mu.Unlock()

	switch f.kind {
	case KindInode:
		f.fs.Put(f.ip)
		return nil
	case KindPipe:
		f.pipe.closeEnd(f.reading)
		return nil
	}
	return nil
}

// Read dispatches to the inode or pipe read path depending on f's kind.
func (t *Table) Read(f *File, dst []byte) (int, error) {
	if !f.readable {
		return 0, kerr.ErrPerm
	}
	switch f.kind {
	case KindInode:
		f.ip.Lock()
		n, err := f.ip.ReadI(dst, f.offset, uint32(len(dst)))
		f.ip.Unlock()
		f.offset += uint32(n)
		return n, err
	case KindPipe:
		return f.pipe.read(dst)
	}
	return 0, kerr.ErrInval
}

// maxWritePerOp bounds how many bytes one log transaction writes, mirroring
// xv6's filewrite: ((MAXOPBLOCKS-1-1-2)/2)*BSIZE, reserving room in the
// per-op block budget for the superblock, the inode block and a possible
// indirect block on top of the data block itself, halved because both a
// data block and its indirect pointer may need allocating.
const maxWritePerOp = ((journal.MaxOpBlocks - 4) / 2) * fsinode.BlockSize

// Write dispatches to the inode or pipe write path depending on f's kind.
// An inode write is chunked into maxWritePerOp-sized pieces, each wrapped
// in its own log transaction (filewrite's own loop), so a write spanning
// more blocks than one transaction may safely log still persists instead
// of overflowing a single commit.
func (t *Table) Write(f *File, src []byte) (int, error) {
	if !f.writable {
		return 0, kerr.ErrPerm
	}
	switch f.kind {
	case KindInode:
		total := 0
		for total < len(src) {
			n := len(src) - total
			if n > maxWritePerOp {
				n = maxWritePerOp
			}
			jlog := f.fs.Log()
			jlog.Begin()
			f.ip.Lock()
			written, err := f.ip.WriteI(src[total:total+n], f.offset, uint32(n))
			f.ip.Unlock()
			endErr := jlog.End()
			if err != nil {
				return total + written, err
			}
			if endErr != nil {
				return total + written, endErr
			}
			f.offset += uint32(written)
			total += written
			if written < n {
				break
			}
		}
		return total, nil
	case KindPipe:
		return f.pipe.write(src)
	}
	return 0, kerr.ErrInval
}

// Seek repositions an inode-backed file's offset (lseek). Pipes do not
// support seeking.
func (t *Table) Seek(f *File, off uint32) error {
	if f.kind != KindInode {
		return kerr.ErrInval
	}
	f.offset = off
	return nil
}

// StatInfo is the subset of an inode-backed file's metadata fstat exposes
// (spec's dinode fields — original_source/stat.h carries atime/mtime/ctime
// too, but this rendition's dinode layout tracks none of those, so Stat
// doesn't invent them).
type StatInfo struct {
	Type  fsinode.InodeType
	Dev   int
	Inum  uint32
	Nlink uint16
	Size  uint32
	Mode  uint32
	Uid   uint32
	Gid   uint32
}

// Stat reads f's backing inode's metadata (filestat). Only inode-backed
// files can be stat'd; pipes have none.
func (t *Table) Stat(f *File) (StatInfo, error) {
	if f.kind != KindInode {
		return StatInfo{}, kerr.ErrInval
	}
	ip := f.ip
	return StatInfo{
		Type:  ip.Type(),
		Dev:   f.fs.Dev(),
		Inum:  ip.Inum,
		Nlink: ip.Nlink(),
		Size:  ip.Size(),
		Mode:  ip.Mode(),
		Uid:   ip.Uid(),
		Gid:   ip.Gid(),
	}, nil
}
