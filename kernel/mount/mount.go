// Package mount is the mount table of spec §4.11: a mapping from a
// directory inode (the mount point) to a block device holding another
// filesystem's root, with at most one filesystem mounted per device.
// It also supplies the path-walking logic that crosses a mount boundary in
// both directions — descending into "." on a mount point switches to the
// mounted filesystem's root, and ascending via ".." out of a mounted root
// switches back to the mount point's filesystem.
package mount

import (
	"errors"
	"strings"

	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// point identifies a mount point by the (dev, inum) of the directory inode
// it replaces, revalidated on every lookup rather than cached as a pointer
// (spec §9's cyclic-reference note: "a mount entry holds an inode reference
// which is a (dev, inum) pair revalidated on use").
type point struct {
	dev  int
	inum uint32
}

// entry is one active mount: the filesystem mounted, and (once mounted)
// where to resurface when a path ascends out of its root via "..".
type entry struct {
	fs       *fsinode.FS
	parentFS *fsinode.FS
	parentIp point // the directory this mount replaced
}

// Table is the live set of mounts. At most one filesystem may be attached
// per backing device (spec §4.11).
type Table struct {
	mu      klock.Spinlock
	byPoint map[point]*entry
	byDev   map[int]*entry
	root    *fsinode.FS // the filesystem mounted at "/"
}

// NewTable creates a mount table rooted at root.
func NewTable(root *fsinode.FS) *Table {
	return &Table{
		byPoint: make(map[point]*entry),
		byDev:   make(map[int]*entry),
		root:    root,
	}
}

// Mount attaches fs at the directory (mountDir, locked, in mountFS) so that
// future path lookups that resolve to that directory instead resolve to
// fs's root. mountDirInum must name an existing directory in mountFS.
func (t *Table) Mount(mountFS *fsinode.FS, mountDirInum uint32, fs *fsinode.FS) error {
	mountDir := mountFS.Get(mountDirInum)
	defer mountFS.Put(mountDir)
	if err := mountDir.Lock(); err != nil {
		return err
	}
	typ := mountDir.Type()
	mountDir.Unlock()
	if typ != fsinode.TypeDir {
		return kerr.ErrInval
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byDev[fs.Dev()]; exists {
		return kerr.ErrState
	}
	p := point{dev: mountFS.Dev(), inum: mountDirInum}
	if _, exists := t.byPoint[p]; exists {
		return kerr.ErrState
	}
	e := &entry{fs: fs, parentFS: mountFS, parentIp: p}
	t.byPoint[p] = e
	t.byDev[fs.Dev()] = e
	return nil
}

// Unmount detaches the filesystem mounted on device dev.
func (t *Table) Unmount(dev int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byDev[dev]
	if !ok {
		return kerr.ErrNoEnt
	}
	delete(t.byDev, dev)
	delete(t.byPoint, point{dev: e.parentFS.Dev(), inum: e.parentIp.inum})
	return nil
}

// mountAt returns the entry mounted at (dev, inum), if any.
func (t *Table) mountAt(dev int, inum uint32) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byPoint[point{dev: dev, inum: inum}]
	return e, ok
}

// mountOf returns the entry whose filesystem is fs, if fs is a mounted
// (non-root) filesystem.
func (t *Table) mountOf(fs *fsinode.FS) (*entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byDev[fs.Dev()]
	return e, ok
}

// Resolved is a located filesystem object: which filesystem it lives on and
// its locked inode there. The caller must Unlock+Put the inode via the
// returned FS.
type Resolved struct {
	FS *fsinode.FS
	Ip *fsinode.Inode
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Namei resolves an absolute path from the global root, crossing mount
// points in both directions as it walks, and returns the final component
// locked on whichever filesystem it actually lives on.
func (t *Table) Namei(path string) (Resolved, error) {
	fs := t.root
	ip := fs.Get(fsinode.RootInum)
	if err := ip.Lock(); err != nil {
		return Resolved{}, err
	}

	for _, name := range splitPath(path) {
		if ip.Type() != fsinode.TypeDir {
			ip.Unlock()
			fs.Put(ip)
			return Resolved{}, kerr.ErrInval
		}

		if name == ".." && ip.Inum == fsinode.RootInum {
			if e, ok := t.mountOf(fs); ok {
				ip.Unlock()
				fs.Put(ip)
				fs = e.parentFS
				parent := fs.Get(e.parentIp.inum)
				if err := parent.Lock(); err != nil {
					return Resolved{}, err
				}
				ip = parent
				continue
			}
		}

		inum, err := fs.Lookup(ip, name)
		if err != nil {
			ip.Unlock()
			fs.Put(ip)
			return Resolved{}, err
		}
		if inum == 0 {
			ip.Unlock()
			fs.Put(ip)
			return Resolved{}, kerr.ErrNoEnt
		}

		next := fs.Get(inum)
		ip.Unlock()
		fs.Put(ip)
		if err := next.Lock(); err != nil {
			fs.Put(next)
			return Resolved{}, err
		}
		ip, fs = next, fs

		if e, ok := t.mountAt(fs.Dev(), ip.Inum); ok {
			ip.Unlock()
			fs.Put(ip)
			fs = e.fs
			root := fs.Get(fsinode.RootInum)
			if err := root.Lock(); err != nil {
				return Resolved{}, err
			}
			ip = root
		}
	}
	return Resolved{FS: fs, Ip: ip}, nil
}

// errRootReached is a sentinel: stepUp(Locked) hit an unmounted filesystem
// root, meaning the walk is done.
var errRootReached = errors.New("mount: reached unmounted root")

// hop is one step from an inode up to its parent: which filesystem and
// inode number the parent lives at, and the name this inode has there
// (empty when the step crossed a mount boundary, which contributes no path
// component of its own — the mount point's own name already will).
type hop struct {
	parentFS   *fsinode.FS
	parentInum uint32
	name       string
}

// stepUpLocked computes ip's parent hop without touching ip's lock — the
// caller already holds it (this is how Getcwd uses the inode it was handed
// without double-acquiring its sleep-lock).
func (t *Table) stepUpLocked(fs *fsinode.FS, ip *fsinode.Inode) (hop, error) {
	if ip.Inum == fsinode.RootInum {
		e, ok := t.mountOf(fs)
		if !ok {
			return hop{}, errRootReached
		}
		return hop{parentFS: e.parentFS, parentInum: e.parentIp.inum}, nil
	}

	parentInum, err := fs.Lookup(ip, "..")
	if err != nil {
		return hop{}, err
	}
	parentIp := fs.Get(parentInum)
	if err := parentIp.Lock(); err != nil {
		fs.Put(parentIp)
		return hop{}, err
	}
	entries, err := fs.ReadDir(parentIp)
	parentIp.Unlock()
	fs.Put(parentIp)
	if err != nil {
		return hop{}, err
	}
	name := ""
	for _, de := range entries {
		if de.Inum == ip.Inum {
			name = de.Name
			break
		}
	}
	if name == "" {
		return hop{}, kerr.ErrState
	}
	return hop{parentFS: fs, parentInum: parentInum, name: name}, nil
}

// stepUp is stepUpLocked for an inode the caller does not already hold
// locked: it fetches, locks, computes, and releases it itself.
func (t *Table) stepUp(fs *fsinode.FS, inum uint32) (hop, error) {
	ip := fs.Get(inum)
	defer fs.Put(ip)
	if err := ip.Lock(); err != nil {
		return hop{}, err
	}
	h, err := t.stepUpLocked(fs, ip)
	ip.Unlock()
	return h, err
}

// Getcwd reconstructs an absolute path for ip (on fs) by walking ".." links
// until reaching a filesystem root that isn't mounted anywhere, crossing
// back out through the mount table at each mounted root (spec §9: "treat
// getcwd as canonical" — never trust a cached path string).
func (t *Table) Getcwd(fs *fsinode.FS, ip *fsinode.Inode) (string, error) {
	var parts []string

	h, err := t.stepUpLocked(fs, ip)
	if err == errRootReached {
		return "/", nil
	}
	if err != nil {
		return "", err
	}
	if h.name != "" {
		parts = append(parts, h.name)
	}
	curFS, curInum := h.parentFS, h.parentInum

	for {
		h, err := t.stepUp(curFS, curInum)
		if err == errRootReached {
			break
		}
		if err != nil {
			return "", err
		}
		if h.name != "" {
			parts = append(parts, h.name)
		}
		curFS, curInum = h.parentFS, h.parentInum
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	if len(parts) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(parts, "/"), nil
}
