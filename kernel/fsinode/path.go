package fsinode

import (
	"strings"

	"github.com/gamer07340/xv6go/kernel/kerr"
)

// Lookup exposes dirlookup for callers outside this package (kernel/mount's
// mount-boundary-crossing path walk needs it to detect when a directory it
// is about to descend into is itself a mount point).
func (fs *FS) Lookup(dir *Inode, name string) (uint32, error) {
	inum, _, err := fs.dirlookup(dir, name)
	return inum, err
}

// dirlookup scans dir's entries for name, returning the matching inum and
// its byte offset within the directory's data, or (0, -1, nil) if absent.
// dir must already be locked by the caller.
func (fs *FS) dirlookup(dir *Inode, name string) (inum uint32, off int, err error) {
	if dir.dinode.Type != TypeDir {
		return 0, -1, kerr.ErrInval
	}
	buf := make([]byte, DirentSize)
	for o := uint32(0); o < dir.dinode.Size; o += DirentSize {
		n, err := dir.ReadI(buf, o, DirentSize)
		if err != nil {
			return 0, -1, err
		}
		if n != DirentSize {
			return 0, -1, kerr.ErrState
		}
		de := unmarshalDirent(buf)
		if de.Inum != 0 && de.Name == name {
			return de.Inum, int(o), nil
		}
	}
	return 0, -1, nil
}

// dirlink adds (name, inum) to dir's entries, reusing a free slot if one
// exists, growing the directory's size otherwise. dir must be locked.
func (fs *FS) dirlink(dir *Inode, name string, inum uint32) error {
	if existing, _, err := fs.dirlookup(dir, name); err != nil {
		return err
	} else if existing != 0 {
		return kerr.ErrInval
	}

	buf := make([]byte, DirentSize)
	var o uint32
	for o = 0; o < dir.dinode.Size; o += DirentSize {
		n, err := dir.ReadI(buf, o, DirentSize)
		if err != nil {
			return err
		}
		if n != DirentSize {
			return kerr.ErrState
		}
		if unmarshalDirent(buf).Inum == 0 {
			break
		}
	}
	de := marshalDirent(Dirent{Inum: inum, Name: name})
	_, err := dir.WriteI(de, o, DirentSize)
	return err
}

// dirunlink clears the entry named name in dir by zeroing its inum, leaving
// a free slot for reuse (matches xv6's approach: directories never shrink).
func (fs *FS) dirunlink(dir *Inode, name string) error {
	_, off, err := fs.dirlookup(dir, name)
	if err != nil {
		return err
	}
	if off < 0 {
		return kerr.ErrNoEnt
	}
	empty := make([]byte, DirentSize)
	_, err = dir.WriteI(empty, uint32(off), DirentSize)
	return err
}

// IsDirEmpty reports whether dir has no entries besides "." and "..".
func (fs *FS) IsDirEmpty(dir *Inode) (bool, error) {
	buf := make([]byte, DirentSize)
	for o := uint32(2 * DirentSize); o < dir.dinode.Size; o += DirentSize {
		n, err := dir.ReadI(buf, o, DirentSize)
		if err != nil {
			return false, err
		}
		if n != DirentSize {
			return false, kerr.ErrState
		}
		if unmarshalDirent(buf).Inum != 0 {
			return false, nil
		}
	}
	return true, nil
}

// ReadDir returns every non-free entry in dir, skipping "." and "..".
func (fs *FS) ReadDir(dir *Inode) ([]Dirent, error) {
	var out []Dirent
	buf := make([]byte, DirentSize)
	for o := uint32(0); o < dir.dinode.Size; o += DirentSize {
		n, err := dir.ReadI(buf, o, DirentSize)
		if err != nil {
			return nil, err
		}
		if n != DirentSize {
			return nil, kerr.ErrState
		}
		de := unmarshalDirent(buf)
		if de.Inum != 0 && de.Name != "." && de.Name != ".." {
			out = append(out, de)
		}
	}
	return out, nil
}

// splitPath breaks a slash-separated path into its non-empty components.
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

// Namei resolves an absolute path starting at the filesystem's root to an
// Inode, returned locked. Crossing a mount point is the caller's job (see
// kernel/mount), since a single FS has no notion of other devices.
func (fs *FS) Namei(path string) (*Inode, error) {
	ip := fs.Get(RootInum)
	if err := ip.Lock(); err != nil {
		return nil, err
	}
	for _, name := range splitPath(path) {
		if ip.dinode.Type != TypeDir {
			ip.Unlock()
			fs.Put(ip)
			return nil, kerr.ErrInval
		}
		inum, _, err := fs.dirlookup(ip, name)
		if err != nil {
			ip.Unlock()
			fs.Put(ip)
			return nil, err
		}
		if inum == 0 {
			ip.Unlock()
			fs.Put(ip)
			return nil, kerr.ErrNoEnt
		}
		next := fs.Get(inum)
		ip.Unlock()
		fs.Put(ip)
		if err := next.Lock(); err != nil {
			fs.Put(next)
			return nil, err
		}
		ip = next
	}
	return ip, nil
}

// NameiParent resolves path's containing directory (locked) and returns the
// final path component's name, for callers that need to add/remove an entry
// (nameiparent, used by create/unlink/rename).
func (fs *FS) NameiParent(path string) (*Inode, string, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, "", kerr.ErrInval
	}
	dirPath := strings.Join(parts[:len(parts)-1], "/")
	dir, err := fs.Namei(dirPath)
	if err != nil {
		return nil, "", err
	}
	return dir, parts[len(parts)-1], nil
}

// Create resolves path's parent directory, allocates a new inode of typ
// under it, and links name in — the shared body of open(O_CREATE), mknod,
// and mkdir (spec §4.10/§4.19).
func (fs *FS) Create(path string, typ InodeType, uid, gid, mode uint32) (*Inode, error) {
	dir, name, err := fs.NameiParent(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		dir.Unlock()
		fs.Put(dir)
	}()
	return fs.CreateIn(dir, name, typ, uid, gid, mode)
}

// CreateIn is Create's body factored out to accept an already-resolved,
// locked parent directory — the form a mount-aware caller (kernel/mount's
// path walk resolves the parent across mount boundaries before this ever
// runs) needs, since a bare path string can't express "this directory,
// already found, on whichever filesystem it actually lives on". The caller
// retains ownership of dir's lock and reference.
func (fs *FS) CreateIn(dir *Inode, name string, typ InodeType, uid, gid, mode uint32) (*Inode, error) {
	if existing, _, err := fs.dirlookup(dir, name); err != nil {
		return nil, err
	} else if existing != 0 {
		return nil, kerr.ErrInval
	}

	ip, err := fs.Alloc(typ, uid, gid, mode)
	if err != nil {
		return nil, err
	}
	if err := ip.Lock(); err != nil {
		fs.Put(ip)
		return nil, err
	}
	ip.dinode.Nlink = 1
	if typ == TypeDir {
		if err := fs.dirlink(ip, ".", ip.Inum); err != nil {
			ip.Unlock()
			fs.Put(ip)
			return nil, err
		}
		if err := fs.dirlink(ip, "..", dir.Inum); err != nil {
			ip.Unlock()
			fs.Put(ip)
			return nil, err
		}
		dir.dinode.Nlink++
		if err := fs.Update(dir); err != nil {
			ip.Unlock()
			fs.Put(ip)
			return nil, err
		}
	}
	if err := fs.Update(ip); err != nil {
		ip.Unlock()
		fs.Put(ip)
		return nil, err
	}
	if err := fs.dirlink(dir, name, ip.Inum); err != nil {
		ip.Unlock()
		fs.Put(ip)
		return nil, err
	}
	return ip, nil
}

// Unlink removes name from its parent directory and drops the target
// inode's link count, freeing it once both the link count and reference
// count reach zero (Put handles the actual reclaim).
func (fs *FS) Unlink(path string) error {
	dir, name, err := fs.NameiParent(path)
	if err != nil {
		return err
	}
	defer func() {
		dir.Unlock()
		fs.Put(dir)
	}()
	return fs.UnlinkIn(dir, name)
}

// UnlinkIn is Unlink's body factored out to accept an already-resolved,
// locked parent directory, the same split Create/CreateIn and Link/
// LinkInto use for a mount-aware caller that found dir via kernel/mount
// instead of a bare path string. The caller retains ownership of dir's
// lock and reference.
func (fs *FS) UnlinkIn(dir *Inode, name string) error {
	if name == "." || name == ".." {
		return kerr.ErrInval
	}

	inum, _, err := fs.dirlookup(dir, name)
	if err != nil {
		return err
	}
	if inum == 0 {
		return kerr.ErrNoEnt
	}
	target := fs.Get(inum)
	if err := target.Lock(); err != nil {
		fs.Put(target)
		return err
	}
	if target.dinode.Type == TypeDir {
		empty, err := fs.IsDirEmpty(target)
		if err != nil {
			target.Unlock()
			fs.Put(target)
			return err
		}
		if !empty {
			target.Unlock()
			fs.Put(target)
			return kerr.ErrInval
		}
		dir.dinode.Nlink--
		if err := fs.Update(dir); err != nil {
			target.Unlock()
			fs.Put(target)
			return err
		}
	}
	if err := fs.dirunlink(dir, name); err != nil {
		target.Unlock()
		fs.Put(target)
		return err
	}
	target.dinode.Nlink--
	if err := fs.Update(target); err != nil {
		target.Unlock()
		fs.Put(target)
		return err
	}
	target.Unlock()
	fs.Put(target)
	return nil
}

// LinkInto adds name to dir pointing at target, bumping target's link
// count — Link's body factored out to accept already-resolved inodes, for
// a mount-aware caller that resolved oldpath/newpath via kernel/mount and
// must not assume they share this FS's root (mirrors the Create/CreateIn
// split above). dir and target must belong to fs and must not be locked by
// the caller; dir's lock is held and released internally.
func (fs *FS) LinkInto(dir *Inode, name string, target *Inode) error {
	if target.dinode.Type == TypeDir {
		return kerr.ErrInval
	}
	if err := target.Lock(); err != nil {
		return err
	}
	target.dinode.Nlink++
	err := fs.Update(target)
	target.Unlock()
	if err != nil {
		return err
	}

	if err := dir.Lock(); err != nil {
		target.Lock()
		target.dinode.Nlink--
		fs.Update(target)
		target.Unlock()
		return err
	}
	err = fs.dirlink(dir, name, target.Inum)
	dir.Unlock()
	if err != nil {
		target.Lock()
		target.dinode.Nlink--
		fs.Update(target)
		target.Unlock()
	}
	return err
}

// Link adds newpath pointing at the inode currently at oldpath, bumping its
// link count (spec's `link` syscall).
func (fs *FS) Link(oldpath, newpath string) error {
	ip, err := fs.Namei(oldpath)
	if err != nil {
		return err
	}
	if ip.dinode.Type == TypeDir {
		ip.Unlock()
		fs.Put(ip)
		return kerr.ErrInval
	}
	ip.dinode.Nlink++
	if err := fs.Update(ip); err != nil {
		ip.Unlock()
		fs.Put(ip)
		return err
	}
	ip.Unlock()

	dir, name, err := fs.NameiParent(newpath)
	if err != nil {
		ip.Lock()
		ip.dinode.Nlink--
		fs.Update(ip)
		ip.Unlock()
		fs.Put(ip)
		return err
	}
	err = fs.dirlink(dir, name, ip.Inum)
	dir.Unlock()
	fs.Put(dir)
	fs.Put(ip)
	return err
}
