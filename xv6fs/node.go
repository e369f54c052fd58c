package xv6fs

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/kerr"
)

// Node is one resolved path in the mounted tree. It caches nothing across
// calls: every method re-resolves path through kernel/mount.Table, the same
// "resolve, act, unlock+put" discipline kernel/trap's syscall shims use,
// since a mount point's target can change underneath a held path (Mount/
// Unmount) between two FUSE requests.
type Node struct {
	fsys *FileSystem
	path string
}

var (
	_ fs.Node               = (*Node)(nil)
	_ fs.NodeStringLookuper = (*Node)(nil)
	_ fs.HandleReadDirAller = (*Node)(nil)
	_ fs.NodeCreater        = (*Node)(nil)
	_ fs.NodeMkdirer        = (*Node)(nil)
	_ fs.NodeRemover        = (*Node)(nil)
	_ fs.NodeSetattrer      = (*Node)(nil)
	_ fs.NodeOpener         = (*Node)(nil)
)

// errno translates a kerr sentinel to the syscall.Errno value FUSE expects
// as the returned error (bazil.org/fuse/fs recognizes a plain syscall.Errno
// without needing to wrap it, the same convention its own hellofs example
// uses returning syscall.ENOENT directly).
func errno(err error) error {
	switch {
	case err == nil:
		return nil
	case kerr.Is(err, kerr.ErrNoEnt):
		return syscall.ENOENT
	case kerr.Is(err, kerr.ErrPerm):
		return syscall.EPERM
	case kerr.Is(err, kerr.ErrNoSpace):
		return syscall.ENOSPC
	case kerr.Is(err, kerr.ErrNoMem):
		return syscall.ENOMEM
	case kerr.Is(err, kerr.ErrInval):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

// modeFor renders an inode's type + permission bits as an os.FileMode.
func modeFor(ip *fsinode.Inode) os.FileMode {
	perm := os.FileMode(ip.Mode() & 0o777)
	switch ip.Type() {
	case fsinode.TypeDir:
		return perm | os.ModeDir
	case fsinode.TypeDevice:
		return perm | os.ModeDevice | os.ModeCharDevice
	default:
		return perm
	}
}

func fillAttr(a *fuse.Attr, ip *fsinode.Inode) {
	a.Inode = uint64(ip.Dev)<<32 | uint64(ip.Inum)
	a.Size = uint64(ip.Size())
	a.Blocks = (a.Size + fsinode.BlockSize - 1) / fsinode.BlockSize
	a.Mode = modeFor(ip)
	a.Nlink = uint32(ip.Nlink())
	a.Uid = ip.Uid()
	a.Gid = ip.Gid()
	if ip.Type() == fsinode.TypeDevice {
		a.Rdev = uint32(ip.Major())<<16 | uint32(ip.Minor())
	}
}

// resolve locks and returns the inode path currently names, on whichever
// filesystem the mount table's walk lands it on.
func (n *Node) resolve() (*fsinode.Inode, *fsinode.FS, error) {
	res, err := n.fsys.Mounts.Namei(n.path)
	if err != nil {
		return nil, nil, err
	}
	return res.Ip, res.FS, nil
}

func (n *Node) Attr(ctx context.Context, a *fuse.Attr) error {
	ip, fsys, err := n.resolve()
	if err != nil {
		return errno(err)
	}
	fillAttr(a, ip)
	ip.Unlock()
	fsys.Put(ip)
	return nil
}

func (n *Node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child := childPath(n.path, name)
	ip, fsys, err := (&Node{fsys: n.fsys, path: child}).resolve()
	if err != nil {
		return nil, errno(err)
	}
	ip.Unlock()
	fsys.Put(ip)
	return &Node{fsys: n.fsys, path: child}, nil
}

func (n *Node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	ip, fsys, err := n.resolve()
	if err != nil {
		return nil, errno(err)
	}
	defer func() { ip.Unlock(); fsys.Put(ip) }()
	if ip.Type() != fsinode.TypeDir {
		return nil, syscall.ENOTDIR
	}

	entries, err := fsys.ReadDir(ip)
	if err != nil {
		return nil, errno(err)
	}

	out := make([]fuse.Dirent, 0, len(entries)+2)
	out = append(out,
		fuse.Dirent{Name: ".", Type: fuse.DT_Dir},
		fuse.Dirent{Name: "..", Type: fuse.DT_Dir})
	for _, de := range entries {
		out = append(out, fuse.Dirent{Inode: uint64(de.Inum), Name: de.Name, Type: direntType(fsys, de.Inum)})
	}
	return out, nil
}

// direntType peeks at a child's type for its fuse.Dirent.Type — best effort:
// a failed lock (e.g. a concurrently-freed slot) just reports DT_Unknown,
// matching what real filesystems do rather than failing the whole listing.
func direntType(fsys *fsinode.FS, inum uint32) fuse.DirentType {
	ip := fsys.Get(inum)
	defer fsys.Put(ip)
	if err := ip.Lock(); err != nil {
		return fuse.DT_Unknown
	}
	defer ip.Unlock()
	if ip.Type() == fsinode.TypeDir {
		return fuse.DT_Dir
	}
	return fuse.DT_File
}

func (n *Node) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	child := childPath(n.path, req.Name)
	ip, fsys, err := n.createIn(req.Name, fsinode.TypeDir, req.Header.Uid, req.Header.Gid, uint32(req.Mode.Perm()))
	if err != nil {
		return nil, errno(err)
	}
	ip.Unlock()
	fsys.Put(ip)
	logOp(ctx, "mkdir", child, req.Header.Uid, n.fsys)
	return &Node{fsys: n.fsys, path: child}, nil
}

func (n *Node) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	child := childPath(n.path, req.Name)
	ip, fsys, err := n.createIn(req.Name, fsinode.TypeFile, req.Header.Uid, req.Header.Gid, uint32(req.Mode.Perm()))
	if err != nil {
		return nil, nil, errno(err)
	}
	ip.Unlock()
	fsys.Put(ip)
	logOp(ctx, "create", child, req.Header.Uid, n.fsys)
	node := &Node{fsys: n.fsys, path: child}
	return node, &Handle{node: node}, nil
}

// createIn resolves this node's path as the parent directory and creates
// name under it, mirroring kernel/trap/fs_syscalls.go's own createFile —
// the permission check that function layers on top is left to the host
// kernel's VFS (this filesystem is mounted with default_permissions).
func (n *Node) createIn(name string, typ fsinode.InodeType, uid, gid, mode uint32) (*fsinode.Inode, *fsinode.FS, error) {
	res, err := n.fsys.Mounts.Namei(n.path)
	if err != nil {
		return nil, nil, err
	}
	defer func() { res.Ip.Unlock(); res.FS.Put(res.Ip) }()

	jlog := res.FS.Log()
	jlog.Begin()
	ip, err := res.FS.CreateIn(res.Ip, name, typ, uid, gid, mode)
	endErr := jlog.End()
	if err != nil {
		return nil, nil, err
	}
	if endErr != nil {
		ip.Unlock()
		res.FS.Put(ip)
		return nil, nil, endErr
	}
	return ip, res.FS, nil
}

func (n *Node) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	res, err := n.fsys.Mounts.Namei(n.path)
	if err != nil {
		return errno(err)
	}
	defer func() { res.Ip.Unlock(); res.FS.Put(res.Ip) }()
	jlog := res.FS.Log()
	jlog.Begin()
	err = res.FS.UnlinkIn(res.Ip, req.Name)
	if endErr := jlog.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return errno(err)
	}
	logOp(ctx, "remove", childPath(n.path, req.Name), req.Header.Uid, n.fsys)
	return nil
}

func (n *Node) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	ip, fsys, err := n.resolve()
	if err != nil {
		return errno(err)
	}
	defer func() { ip.Unlock(); fsys.Put(ip) }()

	if req.Valid.Mode() {
		ip.SetMode(uint32(req.Mode.Perm()))
	}
	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := ip.Uid(), ip.Gid()
		if req.Valid.Uid() {
			uid = req.Uid
		}
		if req.Valid.Gid() {
			gid = req.Gid
		}
		ip.SetOwner(uid, gid)
	}
	if req.Valid.Mode() || req.Valid.Uid() || req.Valid.Gid() {
		jlog := fsys.Log()
		jlog.Begin()
		err := fsys.Update(ip)
		if endErr := jlog.End(); err == nil {
			err = endErr
		}
		if err != nil {
			return errno(err)
		}
	}
	if req.Valid.Size() {
		jlog := fsys.Log()
		jlog.Begin()
		err := fsys.Truncate(ip, uint32(req.Size))
		if endErr := jlog.End(); err == nil {
			err = endErr
		}
		if err != nil {
			return errno(err)
		}
	}

	fillAttr(&resp.Attr, ip)
	return nil
}

// Open just returns a Handle bound to this node's path; actual IO re-resolves
// on every Read/Write, so there is nothing to allocate here besides the
// Handle struct itself. O_TRUNC is honored explicitly since FUSE delivers it
// as an Open flag rather than a Setattr call.
func (n *Node) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	if req.Flags&fuse.OpenTruncate != 0 {
		ip, fsys, err := n.resolve()
		if err != nil {
			return nil, errno(err)
		}
		jlog := fsys.Log()
		jlog.Begin()
		terr := fsys.Truncate(ip, 0)
		if endErr := jlog.End(); terr == nil {
			terr = endErr
		}
		ip.Unlock()
		fsys.Put(ip)
		if terr != nil {
			return nil, errno(terr)
		}
	}
	return &Handle{node: n}, nil
}
