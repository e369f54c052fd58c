package trap

import (
	"encoding/binary"
	"strings"

	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/perm"
)

// splitParent breaks an absolute path into its parent directory and final
// component, mirroring nameiparent's split (but operating on the
// already-joined absolute string trap's resolvePath produces).
func splitParent(path string) (dir, name string) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 {
		return "/", path[i+1:]
	}
	return path[:i], path[i+1:]
}

// checkOpenPerm mirrors checkperm: needed is derived from omode, owner/
// group/other class selected by uid/gid match, uid 0 bypassing entirely
// (perm.Check implements that bypass).
func checkOpenPerm(ctx *Context, ip *fsinode.Inode, omode int) error {
	var needed perm.Access
	switch {
	case omode&OWrOnly != 0:
		needed = perm.Write
	case omode&ORdWr != 0:
		return perm.CheckAll(ctx.Proc.UID, ctx.Proc.GID, ip.Mode(), ip.Uid(), ip.Gid(), perm.Read, perm.Write)
	default:
		needed = perm.Read
	}
	return perm.Check(ctx.Proc.UID, ctx.Proc.GID, ip.Mode(), ip.Uid(), ip.Gid(), needed)
}

// createFile resolves path's parent directory (crossing mount points, per
// kernel/mount.Table.Namei) and creates typ under it — create()'s body in
// sysfile.c, generalized over fsinode.FS.CreateIn instead of a single-FS
// local path so a file created inside a mounted subtree lands on the
// filesystem that subtree actually belongs to.
func (d *Dispatcher) createFile(fullPath string, typ fsinode.InodeType, uid, gid, mode uint32) (*fsinode.Inode, *fsinode.FS, error) {
	dirPath, name := splitParent(fullPath)
	res, err := d.Mounts.Namei(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		res.Ip.Unlock()
		res.FS.Put(res.Ip)
	}()

	if err := perm.Check(uid, gid, res.Ip.Mode(), res.Ip.Uid(), res.Ip.Gid(), perm.Write); err != nil {
		return nil, nil, err
	}

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

func (d *Dispatcher) sysOpen(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	omode := int(argInt(f, 1))
	full := ctx.resolvePath(path)

	var ip *fsinode.Inode
	var fs *fsinode.FS
	if omode&OCreate != 0 {
		ip, fs, err = d.createFile(full, fsinode.TypeFile, ctx.Proc.UID, ctx.Proc.GID, 0o644)
		if err != nil {
			return -1, err
		}
	} else {
		res, rerr := d.Mounts.Namei(full)
		if rerr != nil {
			return -1, rerr
		}
		ip, fs = res.Ip, res.FS
		if ip.Type() == fsinode.TypeDir && omode != ORdOnly {
			ip.Unlock()
			fs.Put(ip)
			return -1, kerr.ErrInval
		}
		if cerr := checkOpenPerm(ctx, ip, omode); cerr != nil {
			ip.Unlock()
			fs.Put(ip)
			return -1, cerr
		}
	}

	ip.Unlock()
	readable := omode&OWrOnly == 0
	writable := omode&OWrOnly != 0 || omode&ORdWr != 0
	file, err := d.Files.OpenInode(fs, ip, readable, writable)
	if err != nil {
		fs.Put(ip)
		return -1, err
	}
	fdNum, err := fdAlloc(ctx, file)
	if err != nil {
		d.Files.Close(file)
		return -1, err
	}
	return int64(fdNum), nil
}

func (d *Dispatcher) sysClose(ctx *Context, f *Frame) (int64, error) {
	fdNum, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	ctx.fds[fdNum] = nil
	if err := d.Files.Close(file); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysRead(ctx *Context, f *Frame) (int64, error) {
	_, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	n := int(argInt(f, 2))
	if n < 0 {
		return -1, kerr.ErrInval
	}
	buf := make([]byte, n)
	read, err := d.Files.Read(file, buf)
	if err != nil {
		return -1, err
	}
	if err := ctx.AS.CopyOut(f.Args[1], buf[:read]); err != nil {
		return -1, err
	}
	return int64(read), nil
}

func (d *Dispatcher) sysWrite(ctx *Context, f *Frame) (int64, error) {
	_, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	n := int(argInt(f, 2))
	if n < 0 {
		return -1, kerr.ErrInval
	}
	buf, err := ctx.AS.CopyIn(f.Args[1], n)
	if err != nil {
		return -1, err
	}
	written, err := d.Files.Write(file, buf)
	if err != nil {
		return -1, err
	}
	return int64(written), nil
}

func (d *Dispatcher) sysDup(ctx *Context, f *Frame) (int64, error) {
	_, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	fdNum, err := fdAlloc(ctx, d.Files.Dup(file))
	if err != nil {
		return -1, err
	}
	return int64(fdNum), nil
}

func (d *Dispatcher) sysLseek(ctx *Context, f *Frame) (int64, error) {
	_, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	off := uint32(argInt(f, 1))
	if err := d.Files.Seek(file, off); err != nil {
		return -1, err
	}
	return int64(off), nil
}

func (d *Dispatcher) sysLink(ctx *Context, f *Frame) (int64, error) {
	oldPath, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	newPath, err := argStr(ctx, f, 1)
	if err != nil {
		return -1, err
	}
	oldFull, newFull := ctx.resolvePath(oldPath), ctx.resolvePath(newPath)

	oldRes, err := d.Mounts.Namei(oldFull)
	if err != nil {
		return -1, err
	}
	if oldRes.Ip.Type() == fsinode.TypeDir {
		oldRes.Ip.Unlock()
		oldRes.FS.Put(oldRes.Ip)
		return -1, kerr.ErrInval
	}

	dirPath, name := splitParent(newFull)
	dirRes, err := d.Mounts.Namei(dirPath)
	if err != nil {
		oldRes.Ip.Unlock()
		oldRes.FS.Put(oldRes.Ip)
		return -1, err
	}

	sameFS := dirRes.FS == oldRes.FS
	permErr := perm.Check(ctx.Proc.UID, ctx.Proc.GID, dirRes.Ip.Mode(), dirRes.Ip.Uid(), dirRes.Ip.Gid(), perm.Write)
	dirRes.Ip.Unlock()
	oldRes.Ip.Unlock()
	defer dirRes.FS.Put(dirRes.Ip)
	defer oldRes.FS.Put(oldRes.Ip)

	if !sameFS {
		return -1, kerr.ErrInval
	}
	if permErr != nil {
		return -1, permErr
	}
	jlog := oldRes.FS.Log()
	jlog.Begin()
	err = oldRes.FS.LinkInto(dirRes.Ip, name, oldRes.Ip)
	if endErr := jlog.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysUnlink(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	full := ctx.resolvePath(path)
	dirPath, name := splitParent(full)
	if name == "." || name == ".." {
		return -1, kerr.ErrInval
	}
	dirRes, err := d.Mounts.Namei(dirPath)
	if err != nil {
		return -1, err
	}
	defer func() {
		dirRes.Ip.Unlock()
		dirRes.FS.Put(dirRes.Ip)
	}()
	if err := perm.Check(ctx.Proc.UID, ctx.Proc.GID, dirRes.Ip.Mode(), dirRes.Ip.Uid(), dirRes.Ip.Gid(), perm.Write); err != nil {
		return -1, err
	}
	jlog := dirRes.FS.Log()
	jlog.Begin()
	err = dirRes.FS.UnlinkIn(dirRes.Ip, name)
	if endErr := jlog.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysMkdir(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	full := ctx.resolvePath(path)
	ip, fs, err := d.createFile(full, fsinode.TypeDir, ctx.Proc.UID, ctx.Proc.GID, 0o755)
	if err != nil {
		return -1, err
	}
	ip.Unlock()
	fs.Put(ip)
	return 0, nil
}

func (d *Dispatcher) sysMknod(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	full := ctx.resolvePath(path)
	ip, fs, err := d.createFile(full, fsinode.TypeDevice, ctx.Proc.UID, ctx.Proc.GID, 0o644)
	if err != nil {
		return -1, err
	}
	ip.Unlock()
	fs.Put(ip)
	return 0, nil
}

func (d *Dispatcher) sysChdir(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	full := ctx.resolvePath(path)
	res, err := d.Mounts.Namei(full)
	if err != nil {
		return -1, err
	}
	typ := res.Ip.Type()
	res.Ip.Unlock()
	res.FS.Put(res.Ip)
	if typ != fsinode.TypeDir {
		return -1, kerr.ErrInval
	}
	ctx.Cwd = full
	return 0, nil
}

func (d *Dispatcher) sysGetcwd(ctx *Context, f *Frame) (int64, error) {
	res, err := d.Mounts.Namei(ctx.Cwd)
	if err != nil {
		return -1, err
	}
	// Getcwd's first hop (stepUpLocked) expects ip already locked by the
	// caller, mirroring namex's "caller holds ip->lock" convention; Namei
	// returns it locked already.
	path, err := d.Mounts.Getcwd(res.FS, res.Ip)
	res.Ip.Unlock()
	res.FS.Put(res.Ip)
	if err != nil {
		return -1, err
	}
	size := int(argInt(f, 1))
	if size < len(path)+1 {
		return -1, kerr.ErrInval
	}
	if err := ctx.AS.CopyOut(f.Args[0], append([]byte(path), 0)); err != nil {
		return -1, err
	}
	return 0, nil
}

// Stat mirrors struct stat from original_source/stat.h.
type Stat struct {
	Type  fsinode.InodeType
	Dev   int
	Ino   uint32
	Nlink uint16
	Size  uint32
	Mode  uint32
	UID   uint32
	GID   uint32
}

// statSize is the marshaled size of Stat: two uint16s (type, nlink) and
// six uint32s (dev, ino, size, mode, uid, gid), 28 bytes.
const statSize = 2 + 2 + 4 + 4 + 4 + 4 + 4 + 4

// marshalStat packs a Stat into the fixed little-endian layout stat(2)
// callers read, mirroring layout.go's dinode marshaling convention.
func marshalStat(s Stat) []byte {
	buf := make([]byte, statSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(s.Type))
	binary.LittleEndian.PutUint16(buf[2:4], s.Nlink)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.Dev))
	binary.LittleEndian.PutUint32(buf[8:12], s.Ino)
	binary.LittleEndian.PutUint32(buf[12:16], s.Size)
	binary.LittleEndian.PutUint32(buf[16:20], s.Mode)
	binary.LittleEndian.PutUint32(buf[20:24], s.UID)
	binary.LittleEndian.PutUint32(buf[24:28], s.GID)
	return buf
}

func (d *Dispatcher) sysFstat(ctx *Context, f *Frame) (int64, error) {
	_, file, err := argFD(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	st, err := d.Files.Stat(file)
	if err != nil {
		return -1, err
	}
	out := Stat{Type: st.Type, Dev: st.Dev, Ino: st.Inum, Nlink: st.Nlink, Size: st.Size, Mode: st.Mode, UID: st.Uid, GID: st.Gid}
	buf := marshalStat(out)
	if err := ctx.AS.CopyOut(f.Args[1], buf); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysChmod(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	mode := uint32(argInt(f, 1))
	full := ctx.resolvePath(path)
	res, err := d.Mounts.Namei(full)
	if err != nil {
		return -1, err
	}
	defer func() {
		res.Ip.Unlock()
		res.FS.Put(res.Ip)
	}()
	if ctx.Proc.UID != 0 && ctx.Proc.UID != res.Ip.Uid() {
		return -1, kerr.ErrPerm
	}
	res.Ip.SetMode((res.Ip.Mode() &^ 0o777) | (mode & 0o777))
	jlog := res.FS.Log()
	jlog.Begin()
	err = res.FS.Update(res.Ip)
	if endErr := jlog.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysChown(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	uid := uint32(argInt(f, 1))
	gid := uint32(argInt(f, 2))
	full := ctx.resolvePath(path)
	res, err := d.Mounts.Namei(full)
	if err != nil {
		return -1, err
	}
	defer func() {
		res.Ip.Unlock()
		res.FS.Put(res.Ip)
	}()
	if ctx.Proc.UID != 0 && ctx.Proc.UID != res.Ip.Uid() {
		return -1, kerr.ErrPerm
	}
	res.Ip.SetOwner(uid, gid)
	jlog := res.FS.Log()
	jlog.Begin()
	err = res.FS.Update(res.Ip)
	if endErr := jlog.End(); err == nil {
		err = endErr
	}
	if err != nil {
		return -1, err
	}
	return 0, nil
}

// sysMount attaches the filesystem on the device named by arg 1 at the
// directory named by arg 0, mirroring sysUmount's own path-then-device
// shape. The device must already have been made available to the
// dispatcher via RegisterDevice at boot (the original probes every disk
// for a recognizable filesystem before userland ever calls mount(2); this
// rendition has no disk-probing step, so boot wiring plays that role
// instead).
func (d *Dispatcher) sysMount(ctx *Context, f *Frame) (int64, error) {
	if ctx.Proc.UID != 0 {
		return -1, kerr.ErrPerm
	}
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	dev := int(argInt(f, 1))
	target, ok := d.deviceFS(dev)
	if !ok {
		return -1, kerr.ErrNoEnt
	}

	full := ctx.resolvePath(path)
	res, err := d.Mounts.Namei(full)
	if err != nil {
		return -1, err
	}
	inum := res.Ip.Inum
	res.Ip.Unlock()
	res.FS.Put(res.Ip)

	if err := d.Mounts.Mount(res.FS, inum, target); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysUmount(ctx *Context, f *Frame) (int64, error) {
	path, err := argStr(ctx, f, 0)
	if err != nil {
		return -1, err
	}
	full := ctx.resolvePath(path)
	res, err := d.Mounts.Namei(full)
	if err != nil {
		return -1, err
	}
	dev := res.FS.Dev()
	res.Ip.Unlock()
	res.FS.Put(res.Ip)
	if err := d.Mounts.Unmount(dev); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysPipe(ctx *Context, f *Frame) (int64, error) {
	r, w, err := d.Files.OpenPipeEnds()
	if err != nil {
		return -1, err
	}
	fd0, err := fdAlloc(ctx, r)
	if err != nil {
		d.Files.Close(r)
		d.Files.Close(w)
		return -1, err
	}
	fd1, err := fdAlloc(ctx, w)
	if err != nil {
		ctx.fds[fd0] = nil
		d.Files.Close(r)
		d.Files.Close(w)
		return -1, err
	}
	fds := make([]byte, 8)
	binary.LittleEndian.PutUint32(fds[0:4], uint32(fd0))
	binary.LittleEndian.PutUint32(fds[4:8], uint32(fd1))
	if err := ctx.AS.CopyOut(f.Args[0], fds); err != nil {
		return -1, err
	}
	return 0, nil
}
