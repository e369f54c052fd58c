// Package xv6fs is the FUSE bridge of spec §4.19: it exposes the kernel's
// mount table (kernel/mount), inode layer (kernel/fsinode) and permission
// checks (kernel/perm) as a `bazil.org/fuse/fs` filesystem, the mount
// boundary standing in for the syscall boundary the original kernel's
// xv6fs_fuse.c crosses. Every Node method resolves its absolute path fresh
// against kernel/mount.Table on each call rather than caching a locked
// inode across FUSE requests, the same discipline kernel/trap's syscall
// shims already use (resolve, act, unlock+put).
package xv6fs

import (
	"context"
	"path"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/containerd/log"
	"github.com/gamer07340/xv6go/kernel/mount"
	"github.com/gamer07340/xv6go/kernel/passwd"
)

// FileSystem is the fs.FS root: the live mount table plus the user database
// xv6fs consults to enrich its structured logging with a username next to
// the numeric uid every FUSE request header already carries (kernel/passwd
// exists to resolve a name to a uid/gid pair; here the lookup runs in
// reverse, uid to name, for the same "who did this" bookkeeping purpose).
type FileSystem struct {
	Mounts *mount.Table
	Users  *passwd.Database
}

// New wires a mount table and user database into a servable filesystem.
func New(mounts *mount.Table, users *passwd.Database) *FileSystem {
	return &FileSystem{Mounts: mounts, Users: users}
}

var _ fs.FS = (*FileSystem)(nil)

// Root returns the node for "/", spec's fixed root inode.
func (f *FileSystem) Root() (fs.Node, error) {
	return &Node{fsys: f, path: "/"}, nil
}

// whoami renders uid as "uid" or "uid(name)" when the user database knows
// it, purely for log readability.
func (f *FileSystem) whoami(uid uint32) string {
	if f.Users == nil {
		return itoa(uid)
	}
	e, err := f.Users.ByUID(uid)
	if err != nil {
		return itoa(uid)
	}
	return itoa(uid) + "(" + e.Username + ")"
}

func itoa(u uint32) string {
	if u == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

// childPath joins a directory path and a child name the way mount.Table's
// own path-based API expects, collapsing the root's "//name" case.
func childPath(dir, name string) string {
	return path.Join(dir, name)
}

// logOp is the one-line structured log every mutating op emits, using
// kernel/journal's log.L.WithField(...) chain but at Debug level.
func logOp(ctx context.Context, op, p string, uid uint32, fsys *FileSystem) {
	_ = ctx
	log.L.WithField("op", op).WithField("path", p).WithField("uid", fsys.whoami(uid)).Debug("xv6fs")
}
