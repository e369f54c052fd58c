package xv6fs

import (
	"context"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/journal"
)

// maxWritePerOp mirrors kernel/filetable's own constant of the same name:
// xv6's filewrite chunks a write so each transaction it logs stays within
// the journal's per-op block budget.
const maxWritePerOp = ((journal.MaxOpBlocks - 4) / 2) * fsinode.BlockSize

// Handle represents an open file. It holds no lock and no cached inode
// across calls — like every other xv6fs operation it re-resolves the node's
// path on each Read/Write, since xv6's own in-kernel open file table
// (kernel/filetable) is already exercised independently through kernel/trap
// and has no use for a second, FUSE-private copy of the same bookkeeping.
type Handle struct {
	node *Node
}

var (
	_ fs.Handle       = (*Handle)(nil)
	_ fs.HandleReader = (*Handle)(nil)
	_ fs.HandleWriter = (*Handle)(nil)
)

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	ip, fsys, err := h.node.resolve()
	if err != nil {
		return errno(err)
	}
	defer func() { ip.Unlock(); fsys.Put(ip) }()

	if uint32(req.Offset) >= ip.Size() {
		resp.Data = resp.Data[:0]
		return nil
	}

	want := uint32(req.Size)
	if remaining := ip.Size() - uint32(req.Offset); want > remaining {
		want = remaining
	}
	buf := make([]byte, want)
	n, err := ip.ReadI(buf, uint32(req.Offset), want)
	if err != nil {
		return errno(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	ip, fsys, err := h.node.resolve()
	if err != nil {
		return errno(err)
	}
	defer func() { ip.Unlock(); fsys.Put(ip) }()

	total := 0
	off := uint32(req.Offset)
	for total < len(req.Data) {
		n := len(req.Data) - total
		if n > maxWritePerOp {
			n = maxWritePerOp
		}
		jlog := fsys.Log()
		jlog.Begin()
		written, werr := ip.WriteI(req.Data[total:total+n], off, uint32(n))
		endErr := jlog.End()
		if werr != nil {
			resp.Size = total + written
			return errno(werr)
		}
		if endErr != nil {
			resp.Size = total + written
			return errno(endErr)
		}
		off += uint32(written)
		total += written
		if written < n {
			break
		}
	}
	resp.Size = total
	return nil
}
