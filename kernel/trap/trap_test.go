package trap

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gamer07340/xv6go/kernel/bcache"
	"github.com/gamer07340/xv6go/kernel/blockdev"
	"github.com/gamer07340/xv6go/kernel/console"
	"github.com/gamer07340/xv6go/kernel/filetable"
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/journal"
	"github.com/gamer07340/xv6go/kernel/mount"
	"github.com/gamer07340/xv6go/kernel/netstack/eth"
	"github.com/gamer07340/xv6go/kernel/netstack/nic"
	"github.com/gamer07340/xv6go/kernel/netstack/socket"
	"github.com/gamer07340/xv6go/kernel/pmm"
	"github.com/gamer07340/xv6go/kernel/proc"
	"github.com/gamer07340/xv6go/kernel/timer"
	"github.com/gamer07340/xv6go/kernel/vmem"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T, dev int) *fsinode.FS {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	bdev, err := blockdev.Open(path, 512*fsinode.BlockSize, 0)
	require.NoError(t, err)
	t.Cleanup(func() { bdev.Close() })

	cache := bcache.New(bdev, 32)
	log, err := journal.Open(cache, dev, 2, 16)
	require.NoError(t, err)

	fs, err := fsinode.Format(cache, log, dev, 512, 50, 16)
	require.NoError(t, err)
	return fs
}

// testHarness wires up the same tables a real boot sequence would, scaled
// down to a single in-memory disk image and loopback NIC pair.
type testHarness struct {
	d     *Dispatcher
	ctx   *Context
	alloc *pmm.Allocator
	procs *proc.Table
	peer  *socket.Stack
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	fs := newTestFS(t, 0)
	mounts := mount.NewTable(fs)
	files := filetable.NewTable()
	procs := proc.NewTable()
	clock := timer.New()
	con := console.New()

	devA, devB := nic.NewPair([6]byte{1, 1, 1, 1, 1, 1}, [6]byte{2, 2, 2, 2, 2, 2})
	t.Cleanup(func() { devA.Close(); devB.Close() })
	stack := socket.NewStack(devA, eth.Addr{1, 1, 1, 1, 1, 1}, 0x0a000001, socket.NewTable())
	peer := socket.NewStack(devB, eth.Addr{2, 2, 2, 2, 2, 2}, 0x0a000002, socket.NewTable())
	stack.Start()
	peer.Start()

	d := NewDispatcher(procs, clock, files, mounts, stack, con)

	alloc := pmm.New(1 << 20)
	as := vmem.New(alloc)
	_, err := as.Sbrk(4096)
	require.NoError(t, err)

	root, err := procs.Fork(&proc.Proc{PID: 0, Name: "init"})
	require.NoError(t, err)
	procs.SetRunnable(root)

	ctx := NewContext(root, as)
	return &testHarness{d: d, ctx: ctx, alloc: alloc, procs: procs, peer: peer}
}

func putStr(t *testing.T, as *vmem.AddressSpace, addr uint64, s string) {
	t.Helper()
	require.NoError(t, as.CopyOut(addr, append([]byte(s), 0)))
}

func TestOpenCreateWriteReadRoundTrip(t *testing.T) {
	h := newHarness(t)
	as := h.ctx.AS

	putStr(t, as, 0, "/hello.txt")
	f := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(OCreate | OWrOnly)}}
	h.d.Dispatch(h.ctx, f)
	require.GreaterOrEqual(t, f.Ret, int64(0))
	fd := f.Ret

	payload := []byte("hello xv6")
	require.NoError(t, as.CopyOut(64, payload))
	wf := &Frame{Num: SysWrite, Args: [6]uint64{uint64(fd), 64, uint64(len(payload))}}
	h.d.Dispatch(h.ctx, wf)
	require.Equal(t, int64(len(payload)), wf.Ret)

	cf := &Frame{Num: SysClose, Args: [6]uint64{uint64(fd)}}
	h.d.Dispatch(h.ctx, cf)
	require.Equal(t, int64(0), cf.Ret)

	putStr(t, as, 128, "/hello.txt")
	of := &Frame{Num: SysOpen, Args: [6]uint64{128, uint64(ORdOnly)}}
	h.d.Dispatch(h.ctx, of)
	require.GreaterOrEqual(t, of.Ret, int64(0))
	fd2 := of.Ret

	rf := &Frame{Num: SysRead, Args: [6]uint64{uint64(fd2), 256, uint64(len(payload))}}
	h.d.Dispatch(h.ctx, rf)
	require.Equal(t, int64(len(payload)), rf.Ret)

	got, err := as.CopyIn(256, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestOpenMissingFileFails(t *testing.T) {
	h := newHarness(t)
	putStr(t, h.ctx.AS, 0, "/nope.txt")
	f := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(ORdOnly)}}
	h.d.Dispatch(h.ctx, f)
	require.Equal(t, int64(-1), f.Ret)
}

func TestOpenDeniedByPermission(t *testing.T) {
	h := newHarness(t)
	as := h.ctx.AS

	putStr(t, as, 0, "/root-only.txt")
	cf := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(OCreate | OWrOnly)}}
	h.d.Dispatch(h.ctx, cf)
	require.GreaterOrEqual(t, cf.Ret, int64(0))
	chf := &Frame{Num: SysChmod, Args: [6]uint64{0, 0o600}}
	h.d.Dispatch(h.ctx, chf)
	require.Equal(t, int64(0), chf.Ret)
	h.d.Dispatch(h.ctx, &Frame{Num: SysClose, Args: [6]uint64{uint64(cf.Ret)}})

	other := &proc.Proc{PID: 99, UID: 1000, GID: 1000}
	otherCtx := NewContext(other, h.ctx.AS)

	putStr(t, as, 0, "/root-only.txt")
	of := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(ORdOnly)}}
	h.d.Dispatch(otherCtx, of)
	require.Equal(t, int64(-1), of.Ret)
}

func TestMkdirChdirGetcwd(t *testing.T) {
	h := newHarness(t)
	as := h.ctx.AS

	putStr(t, as, 0, "/sub")
	mf := &Frame{Num: SysMkdir, Args: [6]uint64{0}}
	h.d.Dispatch(h.ctx, mf)
	require.Equal(t, int64(0), mf.Ret)

	putStr(t, as, 0, "/sub")
	cf := &Frame{Num: SysChdir, Args: [6]uint64{0}}
	h.d.Dispatch(h.ctx, cf)
	require.Equal(t, int64(0), cf.Ret)
	require.Equal(t, "/sub", h.ctx.Cwd)

	gf := &Frame{Num: SysGetcwd, Args: [6]uint64{512, 64}}
	h.d.Dispatch(h.ctx, gf)
	require.Equal(t, int64(0), gf.Ret)
	got, err := as.CopyIn(512, len("/sub")+1)
	require.NoError(t, err)
	require.Equal(t, "/sub\x00", string(got))
}

func TestFstatReportsCreatedFileMetadata(t *testing.T) {
	h := newHarness(t)
	as := h.ctx.AS

	putStr(t, as, 0, "/meta.txt")
	cf := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(OCreate | OWrOnly)}}
	h.d.Dispatch(h.ctx, cf)
	fd := cf.Ret

	sf := &Frame{Num: SysFstat, Args: [6]uint64{uint64(fd), 128}}
	h.d.Dispatch(h.ctx, sf)
	require.Equal(t, int64(0), sf.Ret)

	buf, err := as.CopyIn(128, statSize)
	require.NoError(t, err)
	require.Equal(t, uint16(fsinode.TypeFile), uint16(buf[0])|uint16(buf[1])<<8)
}

func TestForkExitWaitLifecycle(t *testing.T) {
	h := newHarness(t)
	ff := &Frame{Num: SysFork}
	h.d.Dispatch(h.ctx, ff)
	require.Greater(t, ff.Ret, int64(0))

	childCtx, ok := h.d.ContextForPID(int(ff.Ret))
	require.True(t, ok)

	ef := &Frame{Num: SysExit, Args: [6]uint64{7}}
	h.d.Dispatch(childCtx, ef)
	require.Equal(t, int64(0), ef.Ret)

	wf := &Frame{Num: SysWait}
	h.d.Dispatch(h.ctx, wf)
	require.Equal(t, ff.Ret, wf.Ret)
}

func TestArgumentOutOfRangeFdRejected(t *testing.T) {
	h := newHarness(t)
	f := &Frame{Num: SysRead, Args: [6]uint64{99, 0, 10}}
	h.d.Dispatch(h.ctx, f)
	require.Equal(t, int64(-1), f.Ret)
}

func TestSocketSendReachesPeerStack(t *testing.T) {
	h := newHarness(t)

	peerTable := h.peer.Table()
	peerSock, err := peerTable.Open(socket.Dgram)
	require.NoError(t, err)
	peerSock.Bind(0x0a000002, 9000)

	of := &Frame{Num: SysSocket, Args: [6]uint64{uint64(socket.Dgram)}}
	h.d.Dispatch(h.ctx, of)
	require.GreaterOrEqual(t, of.Ret, int64(0))
	sockfd := of.Ret

	cf := &Frame{Num: SysConnect, Args: [6]uint64{uint64(sockfd), 0x0a000002, 9000}}
	h.d.Dispatch(h.ctx, cf)
	require.Equal(t, int64(0), cf.Ret)

	payload := []byte("ping")
	require.NoError(t, h.ctx.AS.CopyOut(0, payload))
	sf := &Frame{Num: SysSend, Args: [6]uint64{uint64(sockfd), 0, uint64(len(payload))}}
	h.d.Dispatch(h.ctx, sf)
	require.Equal(t, int64(len(payload)), sf.Ret)

	got := make(chan []byte, 1)
	go func() { got <- peerSock.Recv() }()
	select {
	case data := <-got:
		require.Equal(t, payload, data)
	case <-time.After(2 * time.Second):
		t.Fatal("peer socket never received the datagram")
	}

	ccf := &Frame{Num: SysCloseSocket, Args: [6]uint64{uint64(sockfd)}}
	h.d.Dispatch(h.ctx, ccf)
	require.Equal(t, int64(0), ccf.Ret)
}

func TestSetConsoleModeRejectsUnknownMode(t *testing.T) {
	h := newHarness(t)
	f := &Frame{Num: SysSetConsoleMode, Args: [6]uint64{99}}
	h.d.Dispatch(h.ctx, f)
	require.Equal(t, int64(-1), f.Ret)

	ok := &Frame{Num: SysSetConsoleMode, Args: [6]uint64{uint64(console.Raw)}}
	h.d.Dispatch(h.ctx, ok)
	require.Equal(t, int64(0), ok.Ret)
}

func TestUnknownSyscallReturnsInval(t *testing.T) {
	h := newHarness(t)
	f := &Frame{Num: 9999}
	h.d.Dispatch(h.ctx, f)
	require.Equal(t, int64(-1), f.Ret)
}

// TestLargeWriteForcesBufferEvictionWithoutPanic writes far more distinct
// blocks than newTestFS's 32-entry bcache holds. Before every persistent
// mutation was bracketed in a log transaction, fsinode.WriteI's dirty
// buffers were never committed, so once the pool filled, bcache.Cache.Bget's
// eviction loop would reach one of them and panic ("refusing to evict a
// dirty buffer") instead of reusing it. This regression test pins that a
// write spanning many transactions commits each chunk instead of pinning its
// buffers dirty forever, and that the data round-trips correctly afterward.
func TestLargeWriteForcesBufferEvictionWithoutPanic(t *testing.T) {
	h := newHarness(t)
	as := h.ctx.AS
	_, err := as.Sbrk(300000)
	require.NoError(t, err)

	putStr(t, as, 0, "/big.txt")
	cf := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(OCreate | OWrOnly)}}
	h.d.Dispatch(h.ctx, cf)
	require.GreaterOrEqual(t, cf.Ret, int64(0))
	fd := cf.Ret

	const payloadAddr = 65536
	const size = 40 * fsinode.BlockSize // 40 blocks, the 32-buffer cache can't hold them all at once
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, as.CopyOut(payloadAddr, payload))

	wf := &Frame{Num: SysWrite, Args: [6]uint64{uint64(fd), payloadAddr, uint64(size)}}
	require.NotPanics(t, func() { h.d.Dispatch(h.ctx, wf) })
	require.Equal(t, int64(size), wf.Ret)

	h.d.Dispatch(h.ctx, &Frame{Num: SysClose, Args: [6]uint64{uint64(fd)}})

	putStr(t, as, 0, "/big.txt")
	of := &Frame{Num: SysOpen, Args: [6]uint64{0, uint64(ORdOnly)}}
	h.d.Dispatch(h.ctx, of)
	require.GreaterOrEqual(t, of.Ret, int64(0))
	fd2 := of.Ret

	const readAddr = 200000
	rf := &Frame{Num: SysRead, Args: [6]uint64{uint64(fd2), readAddr, uint64(size)}}
	h.d.Dispatch(h.ctx, rf)
	require.Equal(t, int64(size), rf.Ret)

	got, err := as.CopyIn(readAddr, size)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
