// Package trap implements spec §4.5/§4.17's syscall dispatch surface: a
// fixed integer per call routed through a shim, grounded directly in
// original_source/sysproc.c, sysfile.c, and sysnet.c. There is no literal
// trap vector or trap frame pushed by hardware here — Dispatch stands in
// for the vector-table lookup a real `alltraps`/`trap()` pair would do —
// but every shim keeps the original's argument-fetch-then-validate shape
// and its three other syscall contracts: canonical lock order (inode then
// buffer then pipe, the buffer order enforced internally by
// kernel/bcache/kernel/journal), persistent-state changes wrapped in a log
// transaction, and a non-negative return or -1.
package trap

import (
	"github.com/gamer07340/xv6go/kernel/filetable"
	"github.com/gamer07340/xv6go/kernel/kerr"
)

// Syscall numbers, matching original_source's syscall.h ordering where a
// call exists there; calls this rendition adds (tcp/udp/icmp sockets) are
// numbered after the originals.
const (
	SysFork = iota + 1
	SysExit
	SysWait
	SysPipe
	SysRead
	SysKill
	SysExec
	SysFstat
	SysChdir
	SysDup
	SysGetpid
	SysSbrk
	SysSleep
	SysUptime
	SysOpen
	SysWrite
	SysMknod
	SysUnlink
	SysLink
	SysMkdir
	SysClose
	SysLseek
	SysChmod
	SysChown
	SysMount
	SysUmount
	SysGetcwd
	SysGetuid
	SysSetuid
	SysGetgid
	SysSetgid
	SysPs
	SysCrash
	SysSetConsoleMode
	SysSocket
	SysConnect
	SysBind
	SysListen
	SysSend
	SysRecv
	SysCloseSocket
)

// Open-mode flags, matching original_source/tcc/include/fcntl.h.
const (
	ORdOnly = 0x000
	OWrOnly = 0x001
	ORdWr   = 0x002
	OCreate = 0x200
)

// NOFILE bounds a process's own fd array, matching xv6's param.h constant.
const NOFILE = 16

// Frame stands in for the trap frame argument-passing convention: up to
// six word-sized arguments plus the return value, the way argint/argptr
// index into the user stack by fixed offsets in the original.
type Frame struct {
	Num  int
	Args [6]uint64
	Ret  int64
}

// argInt fetches the nth argument as a plain integer (argint).
func argInt(f *Frame, n int) int64 {
	return int64(f.Args[n])
}

// argFD validates the nth argument as an in-range, open file descriptor
// and returns the corresponding File (argfd).
func argFD(ctx *Context, f *Frame, n int) (int, *filetable.File, error) {
	fdNum := int(argInt(f, n))
	if fdNum < 0 || fdNum >= NOFILE || ctx.fds[fdNum] == nil {
		return 0, nil, kerr.ErrInval
	}
	return fdNum, ctx.fds[fdNum], nil
}

// fdAlloc installs f in the first free slot of ctx's fd array (fdalloc).
func fdAlloc(ctx *Context, e *filetable.File) (int, error) {
	for i := 0; i < NOFILE; i++ {
		if ctx.fds[i] == nil {
			ctx.fds[i] = e
			return i, nil
		}
	}
	return -1, kerr.ErrInval
}

// argStr fetches the nth argument as a NUL-terminated user string, bounded
// by maxPathLen the way argstr bounds against the user segment's size
// (fetchstr walks byte-by-byte until NUL or the end of valid memory).
func argStr(ctx *Context, f *Frame, n int) (string, error) {
	return ctx.fetchStr(uint64(f.Args[n]))
}

const maxPathLen = 512
