package trap

import (
	"sync"

	"github.com/gamer07340/xv6go/kernel/console"
	"github.com/gamer07340/xv6go/kernel/filetable"
	"github.com/gamer07340/xv6go/kernel/fsinode"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/mount"
	"github.com/gamer07340/xv6go/kernel/netstack/socket"
	"github.com/gamer07340/xv6go/kernel/proc"
	"github.com/gamer07340/xv6go/kernel/timer"
)

// Dispatcher holds every shared kernel table a syscall shim may need to
// touch, standing in for the original's global kernel state (ftable,
// sockets[], the mount table, proc table, tickslock) that sysfile.c/
// sysproc.c/sysnet.c's free functions all reach into directly.
type Dispatcher struct {
	Procs   *proc.Table
	Clock   *timer.Clock
	Files   *filetable.Table
	Mounts  *mount.Table
	NetCtl  *socket.Stack
	Console *console.Console

	devMu   sync.Mutex
	devices map[int]*fsinode.FS // dev -> filesystem available to be mounted, populated at boot

	ctxMu sync.Mutex
	ctx   map[int]*Context // pid -> syscall context, populated by fork
}

// NewDispatcher wires the shared kernel tables into one dispatch point.
func NewDispatcher(procs *proc.Table, clock *timer.Clock, files *filetable.Table, mounts *mount.Table, net *socket.Stack, con *console.Console) *Dispatcher {
	return &Dispatcher{Procs: procs, Clock: clock, Files: files, Mounts: mounts, NetCtl: net, Console: con, devices: make(map[int]*fsinode.FS), ctx: make(map[int]*Context)}
}

// RegisterDevice makes fs (already opened or formatted on dev, but not yet
// mounted anywhere) available to a later sys_mount call naming dev — the
// boot-time equivalent of xv6 probing every disk and recognizing its
// filesystem before userland ever calls mount(2).
func (d *Dispatcher) RegisterDevice(dev int, fs *fsinode.FS) {
	d.devMu.Lock()
	defer d.devMu.Unlock()
	d.devices[dev] = fs
}

func (d *Dispatcher) deviceFS(dev int) (*fsinode.FS, bool) {
	d.devMu.Lock()
	defer d.devMu.Unlock()
	fs, ok := d.devices[dev]
	return fs, ok
}

// ContextForPID looks up the syscall context a prior fork registered for
// pid, for whatever runs the scheduler loop to pick up and actually run the
// child (this package only implements the syscall surface, not the
// goroutine-per-process scheduling loop itself).
func (d *Dispatcher) ContextForPID(pid int) (*Context, bool) {
	d.ctxMu.Lock()
	defer d.ctxMu.Unlock()
	c, ok := d.ctx[pid]
	return c, ok
}

func (d *Dispatcher) registerContext(pid int, c *Context) {
	d.ctxMu.Lock()
	d.ctx[pid] = c
	d.ctxMu.Unlock()
}

func (d *Dispatcher) unregisterContext(pid int) {
	d.ctxMu.Lock()
	delete(d.ctx, pid)
	d.ctxMu.Unlock()
}

// Dispatch routes f by its syscall number to the matching shim, applying
// the table-lookup step spec §4.5 describes ("system-call vector → syscall
// table lookup → per-call shim"). On error, f.Ret is set to -1 per the
// syscall contract (d): "return a non-negative value or -1" — this
// rendition doesn't surface an errno, matching the original's own
// int-only return convention.
func (d *Dispatcher) Dispatch(ctx *Context, f *Frame) {
	ret, err := d.dispatch(ctx, f)
	if err != nil {
		f.Ret = -1
		return
	}
	f.Ret = ret
}

func (d *Dispatcher) dispatch(ctx *Context, f *Frame) (int64, error) {
	switch f.Num {
	case SysFork:
		return d.sysFork(ctx, f)
	case SysExit:
		return d.sysExit(ctx, f)
	case SysWait:
		return d.sysWait(ctx, f)
	case SysKill:
		return d.sysKill(ctx, f)
	case SysGetpid:
		return d.sysGetpid(ctx, f)
	case SysSbrk:
		return d.sysSbrk(ctx, f)
	case SysSleep:
		return d.sysSleep(ctx, f)
	case SysUptime:
		return d.sysUptime(ctx, f)
	case SysGetuid:
		return d.sysGetuid(ctx, f)
	case SysSetuid:
		return d.sysSetuid(ctx, f)
	case SysGetgid:
		return d.sysGetgid(ctx, f)
	case SysSetgid:
		return d.sysSetgid(ctx, f)
	case SysPs:
		return d.sysPs(ctx, f)
	case SysCrash:
		panic("user requested crash")

	case SysOpen:
		return d.sysOpen(ctx, f)
	case SysClose:
		return d.sysClose(ctx, f)
	case SysRead:
		return d.sysRead(ctx, f)
	case SysWrite:
		return d.sysWrite(ctx, f)
	case SysDup:
		return d.sysDup(ctx, f)
	case SysLink:
		return d.sysLink(ctx, f)
	case SysUnlink:
		return d.sysUnlink(ctx, f)
	case SysMkdir:
		return d.sysMkdir(ctx, f)
	case SysMknod:
		return d.sysMknod(ctx, f)
	case SysChdir:
		return d.sysChdir(ctx, f)
	case SysGetcwd:
		return d.sysGetcwd(ctx, f)
	case SysFstat:
		return d.sysFstat(ctx, f)
	case SysLseek:
		return d.sysLseek(ctx, f)
	case SysChmod:
		return d.sysChmod(ctx, f)
	case SysChown:
		return d.sysChown(ctx, f)
	case SysMount:
		return d.sysMount(ctx, f)
	case SysUmount:
		return d.sysUmount(ctx, f)
	case SysPipe:
		return d.sysPipe(ctx, f)
	case SysSetConsoleMode:
		return d.sysSetConsoleMode(ctx, f)

	case SysSocket:
		return d.sysSocket(ctx, f)
	case SysConnect:
		return d.sysConnect(ctx, f)
	case SysBind:
		return d.sysBind(ctx, f)
	case SysListen:
		return d.sysListen(ctx, f)
	case SysSend:
		return d.sysSend(ctx, f)
	case SysRecv:
		return d.sysRecv(ctx, f)
	case SysCloseSocket:
		return d.sysCloseSocket(ctx, f)
	}
	return -1, kerr.ErrInval
}
