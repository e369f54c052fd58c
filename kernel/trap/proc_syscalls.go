package trap

import (
	"fmt"

	"github.com/gamer07340/xv6go/kernel/console"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/proc"
)

// sysSetConsoleMode switches the console's line discipline between cooked
// and raw (setconsolemode).
func (d *Dispatcher) sysSetConsoleMode(ctx *Context, f *Frame) (int64, error) {
	m := console.Mode(argInt(f, 0))
	if m != console.Cooked && m != console.Raw {
		return -1, kerr.ErrInval
	}
	d.Console.SetMode(m)
	return 0, nil
}

// sysFork mirrors sys_fork: allocate a child process-table slot and a
// copy-on-write-free duplicate of the caller's address space (fork, growproc
// in the original use the same vm copy routine), wire up a syscall context
// for it, and mark it runnable. Returns the child's pid to the parent; the
// scheduler loop (not this package) is responsible for actually running the
// child goroutine, looking its Context up via ContextForPID.
func (d *Dispatcher) sysFork(ctx *Context, f *Frame) (int64, error) {
	child, err := d.Procs.Fork(ctx.Proc)
	if err != nil {
		return -1, err
	}
	childAS, err := ctx.AS.Fork()
	if err != nil {
		return -1, err
	}
	childCtx := NewContext(child, childAS)
	childCtx.Cwd = ctx.Cwd
	d.registerContext(child.PID, childCtx)
	d.Procs.SetRunnable(child)
	return int64(child.PID), nil
}

// sysExit closes every open fd, tears down the address space, and marks the
// process a zombie (exit). The original also closes cwd's inode reference;
// this rendition's cwd is a plain path string, so there is no inode pin to
// release.
func (d *Dispatcher) sysExit(ctx *Context, f *Frame) (int64, error) {
	for i := range ctx.fds {
		if ctx.fds[i] != nil {
			d.Files.Close(ctx.fds[i])
			ctx.fds[i] = nil
		}
	}
	ctx.AS.Destroy()
	status := int(argInt(f, 0))
	d.Procs.Exit(ctx.Proc, status)
	d.unregisterContext(ctx.Proc.PID)
	return 0, nil
}

// sysWait blocks until one of the caller's children exits, reaps it, and
// returns its pid (wait). This retrieval's sys_wait takes no status-pointer
// argument, unlike the original's waitpid-style variant.
func (d *Dispatcher) sysWait(ctx *Context, f *Frame) (int64, error) {
	pid, _, err := d.Procs.Wait(ctx.Proc)
	if err != nil {
		return -1, err
	}
	return int64(pid), nil
}

// sysKill marks the target pid killed (kill); the victim notices on its
// next trip through a blocking point (sleep, scheduler yield) just as the
// original checks p->killed before returning to user space.
func (d *Dispatcher) sysKill(ctx *Context, f *Frame) (int64, error) {
	pid := int(argInt(f, 0))
	if err := d.Procs.Kill(pid); err != nil {
		return -1, err
	}
	return 0, nil
}

func (d *Dispatcher) sysGetpid(ctx *Context, f *Frame) (int64, error) {
	return int64(ctx.Proc.PID), nil
}

// sysSbrk grows or shrinks the caller's address space by n bytes, returning
// its size before the change (sbrk's "return old break" convention).
func (d *Dispatcher) sysSbrk(ctx *Context, f *Frame) (int64, error) {
	n := int64(argInt(f, 0))
	old, err := ctx.AS.Sbrk(n)
	if err != nil {
		return -1, err
	}
	return int64(old), nil
}

// sysSleep parks the caller on the kernel clock for n ticks, waking early
// if it is killed (sys_sleep's ticks-based wait, ticking off the global
// tickslock-guarded counter here represented by timer.Clock).
func (d *Dispatcher) sysSleep(ctx *Context, f *Frame) (int64, error) {
	n := uint32(argInt(f, 0))
	if killedEarly := !d.Clock.Sleep(n, func() bool { return ctx.Proc.Killed }); killedEarly {
		return -1, kerr.ErrState
	}
	return 0, nil
}

func (d *Dispatcher) sysUptime(ctx *Context, f *Frame) (int64, error) {
	return int64(d.Clock.Uptime()), nil
}

func (d *Dispatcher) sysGetuid(ctx *Context, f *Frame) (int64, error) {
	return int64(ctx.Proc.UID), nil
}

// sysSetuid only succeeds for the root user, per sysproc.c's literal
// comment restricting uid/gid changes to uid 0.
func (d *Dispatcher) sysSetuid(ctx *Context, f *Frame) (int64, error) {
	if ctx.Proc.UID != 0 {
		return -1, kerr.ErrPerm
	}
	ctx.Proc.UID = uint32(argInt(f, 0))
	return 0, nil
}

func (d *Dispatcher) sysGetgid(ctx *Context, f *Frame) (int64, error) {
	return int64(ctx.Proc.GID), nil
}

func (d *Dispatcher) sysSetgid(ctx *Context, f *Frame) (int64, error) {
	if ctx.Proc.UID != 0 {
		return -1, kerr.ErrPerm
	}
	ctx.Proc.GID = uint32(argInt(f, 0))
	return 0, nil
}

// sysPs formats the process table the way the original's procdump prints
// to the console, copying the result out to the caller's buffer instead of
// writing straight to a console device (this rendition's `ps` is a regular
// syscall returning a string, not a debug console dump triggered by ctrl-P).
func (d *Dispatcher) sysPs(ctx *Context, f *Frame) (int64, error) {
	snap := d.Procs.Snapshot()
	var out []byte
	for _, p := range snap {
		if p.State == proc.Unused {
			continue
		}
		line := fmt.Sprintf("%d %s %s\n", p.PID, p.State, p.Name)
		out = append(out, line...)
	}
	size := int(argInt(f, 1))
	if size < len(out) {
		out = out[:size]
	}
	if err := ctx.AS.CopyOut(f.Args[0], out); err != nil {
		return -1, err
	}
	return int64(len(out)), nil
}
