package trap

import (
	"github.com/gamer07340/xv6go/kernel/filetable"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/proc"
	"github.com/gamer07340/xv6go/kernel/vmem"
)

// Context is the per-process state a syscall shim needs beyond the shared
// kernel tables held by the Dispatcher: the calling process's table entry,
// its address space (for argument validation/copy), its current working
// directory path, and its own fd array (every slot an index into the
// global filetable.Table, exactly as ofile[] indexes the global file
// array in the original).
type Context struct {
	Proc *proc.Proc
	AS   *vmem.AddressSpace
	Cwd  string // always absolute; "/" at process start

	fds [NOFILE]*filetable.File
}

// NewContext creates a fresh per-process syscall context rooted at "/".
func NewContext(p *proc.Proc, as *vmem.AddressSpace) *Context {
	return &Context{Proc: p, AS: as, Cwd: "/"}
}

// fetchStr reads a NUL-terminated string out of the address space starting
// at addr, bounded by maxPathLen (fetchstr).
func (ctx *Context) fetchStr(addr uint64) (string, error) {
	for n := 1; n <= maxPathLen; n++ {
		buf, err := ctx.AS.CopyIn(addr, n)
		if err != nil {
			return "", kerr.ErrInval
		}
		if buf[n-1] == 0 {
			return string(buf[:n-1]), nil
		}
	}
	return "", kerr.ErrInval
}

// resolvePath joins a possibly-relative path against the context's cwd,
// the way the original's single-rooted namei relies on curproc->cwd having
// already been baked into the string by the shell/user program; this
// rendition does that join explicitly since kernel/mount.Namei only ever
// walks from the global root.
func (ctx *Context) resolvePath(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path
	}
	if ctx.Cwd == "/" {
		return "/" + path
	}
	return ctx.Cwd + "/" + path
}
