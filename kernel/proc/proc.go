// Package proc implements the fixed-size process table and the per-CPU
// round-robin scheduler of spec §3/§4.4. Each simulated CPU is a goroutine
// that takes the next process queued by Scheduler.Schedule and runs its
// work function until that returns to a scheduling point, and the process
// table's single spinlock guards the
// state field of every slot, matching spec §5's shared-resource policy.
package proc

import (
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// State is one of the process lifecycle states from spec §3.
type State int

const (
	Unused State = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Embryo:
		return "embryo"
	case Sleeping:
		return "sleeping"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return "invalid"
	}
}

// MaxProcs bounds the process table, as in the original's compile-time NPROC.
const MaxProcs = 64

// Proc is one process-table slot. Every field not explicitly called out as
// exclusive to the owning process is GUARDED_BY the table's spinlock.
type Proc struct {
	PID      int
	Parent   *Proc
	State    State
	Sz       uint64 // size of user memory, in bytes; bounds argument fetch
	Cwd      uint64 // inode number of the current working directory
	UID, GID uint32
	Killed   bool
	Name     string

	waitChan any // the channel this proc is parked on, if Sleeping

	exitStatus int
	zombieWake *klock.WaitQueue // parent's wait queue, signalled on exit
}

// Table is the fixed-size process table plus its single guarding spinlock.
type Table struct {
	mu      klock.Spinlock
	slots   [MaxProcs]*Proc
	nextPID int
	childWQ *klock.WaitQueue // wait() parks here
}

func NewTable() *Table {
	return &Table{nextPID: 1, childWQ: klock.NewWaitQueue()}
}

// Fork allocates a new table slot for a child of parent, deep-copying its
// address space is the caller's responsibility (kernel/vmem); this only
// manages table bookkeeping. Returns kerr.ErrNoMem if the table is full.
func (t *Table) Fork(parent *Proc) (*Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.slots[i] == nil || t.slots[i].State == Unused {
			pid := t.nextPID
			t.nextPID++
			child := &Proc{
				PID:        pid,
				Parent:     parent,
				State:      Embryo,
				UID:        parent.UID,
				GID:        parent.GID,
				Cwd:        parent.Cwd,
				Name:       parent.Name,
				zombieWake: t.childWQ,
			}
			t.slots[i] = child
			return child, nil
		}
	}
	return nil, kerr.ErrNoMem
}

// SetRunnable marks p runnable after its address space and trap frame have
// been prepared.
func (t *Table) SetRunnable(p *Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.State = Runnable
}

// Exit marks p a zombie with the given status and wakes its parent's wait.
// It does not reassign orphaned children (init-reparenting is a non-goal of
// this simulation; the process table has no PID 1 daemon to reparent to).
func (t *Table) Exit(p *Proc, status int) {
	t.mu.Lock()
	p.State = Zombie
	p.exitStatus = status
	t.mu.Unlock()
	p.zombieWake.Wake()
}

// Wait blocks parent until one of its children becomes a zombie, reaps it
// (freeing the table slot) and returns its PID and exit status. Returns
// kerr.ErrState if parent has no children at all.
func (t *Table) Wait(parent *Proc) (pid int, status int, err error) {
	for {
		t.mu.Lock()
		haveChild := false
		for i := range t.slots {
			c := t.slots[i]
			if c == nil || c.Parent != parent {
				continue
			}
			haveChild = true
			if c.State == Zombie {
				pid, status = c.PID, c.exitStatus
				t.slots[i] = nil
				t.mu.Unlock()
				return pid, status, nil
			}
		}
		if !haveChild || parent.Killed {
			t.mu.Unlock()
			return 0, 0, kerr.ErrState
		}
		t.childWQ.Sleep(t.mu.Locker())
	}
}

// Kill sets the killed flag on the process with the given PID. Sleeping
// loops throughout the kernel check this flag on every wake (spec §5's
// cancellation policy) and unwind their in-progress syscall with -1.
func (t *Table) Kill(pid int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.slots {
		if p != nil && p.PID == pid {
			p.Killed = true
			return nil
		}
	}
	return kerr.ErrNoEnt
}

// Snapshot returns a point-in-time copy of the table for the ps syscall.
func (t *Table) Snapshot() []Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Proc, 0, MaxProcs)
	for _, p := range t.slots {
		if p != nil {
			cp := *p
			out = append(out, cp)
		}
	}
	return out
}

// Count returns the number of live (non-unused) table slots, for /metrics.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.slots {
		if p != nil {
			n++
		}
	}
	return n
}
