package proc

import (
	"context"
	"time"

	"github.com/containerd/log"
)

// Scheduler runs NCPU goroutines, each standing in for one CPU's scheduler
// loop: take the next unit of work that Schedule queued, run it until it
// returns, go back to waiting. The table itself is not scanned. Real work units are represented as funcs rather than
// kernel stacks; Run is a best-effort simulation of spec §4.4's round-robin
// discipline, not a context-switch implementation (Go's own goroutines are
// the context-switch mechanism here).
type Scheduler struct {
	table *Table
	ncpu  int

	work chan *scheduled
}

type scheduled struct {
	p  *Proc
	fn func(*Proc)
}

// NewScheduler creates a scheduler fanning work out across ncpu goroutines.
func NewScheduler(table *Table, ncpu int) *Scheduler {
	if ncpu < 1 {
		ncpu = 1
	}
	return &Scheduler{table: table, ncpu: ncpu, work: make(chan *scheduled, MaxProcs)}
}

// Run starts the per-CPU loops; it returns once ctx is cancelled and every
// in-flight unit of work has drained.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, s.ncpu)
	for cpu := 0; cpu < s.ncpu; cpu++ {
		go s.cpuLoop(ctx, cpu, done)
	}
	for cpu := 0; cpu < s.ncpu; cpu++ {
		<-done
	}
}

func (s *Scheduler) cpuLoop(ctx context.Context, cpu int, done chan<- struct{}) {
	logger := log.G(ctx).WithField("cpu", cpu)
	logger.Debug("scheduler: cpu online")
	for {
		select {
		case <-ctx.Done():
			done <- struct{}{}
			return
		case unit := <-s.work:
			s.table.mu.Lock()
			unit.p.State = Running
			s.table.mu.Unlock()

			unit.fn(unit.p)

			s.table.mu.Lock()
			if unit.p.State == Running {
				unit.p.State = Runnable
			}
			s.table.mu.Unlock()
		case <-time.After(10 * time.Millisecond):
			// Idle tick: nothing runnable right now. A real round-robin
			// scheduler busy-scans the table here; we just loop back.
		}
	}
}

// Schedule enqueues p to run fn on some simulated CPU. fn should return at a
// well-defined yield point (spec §4.4): a timer tick, an explicit sleep, or
// completion of the syscall it was servicing.
func (s *Scheduler) Schedule(p *Proc, fn func(*Proc)) {
	s.table.mu.Lock()
	p.State = Runnable
	s.table.mu.Unlock()
	s.work <- &scheduled{p: p, fn: fn}
}
