// Package timer is the tick source of spec §4.6: a monotonically increasing
// counter advanced at a fixed rate (standing in for the 100 Hz PIT), plus the
// sleep(n) syscall implemented as "sleep until ticks - t0 >= n".
//
// The ticks counter is a uint32, exactly as in the original; spec §9 leaves
// its wraparound behaviour undefined, and this package does not invent any —
// a wraparound simply makes a pending sleep return early or late, as it would
// on the original hardware.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/gamer07340/xv6go/kernel/klock"
)

// HZ is the simulated timer frequency.
const HZ = 100

// Clock owns the ticks counter and the wait queue that sleep(n) parks on.
type Clock struct {
	mu    sync.Mutex
	ticks uint32
	wq    *klock.WaitQueue
	stop  chan struct{}
}

func New() *Clock {
	return &Clock{wq: klock.NewWaitQueue(), stop: make(chan struct{})}
}

// Run advances ticks at HZ until ctx is cancelled or Stop is called. Intended
// to run in its own goroutine, standing in for the timer interrupt handler.
func (c *Clock) Run(ctx context.Context) {
	t := time.NewTicker(time.Second / HZ)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-t.C:
			c.mu.Lock()
			c.ticks++
			c.mu.Unlock()
			c.wq.Wake()
		}
	}
}

// Stop halts Run.
func (c *Clock) Stop() { close(c.stop) }

// Uptime returns the current tick count, backing the uptime syscall.
func (c *Clock) Uptime() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Sleep blocks the caller until n ticks have elapsed, or until killed returns
// true (the in-progress syscall's kill check, spec §5 cancellation). It
// returns false if woken by a kill rather than by elapsed time.
func (c *Clock) Sleep(n uint32, killed func() bool) bool {
	c.mu.Lock()
	t0 := c.ticks
	for c.ticks-t0 < n {
		if killed != nil && killed() {
			c.mu.Unlock()
			return false
		}
		c.wq.Sleep(&c.mu)
	}
	c.mu.Unlock()
	return true
}
