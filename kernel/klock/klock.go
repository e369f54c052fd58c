// Package klock provides the two lock kinds spec §4.3 requires: a spinlock
// for short critical sections, and a sleep-lock built on top of it whose
// contended path parks the caller instead of busy-waiting. It also provides
// the WaitQueue primitive that the buffer cache, pipes, and the block-device
// request queue all use for sleep/wakeup (spec §5): a thread that inserts
// itself on a channel before releasing its lock is guaranteed to observe a
// subsequent wakeup, since insertion happens under the same lock as release.
package klock

import "sync"

// Spinlock guards a short critical section. Unlike the bare-metal original,
// Go's runtime preempts goroutines safely, so this is a conventional mutex;
// it exists as a distinct type so that call sites read the way the rest of
// the kernel's locking discipline is documented (LOCKS_REQUIRED / GUARDED_BY
// comments refer to a Spinlock or a SleepLock, never a bare sync.Mutex).
type Spinlock struct {
	mu sync.Mutex
}

func (l *Spinlock) Lock()   { l.mu.Lock() }
func (l *Spinlock) Unlock() { l.mu.Unlock() }

// Locker exposes the underlying mutex as a sync.Locker, for passing to
// WaitQueue.Sleep while holding this spinlock.
func (l *Spinlock) Locker() sync.Locker { return &l.mu }

// WaitQueue is an opaque token identifying a group of sleepers waiting for
// the same event (spec's "wait channel"). Callers hold some Spinlock or
// SleepLock of their own while calling Sleep; Sleep releases it for the
// duration of the wait and reacquires it before returning, so that a Wake
// performed by another goroutine under that same external lock is never
// lost.
type WaitQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewWaitQueue() *WaitQueue {
	q := &WaitQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Sleep atomically releases held (the caller's lock on the associated
// object) and blocks until Wake is called, then reacquires held before
// returning. This is the sleep/wakeup primitive spec §4.3/§5 describes:
// insertion into the wait set happens-before the release of held, so a
// wakeup broadcast after that point under the same external synchronization
// is never missed.
func (q *WaitQueue) Sleep(held sync.Locker) {
	q.mu.Lock()
	held.Unlock()
	q.cond.Wait()
	q.mu.Unlock()
	held.Lock()
}

// Wake wakes every sleeper currently parked on the queue.
func (q *WaitQueue) Wake() {
	q.mu.Lock()
	q.cond.Broadcast()
	q.mu.Unlock()
}

// SleepLock is a lock that, when contended, suspends the caller on a
// WaitQueue rather than spinning. It may only be held while interruptible
// (i.e. never across a suspension point of its own).
type SleepLock struct {
	gate   *Spinlock
	waiq   *WaitQueue
	locked bool
}

func NewSleepLock() *SleepLock {
	return &SleepLock{gate: &Spinlock{}, waiq: NewWaitQueue()}
}

// Acquire blocks until the lock is free, then takes it.
func (l *SleepLock) Acquire() {
	l.gate.Lock()
	for l.locked {
		l.waiq.Sleep(&l.gate.mu)
	}
	l.locked = true
	l.gate.Unlock()
}

// Release gives up the lock and wakes one waiter's worth of contenders; all
// parked goroutines re-check l.locked so this is safe as a broadcast.
func (l *SleepLock) Release() {
	l.gate.Lock()
	if !l.locked {
		panic("klock: release of an unlocked sleep-lock")
	}
	l.locked = false
	l.gate.Unlock()
	l.waiq.Wake()
}

// TryAcquire takes the lock only if it is currently free.
func (l *SleepLock) TryAcquire() bool {
	l.gate.Lock()
	defer l.gate.Unlock()
	if l.locked {
		return false
	}
	l.locked = true
	return true
}

// Locked reports whether the lock is currently held, for invariant checks.
func (l *SleepLock) Locked() bool {
	l.gate.Lock()
	defer l.gate.Unlock()
	return l.locked
}
