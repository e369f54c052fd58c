// Package mouse implements spec's PS/2 mouse device: a 3-byte packet queue
// fed one byte at a time by the (simulated) PS/2 interrupt handler, grounded
// on original_source/mouse.c's mouseintr/mouseread pair.
package mouse

import (
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// qsize mirrors mouse.c's `buf[256]` raw-byte ring.
const qsize = 256

// Packet is one decoded PS/2 movement/button report: byte 0 carries the
// button bits plus sign/overflow flags, bytes 1-2 the signed X/Y deltas.
type Packet struct {
	Left, Right, Middle bool
	DX, DY              int8
}

// Mouse queues raw PS/2 bytes (Interrupt) and assembles them three at a time
// into Packets (Read); a reader blocks until a full packet is available.
type Mouse struct {
	mu   klock.Spinlock
	notE *klock.WaitQueue

	buf    [qsize]byte
	r, w   uint32
	killed bool
}

func New() *Mouse {
	return &Mouse{notE: klock.NewWaitQueue()}
}

// Interrupt delivers one raw byte from the PS/2 controller's data port, as
// mouseintr does after checking the status port's output-full and
// aux-device bits. A full queue drops the byte rather than blocking the
// interrupt path.
func (m *Mouse) Interrupt(data byte) {
	m.mu.Lock()
	woke := false
	if m.w-m.r < qsize {
		m.buf[m.w%qsize] = data
		m.w++
		woke = true
	}
	m.mu.Unlock()
	if woke {
		m.notE.Wake()
	}
}

// Read blocks until a full 3-byte PS/2 packet is queued, then decodes and
// returns it. Kill unblocks any reader waiting with an error, mirroring
// mouse.c's myproc()->killed check inside the sleep loop.
func (m *Mouse) Read() (Packet, error) {
	m.mu.Lock()
	raw := [3]byte{}
	for i := 0; i < 3; i++ {
		for m.r == m.w {
			if m.killed {
				m.mu.Unlock()
				return Packet{}, kerr.ErrState
			}
			m.notE.Sleep(m.mu.Locker())
		}
		raw[i] = m.buf[m.r%qsize]
		m.r++
	}
	m.mu.Unlock()
	return decode(raw), nil
}

// Kill wakes every blocked reader so it can observe the killed state,
// mirroring mouse.c returning -1 when myproc()->killed is set.
func (m *Mouse) Kill() {
	m.mu.Lock()
	m.killed = true
	m.mu.Unlock()
	m.notE.Wake()
}

func decode(raw [3]byte) Packet {
	status := raw[0]
	dx := int(raw[1])
	dy := int(raw[2])
	if status&0x10 != 0 { // X sign bit
		dx -= 256
	}
	if status&0x20 != 0 { // Y sign bit
		dy -= 256
	}
	return Packet{
		Left:   status&0x01 != 0,
		Right:  status&0x02 != 0,
		Middle: status&0x04 != 0,
		DX:     int8(dx),
		DY:     int8(dy),
	}
}
