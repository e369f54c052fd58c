package filetable

import (
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
)

// PipeSize is the bounded ring buffer's capacity (spec §4.11: "single
// bounded ring").
const PipeSize = 512

// Pipe is a single bounded ring buffer shared by a read and a write file
// entry: readers sleep on the empty channel, writers on the full channel,
// and closing the write end wakes readers to observe EOF.
type Pipe struct {
	mu klock.Spinlock

	data        [PipeSize]byte
	nread       uint64
	nwrite      uint64
	readClosed  bool
	writeClosed bool

	notEmpty *klock.WaitQueue
	notFull  *klock.WaitQueue
}

func newPipe() *Pipe {
	return &Pipe{notEmpty: klock.NewWaitQueue(), notFull: klock.NewWaitQueue()}
}

func (p *Pipe) closeEnd(reading bool) {
	p.mu.Lock()
	if reading {
		p.readClosed = true
	} else {
		p.writeClosed = true
	}
	p.mu.Unlock()
	p.notEmpty.Wake()
	p.notFull.Wake()
}

// write blocks while the ring is full and the read end is still open;
// returns a short count (or io.ErrClosedPipe's kernel analogue) once the
// reader has gone away.
func (p *Pipe) write(src []byte) (int, error) {
	p.mu.Lock()
	written := 0
	for written < len(src) {
		if p.readClosed {
			p.mu.Unlock()
			return written, kerr.ErrState
		}
		if p.nwrite-p.nread == PipeSize {
			p.notFull.Sleep(p.mu.Locker())
			continue
		}
		p.data[p.nwrite%PipeSize] = src[written]
		p.nwrite++
		written++
	}
	p.mu.Unlock()
	p.notEmpty.Wake()
	return written, nil
}

// read blocks while the ring is empty and the write end is still open;
// returns 0, nil once the writer has closed and the buffer has drained
// (EOF, per spec's pipe-closure contract).
func (p *Pipe) read(dst []byte) (int, error) {
	p.mu.Lock()
	for p.nread == p.nwrite && !p.writeClosed {
		p.notEmpty.Sleep(p.mu.Locker())
	}
	n := 0
	for n < len(dst) && p.nread < p.nwrite {
		dst[n] = p.data[p.nread%PipeSize]
		p.nread++
		n++
	}
	p.mu.Unlock()
	p.notFull.Wake()
	return n, nil
}
