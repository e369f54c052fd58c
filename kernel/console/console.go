// Package console implements spec §4.15: a two-state ANSI CSI output
// interpreter (normal / in-escape) plus cooked and raw line-discipline
// input modes.
package console

import "github.com/gamer07340/xv6go/kernel/klock"

// Mode selects the input line discipline.
type Mode int

const (
	// Cooked line-edits input: backspace erases the last byte, Ctrl-U
	// kills the line, and a reader only wakes on newline or Ctrl-D.
	Cooked Mode = iota
	// Raw enqueues every byte immediately; EOF is still Ctrl-D.
	Raw
)

const (
	ctrlU = 0x15
	bs    = 0x08
	del   = 0x7f
	ctrlD = 0x04
	lf    = '\n'
)

// bufSize bounds the cooked-mode input line buffer, matching xv6's
// INPUT_BUF convention (a fixed ring, not an arbitrary-length line).
const bufSize = 128

// Console owns input-mode state, the pending input ring, and output
// rendering state (cursor position and SGR attributes) driven by Render.
type Console struct {
	mu   klock.Spinlock
	notE *klock.WaitQueue // woken when a line (cooked) or byte (raw) is ready

	mode Mode

	buf          [bufSize]byte
	readIdx      int // next byte a reader consumes
	editIdx      int // end of the current, not-yet-terminated line
	writeIdx     int // next byte a keystroke is appended at
	eof          bool
	pendingLines int // cooked-mode: count of '\n'/Ctrl-D terminated lines ready

	render renderState
}

func New() *Console {
	c := &Console{notE: klock.NewWaitQueue()}
	c.render.fg, c.render.bg = -1, -1
	return c
}

// SetMode switches the line discipline (setconsolemode syscall).
func (c *Console) SetMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

// Putc is a keystroke arriving from the keyboard driver.
func (c *Console) Putc(ch byte) {
	c.mu.Lock()
	woke := false

	if c.mode == Raw {
		if ch == ctrlD {
			c.eof = true
		} else {
			c.push(ch)
		}
		c.pendingLines++ // raw mode: every byte is immediately "a line"
		woke = true
	} else {
		switch ch {
		case bs, del:
			if c.editIdx > c.writeLineStart() {
				c.editIdx--
				c.writeIdx = c.editIdx
			}
		case ctrlU:
			for c.editIdx > c.writeLineStart() {
				c.editIdx--
			}
			c.writeIdx = c.editIdx
		case ctrlD:
			c.eof = true
			c.pendingLines++
			woke = true
		default:
			c.push(ch)
			c.editIdx = c.writeIdx
			if ch == lf {
				c.pendingLines++
				woke = true
			}
		}
	}
	c.mu.Unlock()
	if woke {
		c.notE.Wake()
	}
}

// writeLineStart is where the line currently being edited began — either
// the last consumed read position or the start of the buffer on wraparound.
// Kept simple (no wraparound erase past a completed line) since the buffer
// size far exceeds one interactive line in practice.
func (c *Console) writeLineStart() int { return c.readIdx }

func (c *Console) push(ch byte) {
	if c.writeIdx-c.readIdx >= bufSize {
		return // drop: line discipline buffer full
	}
	c.buf[c.writeIdx%bufSize] = ch
	c.writeIdx++
}

// Read consumes up to len(dst) bytes per spec's cooked/raw contract: cooked
// mode blocks until a full line (or Ctrl-D) is available and returns at
// most one line per call; raw mode returns as soon as a single byte exists.
func (c *Console) Read(dst []byte) (int, error) {
	c.mu.Lock()
	for c.pendingLines == 0 && !c.eof {
		c.notE.Sleep(c.mu.Locker())
	}
	n := 0
	for n < len(dst) && c.readIdx < c.writeIdx {
		ch := c.buf[c.readIdx%bufSize]
		c.readIdx++
		n++
		if c.mode == Cooked && ch == lf {
			break
		}
		if c.mode == Raw {
			break
		}
	}
	if n > 0 {
		c.pendingLines--
	}
	eof := c.eof && c.readIdx >= c.writeIdx
	c.mu.Unlock()
	if n == 0 && eof {
		return 0, nil
	}
	return n, nil
}
