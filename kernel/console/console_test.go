package console

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookedBackspaceErasesLastByte(t *testing.T) {
	c := New()
	for _, ch := range []byte("helly") {
		c.Putc(ch)
	}
	c.Putc(bs)
	for _, ch := range []byte("o\n") {
		c.Putc(ch)
	}
	buf := make([]byte, 32)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(buf[:n]))
}

func TestCookedCtrlUKillsLine(t *testing.T) {
	c := New()
	for _, ch := range []byte("garbage") {
		c.Putc(ch)
	}
	c.Putc(ctrlU)
	for _, ch := range []byte("ok\n") {
		c.Putc(ch)
	}
	buf := make([]byte, 32)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(buf[:n]))
}

func TestRawModeDeliversEachByteImmediately(t *testing.T) {
	c := New()
	c.SetMode(Raw)
	c.Putc('x')

	buf := make([]byte, 1)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte('x'), buf[0])
}

func TestCtrlDSignalsEOFInBothModes(t *testing.T) {
	c := New()
	c.Putc(ctrlD)
	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	raw := New()
	raw.SetMode(Raw)
	raw.Putc(ctrlD)
	n, err = raw.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReadBlocksUntilLineComplete(t *testing.T) {
	c := New()
	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 16)
		n, _ := c.Read(buf)
		done <- string(buf[:n])
	}()

	time.Sleep(20 * time.Millisecond)
	for _, ch := range []byte("late\n") {
		c.Putc(ch)
	}

	select {
	case got := <-done:
		require.Equal(t, "late\n", got)
	case <-time.After(time.Second):
		t.Fatal("read never woke on completed line")
	}
}

func TestRenderCursorAbsolutePosition(t *testing.T) {
	c := New()
	seq, ok := feed(c, "\x1b[5;10H")
	require.True(t, ok)
	require.Equal(t, byte('H'), seq.Final)
	row, col := c.CursorPos()
	require.Equal(t, 4, row)
	require.Equal(t, 9, col)
}

func TestRenderCursorRelativeMovement(t *testing.T) {
	c := New()
	feed(c, "\x1b[3;3H")
	feed(c, "\x1b[2A")
	feed(c, "\x1b[1C")
	row, col := c.CursorPos()
	require.Equal(t, 0, row)
	require.Equal(t, 3, col)
}

func TestRenderClearScreenHomesCursor(t *testing.T) {
	c := New()
	feed(c, "\x1b[10;10H")
	feed(c, "\x1b[2J")
	row, col := c.CursorPos()
	require.Equal(t, 0, row)
	require.Equal(t, 0, col)
}

func TestRenderSGRSetsForegroundAndBackground(t *testing.T) {
	c := New()
	feed(c, "\x1b[31;44m")
	fg, bg := c.Colors()
	require.Equal(t, 1, fg)
	require.Equal(t, 4, bg)
}

func TestRenderSGRResetClearsColors(t *testing.T) {
	c := New()
	feed(c, "\x1b[31;44m")
	feed(c, "\x1b[0m")
	fg, bg := c.Colors()
	require.Equal(t, -1, fg)
	require.Equal(t, -1, bg)
}

func feed(c *Console, s string) (CSI, bool) {
	var last CSI
	var ok bool
	for i := 0; i < len(s); i++ {
		last, ok = c.Render(s[i])
	}
	return last, ok
}
