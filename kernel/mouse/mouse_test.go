package mouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadDecodesThreeByteReport(t *testing.T) {
	m := New()
	m.Interrupt(0x08) // no buttons, no overflow, no sign bits set
	m.Interrupt(10)   // +10 dx
	m.Interrupt(20)   // +20 dy

	p, err := m.Read()
	require.NoError(t, err)
	require.False(t, p.Left)
	require.False(t, p.Right)
	require.False(t, p.Middle)
	require.Equal(t, int8(10), p.DX)
	require.Equal(t, int8(20), p.DY)
}

func TestReadAppliesSignBitsForNegativeDeltas(t *testing.T) {
	m := New()
	m.Interrupt(0x01 | 0x08 | 0x10 | 0x20) // left button + X sign + Y sign set, bit3 always 1
	m.Interrupt(250)         // raw byte; with sign bit set -> 250-256 = -6
	m.Interrupt(251)         // raw byte; with sign bit set -> 251-256 = -5

	p, err := m.Read()
	require.NoError(t, err)
	require.True(t, p.Left)
	require.Equal(t, int8(-6), p.DX)
	require.Equal(t, int8(-5), p.DY)
}

func TestReadBlocksUntilFullPacketQueued(t *testing.T) {
	m := New()
	done := make(chan Packet, 1)
	go func() {
		p, _ := m.Read()
		done <- p
	}()

	time.Sleep(20 * time.Millisecond)
	m.Interrupt(0x0A) // right button
	m.Interrupt(1)
	m.Interrupt(2)

	select {
	case p := <-done:
		require.True(t, p.Right)
		require.Equal(t, int8(1), p.DX)
		require.Equal(t, int8(2), p.DY)
	case <-time.After(time.Second):
		t.Fatal("read never woke after third byte arrived")
	}
}

func TestKillUnblocksPendingRead(t *testing.T) {
	m := New()
	done := make(chan error, 1)
	go func() {
		_, err := m.Read()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	m.Kill()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("read never woke after kill")
	}
}
