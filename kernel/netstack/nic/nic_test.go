package nic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTransmitDeliversFrameToPeerRxHandler(t *testing.T) {
	a, b := NewPair([6]byte{1, 1, 1, 1, 1, 1}, [6]byte{2, 2, 2, 2, 2, 2})
	defer a.Close()
	defer b.Close()

	received := make(chan []byte, 1)
	b.Start(func(frame []byte) { received <- frame })
	a.Start(func([]byte) {})

	err := a.Transmit([]byte("hello ether"))
	require.NoError(t, err)

	select {
	case frame := <-received:
		require.Equal(t, "hello ether", string(frame))
	case <-time.After(time.Second):
		t.Fatal("peer never received transmitted frame")
	}
}

func TestMACReturnsConfiguredAddress(t *testing.T) {
	a, b := NewPair([6]byte{0x52, 0x54, 0, 0x12, 0x34, 0x56}, [6]byte{0xaa, 0, 0, 0, 0, 1})
	defer a.Close()
	defer b.Close()
	require.Equal(t, [6]byte{0x52, 0x54, 0, 0x12, 0x34, 0x56}, a.MAC())
}
