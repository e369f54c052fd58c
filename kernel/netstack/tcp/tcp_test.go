package tcp

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/netstack/ip"
	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
	"github.com/stretchr/testify/require"
)

func TestPushThenDecodeRoundTrips(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	src := ip.Addr(10, 0, 2, 15)
	dst := ip.Addr(10, 0, 2, 2)
	Push(m, 1234, 80, 1000, 2000, SYN|ACK, Window, src, dst)

	h, ok := Decode(m)
	require.True(t, ok)
	require.Equal(t, uint16(1234), h.SrcPort)
	require.Equal(t, uint16(80), h.DstPort)
	require.Equal(t, uint32(1000), h.Seq)
	require.Equal(t, uint32(2000), h.Ack)
	require.Equal(t, SYN|ACK, h.Flags)
	require.Equal(t, HeaderLen, h.DataOffsetBytes)
}

func TestPushOmitsAckFieldWhenAckFlagUnset(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	Push(m, 1, 2, 5, 999, SYN, Window, 0, 0)
	h, ok := Decode(m)
	require.True(t, ok)
	require.Equal(t, uint32(0), h.Ack)
}
