package udp

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
	"github.com/stretchr/testify/require"
)

func TestPushThenDecodeRoundTrips(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	m.CopyIn([]byte("dgram"))
	Push(m, 5353, 53, m.Len())

	h, ok := Decode(m)
	require.True(t, ok)
	require.Equal(t, uint16(5353), h.SrcPort)
	require.Equal(t, uint16(53), h.DstPort)
	require.Equal(t, uint16(HeaderLen+5), h.Length)
	require.Equal(t, "dgram", string(m.Data()))
}
