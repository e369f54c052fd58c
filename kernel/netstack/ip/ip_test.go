package ip

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
	"github.com/stretchr/testify/require"
)

func TestPushThenDecodeRoundTrips(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	m.CopyIn([]byte("udppayload"))
	src := Addr(10, 0, 2, 15)
	dst := Addr(10, 0, 2, 2)
	Push(m, src, dst, ProtoUDP, m.Len())

	h, ok := Decode(m)
	require.True(t, ok)
	require.Equal(t, src, h.Src)
	require.Equal(t, dst, h.Dst)
	require.Equal(t, byte(ProtoUDP), h.Proto)
	require.Equal(t, "udppayload", string(m.Data()))
}

func TestDecodeRejectsShortOrNonV4Header(t *testing.T) {
	m := mbuf.Alloc(0)
	m.CopyIn([]byte{0x01, 0x02, 0x03})
	_, ok := Decode(m)
	require.False(t, ok)

	hdr := make([]byte, HeaderLen)
	hdr[0] = 6<<4 | 5
	v6 := mbuf.Alloc(0)
	v6.CopyIn(hdr)
	_, ok = Decode(v6)
	require.False(t, ok)
}

func TestBuildEchoRequestThenDecode(t *testing.T) {
	m := BuildEcho(HeaderLen+20, EchoRequest, 42, 1, []byte("ping"))
	e, ok := DecodeEcho(m)
	require.True(t, ok)
	require.True(t, e.IsEchoRequest())
	require.Equal(t, uint16(42), e.ID)
	require.Equal(t, "ping", string(e.Data))
}
