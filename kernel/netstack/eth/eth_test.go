package eth

import (
	"testing"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
	"github.com/stretchr/testify/require"
)

func TestPushThenDecodeRoundTrips(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	m.CopyIn([]byte("payload"))
	src := Addr{1, 2, 3, 4, 5, 6}
	dst := Addr{6, 5, 4, 3, 2, 1}
	Push(m, dst, src, TypeIP)

	h, ok := Decode(m)
	require.True(t, ok)
	require.Equal(t, src, h.Src)
	require.Equal(t, dst, h.Dst)
	require.Equal(t, uint16(TypeIP), h.Type)
	require.Equal(t, "payload", string(m.Data()))
}

func TestDecodeARPRequestAndBuildReply(t *testing.T) {
	m := mbuf.Alloc(HeaderLen)
	d := m.Put(arpLen)
	sender := Addr{0xaa, 0, 0, 0, 0, 1}
	copy(d[8:14], sender[:])
	d[0], d[1] = 0, 1
	d[2], d[3] = 0x08, 0x00
	d[4], d[5] = AddrLen, 4
	d[6], d[7] = 0, opRequest
	d[14], d[15], d[16], d[17] = 10, 0, 0, 1 // sender IP
	d[24], d[25], d[26], d[27] = 10, 0, 0, 2 // target IP (us)
	Push(m, Broadcast, sender, TypeARP)

	reqEth, ok := Decode(m)
	require.True(t, ok)
	arp, ok := DecodeARP(m)
	require.True(t, ok)
	require.True(t, arp.IsRequest())

	myMAC := Addr{0x52, 0x54, 0, 0x12, 0x34, 0x56}
	reply := Reply(arp, reqEth, myMAC, 0x0a000002)
	h, ok := Decode(reply)
	require.True(t, ok)
	require.Equal(t, sender, h.Dst)
	require.Equal(t, myMAC, h.Src)

	replyArp, ok := DecodeARP(reply)
	require.True(t, ok)
	require.Equal(t, uint16(opReply), replyArp.Op)
	require.Equal(t, sender, replyArp.TargetMAC)
}
