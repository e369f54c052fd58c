// Package ip implements IPv4 header encode/decode, the ones-complement
// checksum, and ICMP echo request/reply handling, grounded in
// original_source/net.h's struct ip/struct icmp and net.c's ip_rx/icmp_rx.
package ip

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
)

// HeaderLen is sizeof(struct ip) with IHL=5 (no options): 20 bytes.
const HeaderLen = 20

const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// Header is a decoded (version-4, no-options) IPv4 header.
type Header struct {
	TOS      byte
	TotalLen uint16
	ID       uint16
	TTL      byte
	Proto    byte
	Checksum uint16
	Src, Dst uint32
}

// Decode reads a Header from the front of m and advances m past it
// (mbufpull), mirroring ip_rx. Returns false if m is short or the version
// field isn't 4.
func Decode(m *mbuf.Mbuf) (Header, bool) {
	if m.Len() < HeaderLen {
		return Header{}, false
	}
	d := m.Data()
	if d[0]>>4 != 4 {
		return Header{}, false
	}
	h := Header{
		TOS:      d[1],
		TotalLen: binary.BigEndian.Uint16(d[2:4]),
		ID:       binary.BigEndian.Uint16(d[4:6]),
		TTL:      d[8],
		Proto:    d[9],
		Checksum: binary.BigEndian.Uint16(d[10:12]),
		Src:      binary.BigEndian.Uint32(d[12:16]),
		Dst:      binary.BigEndian.Uint32(d[16:20]),
	}
	m.Pull(HeaderLen)
	return h, true
}

// Push prepends a version-4, IHL-5 header with a freshly computed checksum
// to m, mirroring every *_send function's "fill IP header" block. payload
// is the already-inserted transport length (so TotalLen = HeaderLen+len).
func Push(m *mbuf.Mbuf, src, dst uint32, proto byte, payloadLen int) {
	d := m.Push(HeaderLen)
	d[0] = 4<<4 | 5
	d[1] = 0
	binary.BigEndian.PutUint16(d[2:4], uint16(HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(d[4:6], 0)
	binary.BigEndian.PutUint16(d[6:8], 0)
	d[8] = 64
	d[9] = proto
	binary.BigEndian.PutUint16(d[10:12], 0)
	binary.BigEndian.PutUint32(d[12:16], src)
	binary.BigEndian.PutUint32(d[16:20], dst)
	sum := mbuf.Checksum(d)
	binary.BigEndian.PutUint16(d[10:12], sum)
}

// Addr builds a big-endian IPv4 address from four octets, e.g. for
// 10.0.2.15: Addr(10,0,2,15).
func Addr(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}
