// Package udp implements UDP header encode/decode, grounded in
// original_source/net.h's struct udp and net.c's udp_rx/net_tx_udp.
package udp

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
)

// HeaderLen is sizeof(struct udp): sport, dport, len, sum.
const HeaderLen = 8

// Header is a decoded UDP header.
type Header struct {
	SrcPort, DstPort uint16
	Length           uint16
}

// Decode reads a Header from the front of m and advances m past it
// (mbufpull), mirroring udp_rx.
func Decode(m *mbuf.Mbuf) (Header, bool) {
	if m.Len() < HeaderLen {
		return Header{}, false
	}
	d := m.Data()
	h := Header{
		SrcPort: binary.BigEndian.Uint16(d[0:2]),
		DstPort: binary.BigEndian.Uint16(d[2:4]),
		Length:  binary.BigEndian.Uint16(d[4:6]),
	}
	m.Pull(HeaderLen)
	return h, true
}

// Push prepends a UDP header to m, mirroring net_tx_udp's header fill (the
// checksum field is left zero, same as the original — UDP checksums are
// optional over IPv4 and the original never computes one).
func Push(m *mbuf.Mbuf, srcPort, dstPort uint16, payloadLen int) {
	d := m.Push(HeaderLen)
	binary.BigEndian.PutUint16(d[0:2], srcPort)
	binary.BigEndian.PutUint16(d[2:4], dstPort)
	binary.BigEndian.PutUint16(d[4:6], uint16(HeaderLen+payloadLen))
	binary.BigEndian.PutUint16(d[6:8], 0)
}
