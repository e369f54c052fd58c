// Package tcp implements TCP header encode/decode, the pseudo-header
// checksum, and the RFC 793 subset state machine from spec §4.12, grounded
// in original_source/net.h's struct tcp and net.c's tcp_send/tcp_rx.
package tcp

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
)

// HeaderLen is sizeof(struct tcp) with no options: 20 bytes.
const HeaderLen = 20

// Flag bits, per net.h.
type Flags byte

const (
	FIN Flags = 0x01
	SYN Flags = 0x02
	RST Flags = 0x04
	PSH Flags = 0x08
	ACK Flags = 0x10
	URG Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is a decoded TCP header.
type Header struct {
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	DataOffsetBytes  int
	Flags            Flags
	Window           uint16
}

// Decode reads a Header from the front of m without advancing it — tcp_rx
// leaves m->head at the TCP header and only pulls the data-offset bytes
// once it has decided a payload should be delivered.
func Decode(m *mbuf.Mbuf) (Header, bool) {
	d := m.Data()
	if len(d) < HeaderLen {
		return Header{}, false
	}
	return Header{
		SrcPort:         binary.BigEndian.Uint16(d[0:2]),
		DstPort:         binary.BigEndian.Uint16(d[2:4]),
		Seq:             binary.BigEndian.Uint32(d[4:8]),
		Ack:             binary.BigEndian.Uint32(d[8:12]),
		DataOffsetBytes: int(d[12]>>4) * 4,
		Flags:           Flags(d[13]),
		Window:          binary.BigEndian.Uint16(d[14:16]),
	}, true
}

// Push prepends a TCP header (no options, data offset fixed at
// HeaderLen/4 words) and fills in the pseudo-header checksum, mirroring
// tcp_send.
func Push(m *mbuf.Mbuf, srcPort, dstPort uint16, seq, ack uint32, flags Flags, window uint16, srcIP, dstIP uint32) {
	d := m.Push(HeaderLen)
	binary.BigEndian.PutUint16(d[0:2], srcPort)
	binary.BigEndian.PutUint16(d[2:4], dstPort)
	binary.BigEndian.PutUint32(d[4:8], seq)
	var a uint32
	if flags.Has(ACK) {
		a = ack
	}
	binary.BigEndian.PutUint32(d[8:12], a)
	d[12] = byte(HeaderLen/4) << 4
	d[13] = byte(flags)
	binary.BigEndian.PutUint16(d[14:16], window)
	binary.BigEndian.PutUint16(d[16:18], 0) // checksum, filled below
	binary.BigEndian.PutUint16(d[18:20], 0) // urgent pointer

	sum := pseudoChecksum(srcIP, dstIP, d)
	binary.BigEndian.PutUint16(d[16:18], sum)
}

// pseudoChecksum computes the Internet checksum over the IP pseudo-header
// (src, dst, zero, protocol, length) followed by the TCP header+payload,
// mirroring tcp_checksum exactly.
func pseudoChecksum(srcIP, dstIP uint32, tcpSeg []byte) uint16 {
	pseudo := make([]byte, 12+len(tcpSeg))
	binary.BigEndian.PutUint32(pseudo[0:4], srcIP)
	binary.BigEndian.PutUint32(pseudo[4:8], dstIP)
	pseudo[8] = 0
	pseudo[9] = 6 // IP_PROTO_TCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(tcpSeg)))
	copy(pseudo[12:], tcpSeg)
	return mbuf.Checksum(pseudo)
}
