package ip

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
)

const (
	EchoReply   = 0
	EchoRequest = 8
)

// icmpHeaderLen is sizeof(struct icmp): type, code, checksum, id, seq.
const icmpHeaderLen = 8

// Echo is a decoded ICMP echo request/reply (type 0 or 8).
type Echo struct {
	Type byte
	Code byte
	ID   uint16
	Seq  uint16
	Data []byte
}

// DecodeEcho reads an ICMP echo message from the front of m, leaving m
// unconsumed (icmp_rx reads m->head in place, it never pulls).
func DecodeEcho(m *mbuf.Mbuf) (Echo, bool) {
	d := m.Data()
	if len(d) < icmpHeaderLen {
		return Echo{}, false
	}
	return Echo{
		Type: d[0],
		Code: d[1],
		ID:   binary.BigEndian.Uint16(d[4:6]),
		Seq:  binary.BigEndian.Uint16(d[6:8]),
		Data: d[icmpHeaderLen:],
	}, true
}

// IsEchoRequest reports whether the decoded message is an echo request.
func (e Echo) IsEchoRequest() bool { return e.Type == EchoRequest }

// IsEchoReply reports whether the decoded message is an echo reply.
func (e Echo) IsEchoReply() bool { return e.Type == EchoReply }

// BuildEcho lays out an ICMP echo message (request or reply) with a
// computed checksum into a fresh mbuf with the given Ethernet+IP headroom
// already reserved, mirroring icmp_send/icmp_rx's reply-construction block.
func BuildEcho(headroom int, typ byte, id, seq uint16, data []byte) *mbuf.Mbuf {
	m := mbuf.Alloc(headroom)
	d := m.Put(icmpHeaderLen + len(data))
	d[0] = typ
	d[1] = 0
	binary.BigEndian.PutUint16(d[2:4], 0)
	binary.BigEndian.PutUint16(d[4:6], id)
	binary.BigEndian.PutUint16(d[6:8], seq)
	copy(d[icmpHeaderLen:], data)
	sum := mbuf.Checksum(d)
	binary.BigEndian.PutUint16(d[2:4], sum)
	return m
}
