// Package eth implements the Ethernet and ARP layer: frame
// encode/decode and ARP request/reply handling, grounded in
// original_source/net.h's struct eth/struct arp and net.c's arp_rx.
package eth

import (
	"encoding/binary"

	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
)

// AddrLen is ETHADDR_LEN.
const AddrLen = 6

// HeaderLen is sizeof(struct eth): 6+6+2 bytes, no padding.
const HeaderLen = 2*AddrLen + 2

const (
	TypeIP  = 0x0800
	TypeARP = 0x0806
)

// Addr is a 6-byte MAC address.
type Addr [AddrLen]byte

var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Header is a decoded Ethernet header.
type Header struct {
	Dst, Src Addr
	Type     uint16
}

// Decode reads a Header from the front of m and advances m past it
// (mbufpull), mirroring net_rx's ethhdr handling.
func Decode(m *mbuf.Mbuf) (Header, bool) {
	if m.Len() < HeaderLen {
		return Header{}, false
	}
	d := m.Data()
	var h Header
	copy(h.Dst[:], d[0:6])
	copy(h.Src[:], d[6:12])
	h.Type = binary.BigEndian.Uint16(d[12:14])
	m.Pull(HeaderLen)
	return h, true
}

// Push prepends an Ethernet header to m (mbufpush), mirroring every
// *_send function's "fill eth header" step.
func Push(m *mbuf.Mbuf, dst, src Addr, typ uint16) {
	d := m.Push(HeaderLen)
	copy(d[0:6], dst[:])
	copy(d[6:12], src[:])
	binary.BigEndian.PutUint16(d[12:14], typ)
}

const (
	hrdEther   = 1
	arpProtoIP = 0x0800
	opRequest  = 1
	opReply    = 2
)

// arpLen is sizeof(struct arp): 2+2+1+1+2+6+4+6+4.
const arpLen = 28

// ARP is a decoded ARP packet.
type ARP struct {
	Op        uint16
	SenderMAC Addr
	SenderIP  uint32
	TargetMAC Addr
	TargetIP  uint32
}

// DecodeARP reads an ARP packet from m without consuming it (the caller
// has already stripped the Ethernet header via Decode).
func DecodeARP(m *mbuf.Mbuf) (ARP, bool) {
	if m.Len() < arpLen {
		return ARP{}, false
	}
	d := m.Data()
	if binary.BigEndian.Uint16(d[0:2]) != hrdEther ||
		binary.BigEndian.Uint16(d[2:4]) != arpProtoIP ||
		d[4] != AddrLen || d[5] != 4 {
		return ARP{}, false
	}
	var a ARP
	a.Op = binary.BigEndian.Uint16(d[6:8])
	copy(a.SenderMAC[:], d[8:14])
	a.SenderIP = binary.BigEndian.Uint32(d[14:18])
	copy(a.TargetMAC[:], d[18:24])
	a.TargetIP = binary.BigEndian.Uint32(d[24:28])
	return a, true
}

// IsRequest reports whether a decoded ARP packet is a request.
func (a ARP) IsRequest() bool { return a.Op == opRequest }

// Reply builds a fresh Ethernet+ARP reply mbuf swapping sender/target,
// mirroring arp_rx's reply-construction block exactly.
func Reply(req ARP, reqEth Header, myMAC Addr, myIP uint32) *mbuf.Mbuf {
	m := mbuf.Alloc(HeaderLen + arpLen)
	d := m.Put(arpLen)
	binary.BigEndian.PutUint16(d[0:2], hrdEther)
	binary.BigEndian.PutUint16(d[2:4], arpProtoIP)
	d[4] = AddrLen
	d[5] = 4
	binary.BigEndian.PutUint16(d[6:8], opReply)
	copy(d[8:14], myMAC[:])
	binary.BigEndian.PutUint32(d[14:18], req.TargetIP) // we are the target
	copy(d[18:24], req.SenderMAC[:])
	binary.BigEndian.PutUint32(d[24:28], req.SenderIP)
	Push(m, reqEth.Src, myMAC, TypeARP)
	return m
}
