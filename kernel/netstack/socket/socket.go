// Package socket implements spec §4.12's socket table: a small fixed
// array of UDP/raw/TCP-stream sockets, each behind a single-slot receive
// queue (or a TCP state machine for streams), grounded in
// original_source/net.c's `struct socket sockets[MAX_SOCKETS]` and its
// socket_init/udp_rx/tcp_rx/icmp_rx dispatch.
package socket

import (
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/klock"
	"github.com/gamer07340/xv6go/kernel/netstack/tcp"
)

// Type discriminates a socket's protocol, mirroring net.h's SOCK_* values.
type Type int

const (
	Dgram  Type = iota + 1 // UDP
	Stream                 // TCP
	Raw                    // raw IP (ICMP echo)
)

// MaxSockets mirrors net.c's fixed socket table size.
const MaxSockets = 16

// Socket is one table entry: addressing, a single-slot receive queue for
// UDP/raw, or a TCP connection state machine for streams.
type Socket struct {
	mu   klock.Spinlock
	notE *klock.WaitQueue

	used bool
	typ  Type

	localIP, remoteIP     uint32
	localPort, remotePort uint16

	rx []byte // single-slot receive queue (UDP/raw): a new datagram replaces any unread one

	tcp *tcp.Conn
}

// Table is the fixed-size socket table.
type Table struct {
	mu       klock.Spinlock
	sockets  [MaxSockets]*Socket
	nextPort uint16
}

func NewTable() *Table {
	return &Table{nextPort: 32768}
}

// Open installs a new socket of the given type.
func (t *Table) Open(typ Type) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sockets {
		if s == nil {
			ns := &Socket{used: true, typ: typ, notE: klock.NewWaitQueue()}
			if typ == Stream {
				ns.tcp = &tcp.Conn{}
			}
			t.sockets[i] = ns
			return ns, nil
		}
	}
	return nil, kerr.ErrNoSpace
}

// snapshot returns the currently installed sockets, for receive dispatch
// to scan without holding the table lock across each socket's own lock.
func (t *Table) snapshot() []*Socket {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Socket, 0, MaxSockets)
	for _, s := range t.sockets {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// IndexOf returns sock's slot index, mirroring sys_socket returning the
// global sockets[] array index directly as the socket descriptor.
func (t *Table) IndexOf(sock *Socket) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.sockets {
		if e == sock {
			return i
		}
	}
	return -1
}

// At returns the socket installed at slot i, the inverse of IndexOf —
// sys_socket's shims address sockets by the table index they got back from
// Open, exactly as sysnet.c indexes sockets[] by sockfd.
func (t *Table) At(i int) (*Socket, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= MaxSockets || t.sockets[i] == nil {
		return nil, kerr.ErrInval
	}
	return t.sockets[i], nil
}

// Close removes a socket from the table.
func (t *Table) Close(s *Socket) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, e := range t.sockets {
		if e == s {
			t.sockets[i] = nil
			return
		}
	}
}

// Bind assigns a local address. The port is stored as given, 0 included;
// a stream socket whose port is still 0 gets an ephemeral port from
// AllocEphemeral when it connects.
func (s *Socket) Bind(ip uint32, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localIP = ip
	s.localPort = port
}

// SetRemote records the destination address for a UDP or raw socket's
// subsequent sends, mirroring sys_connect's SOCK_DGRAM/raw branch: unlike a
// stream socket, this is a bare address store with no handshake.
func (s *Socket) SetRemote(ip uint32, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remoteIP = ip
	s.remotePort = port
}

// Remote returns the socket's currently recorded destination address.
func (s *Socket) Remote() (ip uint32, port uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteIP, s.remotePort
}

// LocalPort returns the socket's bound or auto-allocated local port.
func (s *Socket) LocalPort() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPort
}

// Kind reports the socket's protocol type.
func (s *Socket) Kind() Type {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typ
}

// AllocEphemeral assigns the next ephemeral local port when one hasn't
// been bound explicitly.
func (t *Table) AllocEphemeral() uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.nextPort
	t.nextPort++
	if t.nextPort == 0 {
		t.nextPort = 32768
	}
	return p
}

// deliver replaces the socket's single unread datagram with a fresh one,
// waking any blocked reader (udp_rx/icmp_rx's "if rxq, free; queue new").
func (s *Socket) deliver(data []byte, fromIP uint32, fromPort uint16) {
	s.mu.Lock()
	s.rx = data
	s.remoteIP = fromIP
	if fromPort != 0 {
		s.remotePort = fromPort
	}
	s.mu.Unlock()
	s.notE.Wake()
}

// TCPState reports a stream socket's current connection state.
func (s *Socket) TCPState() tcp.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcp.State
}

// Recv blocks until a datagram is queued, then returns and clears it.
func (s *Socket) Recv() []byte {
	s.mu.Lock()
	for s.rx == nil {
		s.notE.Sleep(s.mu.Locker())
	}
	data := s.rx
	s.rx = nil
	s.mu.Unlock()
	return data
}

// matchesDatagram reports whether this socket should receive a UDP
// datagram addressed to dport, mirroring udp_rx's match-by-local-port-only
// rule.
func (s *Socket) matchesDatagram(typ Type, dport uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used && s.typ == typ && s.localPort == dport
}

// matchesRaw mirrors icmp_rx's "any raw socket whose remote IP is zero or
// matches" rule.
func (s *Socket) matchesRaw(srcIP uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used && s.typ == Raw && (s.remoteIP == 0 || s.remoteIP == srcIP)
}

// matchesStream mirrors tcp_rx's three-way local-port/remote-port/
// remote-ip match (zero fields are wildcards).
func (s *Socket) matchesStream(dport, sport uint16, srcIP uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used && s.typ == Stream &&
		s.localPort == dport &&
		(s.remotePort == 0 || s.remotePort == sport) &&
		(s.remoteIP == 0 || s.remoteIP == srcIP)
}
