package socket

import (
	"context"
	"sync"
	"time"

	"github.com/containerd/log"
	"github.com/gamer07340/xv6go/kernel/kerr"
	"github.com/gamer07340/xv6go/kernel/netstack/eth"
	"github.com/gamer07340/xv6go/kernel/netstack/ip"
	"github.com/gamer07340/xv6go/kernel/netstack/mbuf"
	"github.com/gamer07340/xv6go/kernel/netstack/nic"
	"github.com/gamer07340/xv6go/kernel/netstack/tcp"
	"github.com/gamer07340/xv6go/kernel/netstack/udp"
)

// connectSpinBound is the "bounded spin" spec §4.12 calls for instead of
// sleeping on a socket wait channel (an implementation may choose either;
// this one polls, since ConnectTCP's caller is not running inside the
// kernel's own scheduler and has no wait-channel to sleep on).
const connectSpinBound = 2000

var errConnectTimedOut = kerr.ErrState

// Stack is one simulated host's network stack: a NIC, an ARP table, this
// host's identity, and the socket table that UDP/raw/TCP receive dispatch
// delivers into. It is the user-space counterpart of net.c's free
// functions (net_rx/ip_rx/arp_rx/icmp_rx/udp_rx/tcp_rx), all of which that
// file implements as package-level state touching one global socket table.
type Stack struct {
	mu  sync.Mutex
	mac eth.Addr
	ip  uint32
	dev *nic.Device
	arp map[uint32]eth.Addr

	table  *Table
	tcpSeq uint32 // stands in for net.c's global tcp_seq counter
}

// NewStack binds a stack to a device, address, and socket table.
func NewStack(dev *nic.Device, mac eth.Addr, ipAddr uint32, table *Table) *Stack {
	return &Stack{mac: mac, ip: ipAddr, dev: dev, arp: make(map[uint32]eth.Addr), table: table, tcpSeq: 1000}
}

// Start begins receiving frames from the device, dispatching each through
// the Ethernet/ARP/IP layers exactly as net_rx does.
func (s *Stack) Start() {
	s.dev.Start(s.receiveFrame)
}

// Table returns the socket table this stack delivers into, for callers
// (the syscall dispatcher) that need to open/close sockets by table index
// the way sys_socket/sys_close_socket address sockets[] directly.
func (s *Stack) Table() *Table { return s.table }

func (s *Stack) nextISS() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.tcpSeq
	s.tcpSeq++
	return v
}

// receiveFrame is net_rx: Ethernet demux into IPv4 or ARP.
func (s *Stack) receiveFrame(frame []byte) {
	m := mbuf.FromBytes(frame)
	h, ok := eth.Decode(m)
	if !ok {
		return
	}
	switch h.Type {
	case eth.TypeIP:
		s.ipRx(m)
	case eth.TypeARP:
		s.arpRx(m, h)
	}
}

// arpRx records the sender of every ARP request in the ARP table and
// answers requests targeted at this stack's address, mirroring arp_rx.
// This stack never issues its own ARP requests: transmit uses a learned
// entry when peerMAC has one and the broadcast destination otherwise.
func (s *Stack) arpRx(m *mbuf.Mbuf, h eth.Header) {
	a, ok := eth.DecodeARP(m)
	if !ok || !a.IsRequest() {
		return
	}
	s.mu.Lock()
	s.arp[a.SenderIP] = a.SenderMAC
	s.mu.Unlock()
	if a.TargetIP != s.ip {
		return
	}
	reply := eth.Reply(a, h, s.mac, s.ip)
	if err := s.dev.Transmit(reply.Data()); err != nil {
		log.G(context.Background()).WithError(err).Warn("netstack: arp reply transmit failed")
	}
}

// ipRx is ip_rx: validate, strip the header, and dispatch on protocol.
func (s *Stack) ipRx(m *mbuf.Mbuf) {
	h, ok := ip.Decode(m)
	if !ok {
		return
	}
	switch h.Proto {
	case ip.ProtoICMP:
		s.icmpRx(m, h)
	case ip.ProtoUDP:
		s.udpRx(m, h)
	case ip.ProtoTCP:
		s.tcpRx(m, h)
	}
}

// icmpRx is icmp_rx: deliver echo replies to a matching raw socket, answer
// echo requests directly.
func (s *Stack) icmpRx(m *mbuf.Mbuf, iph ip.Header) {
	e, ok := ip.DecodeEcho(m)
	if !ok {
		return
	}
	if e.IsEchoReply() {
		for _, sock := range s.table.snapshot() {
			if sock.matchesRaw(iph.Src) {
				sock.deliver(append([]byte(nil), e.Data...), iph.Src, 0)
				return
			}
		}
		return
	}
	if e.IsEchoRequest() {
		reply := ip.BuildEcho(eth.HeaderLen+ip.HeaderLen, ip.EchoReply, e.ID, e.Seq, e.Data)
		ip.Push(reply, iph.Dst, iph.Src, ip.ProtoICMP, reply.Len())
		eth.Push(reply, s.peerMAC(iph.Src), s.mac, eth.TypeIP)
		if err := s.dev.Transmit(reply.Data()); err != nil {
			log.G(context.Background()).WithError(err).Warn("netstack: icmp echo reply transmit failed")
		}
	}
}

// udpRx is udp_rx: demux by destination port, replacing any unread
// datagram queued on the matching socket.
func (s *Stack) udpRx(m *mbuf.Mbuf, iph ip.Header) {
	h, ok := udp.Decode(m)
	if !ok {
		return
	}
	for _, sock := range s.table.snapshot() {
		if sock.matchesDatagram(Dgram, h.DstPort) {
			sock.deliver(append([]byte(nil), m.Data()...), iph.Src, h.SrcPort)
			return
		}
	}
}

// tcpRx is tcp_rx: find the matching stream socket and step its state
// machine, sending whatever reply Step/AdvanceOnSend decide on.
func (s *Stack) tcpRx(m *mbuf.Mbuf, iph ip.Header) {
	h, ok := tcp.Decode(m)
	if !ok {
		return
	}
	for _, sock := range s.table.snapshot() {
		if !sock.matchesStream(h.DstPort, h.SrcPort, iph.Src) {
			continue
		}
		sock.mu.Lock()
		if sock.remoteIP == 0 {
			sock.remoteIP = iph.Src
			sock.remotePort = h.SrcPort
		}
		if sock.tcp.NextISS == nil {
			sock.tcp.NextISS = s.nextISS
		}
		var payload []byte
		if len(m.Data()) > h.DataOffsetBytes {
			payload = append([]byte(nil), m.Data()[h.DataOffsetBytes:]...)
		}
		act := sock.tcp.Step(h, payload)
		srcIP, dstIP := s.ip, sock.remoteIP
		localPort, remotePort := sock.localPort, sock.remotePort
		conn := sock.tcp
		sock.mu.Unlock()

		if len(act.Deliver) > 0 {
			sock.deliver(act.Deliver, iph.Src, h.SrcPort)
		}
		if act.Send {
			s.sendSegment(conn, localPort, remotePort, srcIP, dstIP, act.SendFlags, nil)
		}
		return
	}
}

// peerMAC resolves an IP to a MAC via the ARP table learned from incoming
// requests, falling back to broadcast (ARP resolution for outbound-only
// transmit is a non-goal per spec §4.13).
func (s *Stack) peerMAC(ipAddr uint32) eth.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mac, ok := s.arp[ipAddr]; ok {
		return mac
	}
	return eth.Broadcast
}

// sendSegment builds and transmits one TCP segment, advancing the
// connection's snd.nxt exactly as tcp_send's trailing block does.
func (s *Stack) sendSegment(c *tcp.Conn, localPort, remotePort uint16, srcIP, dstIP uint32, flags tcp.Flags, payload []byte) {
	m := mbuf.Alloc(eth.HeaderLen + ip.HeaderLen + tcp.HeaderLen)
	m.CopyIn(payload)

	seq := c.SndNxt // captured before AdvanceOnSend, mirroring tcp_send's ordering
	tcp.Push(m, localPort, remotePort, seq, c.RcvNxt, flags, tcp.Window, srcIP, dstIP)
	c.AdvanceOnSend(flags, len(payload))
	ip.Push(m, srcIP, dstIP, ip.ProtoTCP, m.Len())
	eth.Push(m, s.peerMAC(dstIP), s.mac, eth.TypeIP)
	if err := s.dev.Transmit(m.Data()); err != nil {
		log.G(context.Background()).WithError(err).Warn("netstack: tcp segment transmit failed")
	}
}

// SendUDP builds and transmits a UDP datagram, mirroring net_tx_udp.
func (s *Stack) SendUDP(localPort uint16, dstIP uint32, dstPort uint16, payload []byte) error {
	m := mbuf.Alloc(eth.HeaderLen + ip.HeaderLen + udp.HeaderLen)
	m.CopyIn(payload)
	udp.Push(m, localPort, dstPort, len(payload))
	ip.Push(m, s.ip, dstIP, ip.ProtoUDP, m.Len())
	eth.Push(m, s.peerMAC(dstIP), s.mac, eth.TypeIP)
	return s.dev.Transmit(m.Data())
}

// SendEcho transmits an ICMP echo request, mirroring icmp_send.
func (s *Stack) SendEcho(dstIP uint32, id, seq uint16, data []byte) error {
	m := ip.BuildEcho(eth.HeaderLen+ip.HeaderLen, ip.EchoRequest, id, seq, data)
	ip.Push(m, s.ip, dstIP, ip.ProtoICMP, m.Len())
	eth.Push(m, s.peerMAC(dstIP), s.mac, eth.TypeIP)
	return s.dev.Transmit(m.Data())
}

// ConnectTCP performs an active open: bind an ephemeral local port if
// needed, send SYN, and busy-wait (spec §4.12: "busy-waits on the state
// field becoming ESTABLISHED within a bounded spin") for the handshake to
// complete via received segments processed on the Stack's own receive
// goroutine.
func (s *Stack) ConnectTCP(sock *Socket, dstIP uint32, dstPort uint16) error {
	sock.mu.Lock()
	if sock.localPort == 0 {
		sock.localPort = s.table.AllocEphemeral()
	}
	sock.remoteIP = dstIP
	sock.remotePort = dstPort
	sock.tcp.NextISS = s.nextISS
	act := sock.tcp.Connect()
	localPort := sock.localPort
	conn := sock.tcp
	sock.mu.Unlock()

	s.sendSegment(conn, localPort, dstPort, s.ip, dstIP, act.SendFlags, nil)
	return spinUntilEstablished(sock)
}

// spinUntilEstablished busy-waits for a connecting socket to reach
// ESTABLISHED (or fail back to CLOSED on RST), per spec §4.12's described
// contract.
func spinUntilEstablished(sock *Socket) error {
	for i := 0; i < connectSpinBound; i++ {
		switch sock.TCPState() {
		case tcp.Established:
			return nil
		case tcp.Closed:
			return errConnectTimedOut
		}
		time.Sleep(time.Millisecond)
	}
	return errConnectTimedOut
}

// SendStream transmits data over an established stream socket, mirroring
// sys_send's SOCK_STREAM case (tcp_send with ACK|PSH).
func (s *Stack) SendStream(sock *Socket, payload []byte) error {
	sock.mu.Lock()
	if sock.tcp.State != tcp.Established {
		sock.mu.Unlock()
		return kerr.ErrState
	}
	localPort, remotePort, remoteIP := sock.localPort, sock.remotePort, sock.remoteIP
	conn := sock.tcp
	sock.mu.Unlock()
	s.sendSegment(conn, localPort, remotePort, s.ip, remoteIP, tcp.ACK|tcp.PSH, payload)
	return nil
}

// CloseStream actively closes an established stream socket's connection,
// sending FIN|ACK per the ACTIVE CLOSE transition of spec §4.12's table.
func (s *Stack) CloseStream(sock *Socket) {
	sock.mu.Lock()
	if sock.tcp.State != tcp.Established {
		sock.mu.Unlock()
		return
	}
	act := sock.tcp.ActiveClose()
	localPort, remotePort, remoteIP := sock.localPort, sock.remotePort, sock.remoteIP
	conn := sock.tcp
	sock.mu.Unlock()
	s.sendSegment(conn, localPort, remotePort, s.ip, remoteIP, act.SendFlags, nil)
}

// ListenTCP puts a bound socket into LISTEN.
func (s *Stack) ListenTCP(sock *Socket, localPort uint16) {
	sock.mu.Lock()
	sock.localPort = localPort
	sock.tcp.NextISS = s.nextISS
	sock.tcp.Listen()
	sock.mu.Unlock()
}
