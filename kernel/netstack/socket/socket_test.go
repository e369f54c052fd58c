package socket

import (
	"testing"
	"time"

	"github.com/gamer07340/xv6go/kernel/netstack/eth"
	"github.com/gamer07340/xv6go/kernel/netstack/ip"
	"github.com/gamer07340/xv6go/kernel/netstack/nic"
	"github.com/gamer07340/xv6go/kernel/netstack/tcp"
	"github.com/stretchr/testify/require"
)

func newLinkedStacks(t *testing.T) (*Stack, *Stack) {
	t.Helper()
	macA := eth.Addr{0x52, 0x54, 0, 0x12, 0x34, 0x56}
	macB := eth.Addr{0x52, 0x54, 0, 0x12, 0x34, 0x57}
	devA, devB := nic.NewPair(macA, macB)
	t.Cleanup(func() { devA.Close(); devB.Close() })

	ipA := ip.Addr(10, 0, 0, 1)
	ipB := ip.Addr(10, 0, 0, 2)
	sA := NewStack(devA, macA, ipA, NewTable())
	sB := NewStack(devB, macB, ipB, NewTable())
	sA.Start()
	sB.Start()
	return sA, sB
}

func TestUDPSendRecvAcrossStacks(t *testing.T) {
	a, b := newLinkedStacks(t)

	sockB, err := b.table.Open(Dgram)
	require.NoError(t, err)
	sockB.Bind(0, 9000)

	err = a.SendUDP(5000, b.ip, 9000, []byte("hello udp"))
	require.NoError(t, err)

	done := make(chan []byte, 1)
	go func() { done <- sockB.Recv() }()

	select {
	case data := <-done:
		require.Equal(t, "hello udp", string(data))
	case <-time.After(time.Second):
		t.Fatal("udp datagram never arrived")
	}
}

func TestTCPHandshakeAndDataTransferAcrossStacks(t *testing.T) {
	a, b := newLinkedStacks(t)

	server, err := b.table.Open(Stream)
	require.NoError(t, err)
	b.ListenTCP(server, 8080)

	client, err := a.table.Open(Stream)
	require.NoError(t, err)

	connectDone := make(chan error, 1)
	go func() { connectDone <- a.ConnectTCP(client, b.ip, 8080) }()

	select {
	case err := <-connectDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connect never completed")
	}

	require.Eventually(t, func() bool {
		return server.TCPState() == tcp.Established
	}, time.Second, 5*time.Millisecond)
}

func TestICMPEchoRequestGetsAutomaticReply(t *testing.T) {
	a, b := newLinkedStacks(t)
	_ = b // b answers a's echo request automatically via icmpRx

	sockA, err := a.table.Open(Raw)
	require.NoError(t, err)
	sockA.remoteIP = b.ip

	err = a.SendEcho(b.ip, 7, 1, []byte("ping"))
	require.NoError(t, err)

	done := make(chan []byte, 1)
	go func() { done <- sockA.Recv() }()

	select {
	case data := <-done:
		require.Equal(t, "ping", string(data))
	case <-time.After(time.Second):
		t.Fatal("echo reply never arrived")
	}
}
