package tcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func seqGen(start uint32) func() uint32 {
	n := start
	return func() uint32 { v := n; n++; return v }
}

func TestPassiveOpenHandshakeReachesEstablished(t *testing.T) {
	server := &Conn{NextISS: seqGen(1000)}
	server.Listen()

	act := server.Step(Header{Flags: SYN, Seq: 500}, nil)
	require.Equal(t, SynReceived, server.State)
	require.True(t, act.Send)
	require.Equal(t, SYN|ACK, act.SendFlags)
	require.Equal(t, uint32(501), server.RcvNxt)

	act = server.Step(Header{Flags: ACK, Ack: server.SndNxt}, nil)
	require.Equal(t, Established, server.State)
	require.False(t, act.Send)
}

func TestActiveOpenHandshakeReachesEstablished(t *testing.T) {
	client := &Conn{NextISS: seqGen(2000)}
	act := client.Connect()
	require.Equal(t, SynSent, client.State)
	require.Equal(t, SYN, act.SendFlags)

	act = client.Step(Header{Flags: SYN | ACK, Seq: 700, Ack: client.SndNxt}, nil)
	require.Equal(t, Established, client.State)
	require.Equal(t, ACK, act.SendFlags)
	require.Equal(t, uint32(701), client.RcvNxt)
}

func TestEstablishedDeliversInOrderData(t *testing.T) {
	c := &Conn{State: Established, RcvNxt: 100, NextISS: seqGen(1)}
	act := c.Step(Header{Flags: ACK, Seq: 100, Ack: 1}, []byte("hello"))
	require.Equal(t, []byte("hello"), act.Deliver)
	require.Equal(t, uint32(105), c.RcvNxt)
	require.True(t, act.Send)
	require.Equal(t, ACK, act.SendFlags)
}

func TestEstablishedIgnoresOutOfOrderData(t *testing.T) {
	c := &Conn{State: Established, RcvNxt: 100, NextISS: seqGen(1)}
	act := c.Step(Header{Flags: ACK, Seq: 999, Ack: 1}, []byte("stale"))
	require.Nil(t, act.Deliver)
	require.Equal(t, uint32(100), c.RcvNxt)
}

func TestActiveCloseFullSequence(t *testing.T) {
	c := &Conn{State: Established, SndNxt: 10, NextISS: seqGen(1)}
	act := c.ActiveClose()
	require.Equal(t, FinWait1, c.State)
	require.Equal(t, FIN|ACK, act.SendFlags)
	c.AdvanceOnSend(act.SendFlags, 0) // simulates the Stack sending the FIN segment
	require.Equal(t, uint32(11), c.SndNxt)

	act = c.Step(Header{Flags: FIN | ACK, Seq: 50}, nil)
	require.Equal(t, TimeWait, c.State)
	require.True(t, act.Send)

	act = c.Step(Header{}, nil)
	require.Equal(t, Closed, c.State)
}

func TestPassiveCloseFullSequence(t *testing.T) {
	c := &Conn{State: Established, NextISS: seqGen(1)}
	c.Step(Header{Flags: FIN, Seq: 200}, nil)
	require.Equal(t, CloseWait, c.State)

	act := c.PassiveClose()
	require.Equal(t, LastAck, c.State)
	require.Equal(t, FIN|ACK, act.SendFlags)

	act = c.Step(Header{Flags: ACK}, nil)
	require.Equal(t, Closed, c.State)
	require.False(t, act.Send)
}

func TestClosedRespondsRST(t *testing.T) {
	c := &Conn{State: Closed}
	act := c.Step(Header{Flags: ACK}, nil)
	require.True(t, act.Send)
	require.Equal(t, RST, act.SendFlags)
}
