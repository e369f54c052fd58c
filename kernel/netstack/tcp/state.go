package tcp

// State is one of the eleven RFC 793 connection states net.h enumerates
// (TCP_CLOSED .. TCP_TIME_WAIT).
type State int

const (
	Closed State = iota
	Listen
	SynSent
	SynReceived
	Established
	FinWait1
	FinWait2
	CloseWait
	Closing
	LastAck
	TimeWait
)

// Conn is one TCP connection's state-machine variables, named exactly as
// spec §4.12 and net.h's struct socket do: snd.una, snd.nxt, rcv.nxt, iss,
// irs, plus the connection state.
type Conn struct {
	State State

	SndUna uint32
	SndNxt uint32
	RcvNxt uint32
	ISS    uint32
	IRS    uint32

	// NextISS supplies a fresh initial send sequence number on the
	// LISTEN+SYN and active-open transitions, standing in for net.c's
	// global `tcp_seq` counter.
	NextISS func() uint32
}

// Window is the constant receive window spec §4.12 calls for ("advertised
// as a constant; no timers are run" — retransmission/windowing are
// explicit non-goals).
const Window = 8192

// Action describes what Step decided to do: an outbound segment to send,
// payload to hand to the application's receive queue, and/or a
// newly-reached terminal state.
type Action struct {
	Send      bool
	SendFlags Flags
	Deliver   []byte
}

// Connect begins an active open (SYN_SENT), mirroring a connect() call
// that has not yet received any reply.
func (c *Conn) Connect() Action {
	c.ISS = c.NextISS()
	c.SndNxt = c.ISS // AdvanceOnSend bumps this past ISS once the SYN is actually sent
	c.SndUna = c.ISS
	c.State = SynSent
	return Action{Send: true, SendFlags: SYN}
}

// Listen puts the connection into the passive-open state awaiting a SYN.
func (c *Conn) Listen() { c.State = Listen }

// Step advances the state machine on one received segment, implementing
// spec §4.12's transition table (and net.c's tcp_rx switch) verbatim.
func (c *Conn) Step(in Header, payload []byte) Action {
	switch c.State {
	case Closed:
		return Action{Send: true, SendFlags: RST}

	case Listen:
		if in.Flags.Has(SYN) {
			c.RcvNxt = in.Seq + 1
			c.IRS = in.Seq
			c.ISS = c.NextISS()
			c.SndNxt = c.ISS // AdvanceOnSend bumps this past ISS once the SYN|ACK is sent
			c.State = SynReceived
			return Action{Send: true, SendFlags: SYN | ACK}
		}

	case SynSent:
		if in.Flags.Has(SYN) && in.Flags.Has(ACK) {
			c.RcvNxt = in.Seq + 1
			c.IRS = in.Seq
			c.SndUna = in.Ack
			c.State = Established
			return Action{Send: true, SendFlags: ACK}
		}
		if in.Flags.Has(SYN) {
			c.RcvNxt = in.Seq + 1
			c.IRS = in.Seq
			c.State = SynReceived
			return Action{Send: true, SendFlags: ACK}
		}

	case SynReceived:
		if in.Flags.Has(ACK) {
			c.SndUna = in.Ack
			c.State = Established
		}

	case Established:
		if in.Flags.Has(FIN) {
			c.RcvNxt = in.Seq + 1
			c.State = CloseWait
			return Action{Send: true, SendFlags: ACK}
		}
		if in.Flags.Has(ACK) {
			c.SndUna = in.Ack
			if len(payload) > 0 && in.Seq == c.RcvNxt {
				c.RcvNxt += uint32(len(payload))
				return Action{Send: true, SendFlags: ACK, Deliver: payload}
			}
		}

	case FinWait1:
		if in.Flags.Has(FIN) {
			c.RcvNxt = in.Seq + 1
			if in.Flags.Has(ACK) {
				c.State = TimeWait
			} else {
				c.State = Closing
			}
			return Action{Send: true, SendFlags: ACK}
		}
		if in.Flags.Has(ACK) {
			c.State = FinWait2
		}

	case FinWait2:
		if in.Flags.Has(FIN) {
			c.RcvNxt = in.Seq + 1
			c.State = TimeWait
			return Action{Send: true, SendFlags: ACK}
		}

	case CloseWait:
		// Application must call Close; nothing to do on further input.

	case Closing:
		if in.Flags.Has(ACK) {
			c.State = TimeWait
		}

	case LastAck:
		if in.Flags.Has(ACK) {
			c.State = Closed
		}

	case TimeWait:
		// Spec's non-goal list excludes running a 2MSL timer; the
		// connection is reclaimed as soon as TimeWait is reached
		// (mirroring net.c's immediate sock->used = 0 in this state).
		c.State = Closed
	}
	return Action{}
}

// ActiveClose begins a graceful close from Established, sending FIN and
// moving to FIN_WAIT_1.
func (c *Conn) ActiveClose() Action {
	c.State = FinWait1
	return Action{Send: true, SendFlags: FIN | ACK}
}

// PassiveClose sends the application's own FIN from CLOSE_WAIT, moving to
// LAST_ACK.
func (c *Conn) PassiveClose() Action {
	c.State = LastAck
	return Action{Send: true, SendFlags: FIN | ACK}
}

// AdvanceOnSend updates snd.nxt for an outbound segment's flags/payload
// length, mirroring tcp_send's trailing "update sequence number" block:
// SYN and FIN each consume one sequence number, data consumes len(payload).
func (c *Conn) AdvanceOnSend(flags Flags, payloadLen int) {
	if flags.Has(SYN) {
		c.SndNxt++
	}
	if flags.Has(FIN) {
		c.SndNxt++
	}
	c.SndNxt += uint32(payloadLen)
}
