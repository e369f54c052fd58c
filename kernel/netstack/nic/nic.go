// Package nic simulates the E1000-family ring-descriptor driver spec §4.14
// describes, operating over a process-local virtual Ethernet bus
// (net.Pipe) instead of real PCI MMIO, since bit-exact register
// programming is explicitly out of scope (spec §1). The descriptor-count,
// tail-advance, and Descriptor-Done-bit polling contract from
// original_source/e1000.c/e1000.h is preserved.
package nic

import (
	"context"
	"net"
	"sync"

	"github.com/containerd/log"
)

// RingSize is the fixed descriptor count e1000_init allocates for both the
// TX and RX rings.
const RingSize = 16

// descriptor mirrors a struct rx_desc/tx_desc: a status bit set once the
// hardware (here, the bus goroutine) has finished with the slot.
type descriptor struct {
	buf  []byte
	done bool
}

// Device is one simulated NIC: fixed TX/RX rings, a bus connection standing
// in for the wire, and the driver lock e1000_transmit acquires before
// touching the TX tail.
type Device struct {
	mu sync.Mutex

	mac  [6]byte
	conn net.Conn

	tx    [RingSize]descriptor
	txTDT int // transmit tail

	rx    [RingSize]descriptor
	rxRDT int // receive tail (next free slot the hardware may fill)

	rxHandler func([]byte)
	closed    bool
}

// NewPair creates two Devices joined by an in-process net.Pipe, standing in
// for a bridged development network link between this NIC and a peer (a
// test harness, or a second simulated host).
func NewPair(macA, macB [6]byte) (a, b *Device) {
	ca, cb := net.Pipe()
	a = newDevice(macA, ca)
	b = newDevice(macB, cb)
	return a, b
}

func newDevice(mac [6]byte, conn net.Conn) *Device {
	return &Device{mac: mac, conn: conn}
}

// MAC returns the device's link-layer address.
func (d *Device) MAC() [6]byte { return d.mac }

// Start enables RX: enumerate-and-enable is where e1000_init would program
// RDBAL/RDLEN and unmask the receive-timer interrupt; here it just starts
// the goroutine that stands in for that interrupt, handing each completed
// frame to handler exactly as the RX-interrupt handler hands buffers to
// net_rx.
func (d *Device) Start(handler func(frame []byte)) {
	d.mu.Lock()
	d.rxHandler = handler
	d.mu.Unlock()
	go d.recvLoop()
}

func (d *Device) recvLoop() {
	buf := make([]byte, 2048)
	for {
		n, err := d.conn.Read(buf)
		if err != nil {
			return
		}
		frame := append([]byte(nil), buf[:n]...)
		d.mu.Lock()
		closed := d.closed
		handler := d.rxHandler
		slot := d.rxRDT
		d.rx[slot] = descriptor{buf: frame, done: true}
		d.rxRDT = (d.rxRDT + 1) % RingSize
		d.mu.Unlock()
		if closed {
			return
		}
		if handler != nil {
			handler(frame)
		}
	}
}

// Transmit populates the tail TX descriptor and advances TDT, mirroring
// e1000_transmit: "if the tail descriptor still owns an un-completed
// packet, drop; otherwise populate and advance." Since this simulation's
// bus write completes synchronously, a descriptor is never found busy in
// practice, but the check and drop-on-busy path are preserved for fidelity.
func (d *Device) Transmit(frame []byte) error {
	d.mu.Lock()
	if !d.tx[d.txTDT].done && d.tx[d.txTDT].buf != nil {
		d.mu.Unlock()
		log.G(context.Background()).Warn("nic: tx descriptor busy, dropping frame")
		return nil
	}
	d.tx[d.txTDT] = descriptor{buf: frame, done: false}
	tail := d.txTDT
	d.txTDT = (d.txTDT + 1) % RingSize
	d.mu.Unlock()

	_, err := d.conn.Write(frame)

	d.mu.Lock()
	d.tx[tail].done = true
	d.mu.Unlock()
	return err
}

// Close tears down the bus connection.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return d.conn.Close()
}
