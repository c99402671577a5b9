package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Bus is a Modbus communication channel (serial or TCP) on top of which a
// Client addresses a single remote unit. Adapted from the teacher's
// `Modbus` interface, trimmed to client-only use: this rig never plays
// the server role.
type Bus struct {
	tx   chan adu
	txid uint16

	mu      sync.Mutex
	waiters map[uint16]chan adu

	closer func() error
	diag   *diagnosticsManager
}

// newBus wires a Bus on top of a transport's tx/rx channels. tx is where
// outgoing requests are written; rx is where the transport delivers
// decoded frames back.
func newBus(tx chan adu, rx <-chan adu, closer func() error, diag *diagnosticsManager) *Bus {
	b := &Bus{
		tx:      tx,
		waiters: make(map[uint16]chan adu),
		closer:  closer,
		diag:    diag,
	}
	go b.demux(rx)
	return b
}

// demux reads responses off the transport's rx channel and routes each to
// the client waiting on that transaction id; unsolicited frames (no
// waiter registered, e.g. a reply that arrived after its timeout) are
// dropped.
func (b *Bus) demux(rx <-chan adu) {
	for a := range rx {
		b.mu.Lock()
		ch, ok := b.waiters[a.txid]
		if ok {
			delete(b.waiters, a.txid)
		}
		b.mu.Unlock()
		if ok {
			ch <- a
		}
	}
}

func (b *Bus) registerWaiter(txid uint16, ch chan adu) {
	b.mu.Lock()
	b.waiters[txid] = ch
	b.mu.Unlock()
}

func (b *Bus) forgetWaiter(txid uint16) {
	b.mu.Lock()
	delete(b.waiters, txid)
	b.mu.Unlock()
}

// Close shuts down the underlying transport.
func (b *Bus) Close() error {
	return b.closer()
}

// Diagnostics returns a snapshot of the bus's wire-level counters.
func (b *Bus) Diagnostics() Diagnostics {
	return b.diag.Snapshot()
}

// Client drives a single remote unit over a Bus. Trimmed to the three
// holding-register operations the rig's workers issue (spec §4.2): no
// coils, discretes, inputs, files, or diagnostics function codes, since
// every device in this rig is read/written as holding registers.
type Client struct {
	unit byte
	bus  *Bus
}

// GetClient returns a Client addressing unitID on this Bus.
func (b *Bus) GetClient(unitID int) *Client {
	return &Client{unit: byte(unitID), bus: b}
}

var modbusExceptions = map[byte]string{
	1: "illegal function",
	2: "illegal data address",
	3: "illegal data value",
	4: "server device failure",
	5: "acknowledge",
	6: "server busy",
}

type decodeFunc func(*responseReader) error

// query sends tx and waits (up to tout) for the matching response,
// decoding it with decode. It is the single choke point every holding
// operation funnels through, mirroring the teacher's client.query.
func (c *Client) query(tout time.Duration, tx pdu, decode decodeFunc) error {
	c.bus.txid++
	txid := c.bus.txid
	waitCh := make(chan adu, 1)
	c.bus.registerWaiter(txid, waitCh)

	timer := time.NewTimer(tout)
	defer timer.Stop()

	select {
	case c.bus.tx <- adu{request: true, txid: txid, unit: c.unit, pdu: tx}:
	case <-timer.C:
		c.bus.forgetWaiter(txid)
		return fmt.Errorf("modbus: timeout exceeded waiting to send request to unit %d", c.unit)
	}

	select {
	case rx := <-waitCh:
		if rx.pdu.function >= 0x80 {
			code := byte(0)
			if len(rx.pdu.data) > 0 {
				code = rx.pdu.data[0]
			}
			if msg, ok := modbusExceptions[code]; ok {
				return errors.New("modbus: " + msg)
			}
			return fmt.Errorf("modbus: unknown exception code %d", code)
		}
		reader := newResponseReader(rx.pdu.data)
		if err := decode(&reader); err != nil {
			return err
		}
		return reader.remaining()
	case <-timer.C:
		c.bus.forgetWaiter(txid)
		return fmt.Errorf("modbus: timeout exceeded waiting for response from unit %d", c.unit)
	}
}
