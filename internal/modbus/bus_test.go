package modbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newLoopbackBus wires a Bus directly to a fake "device" goroutine that
// answers Read/Write Holding requests, bypassing any real transport. This
// exercises the query/demux machinery shared by both real transports.
func newLoopbackBus(t *testing.T, respond func(adu) adu) *Bus {
	t.Helper()
	transportTX := make(chan adu)
	transportRX := make(chan adu)
	closed := make(chan struct{})

	go func() {
		for {
			select {
			case req := <-transportTX:
				transportRX <- respond(req)
			case <-closed:
				return
			}
		}
	}()

	closer := func() error {
		close(closed)
		return nil
	}
	return newBus(transportTX, transportRX, closer, newDiagnosticsManager())
}

func TestClientReadHoldings(t *testing.T) {
	bus := newLoopbackBus(t, func(req adu) adu {
		b := requestBuilder{}
		b.byte(4)
		b.words(100, 200)
		return adu{txid: req.txid, unit: req.unit, pdu: pdu{function: req.pdu.function, data: b.data}}
	})
	defer bus.Close()

	client := bus.GetClient(1)
	got, err := client.ReadHoldings(0, 2, time.Second)
	require.NoError(t, err)
	require.Equal(t, []int{100, 200}, got)
}

func TestClientWriteSingleHolding(t *testing.T) {
	bus := newLoopbackBus(t, func(req adu) adu {
		return adu{txid: req.txid, unit: req.unit, pdu: pdu{function: req.pdu.function, data: req.pdu.data}}
	})
	defer bus.Close()

	client := bus.GetClient(5)
	err := client.WriteSingleHolding(10, 999, time.Second)
	require.NoError(t, err)
}

func TestClientQueryTimesOutWithNoResponse(t *testing.T) {
	transportTX := make(chan adu)
	transportRX := make(chan adu)
	bus := newBus(transportTX, transportRX, func() error { return nil }, newDiagnosticsManager())

	client := bus.GetClient(1)
	_, err := client.ReadHoldings(0, 1, 20*time.Millisecond)
	require.Error(t, err)
}

func TestClientExceptionResponse(t *testing.T) {
	bus := newLoopbackBus(t, func(req adu) adu {
		return adu{txid: req.txid, unit: req.unit, pdu: pdu{function: req.pdu.function | 0x80, data: []byte{0x02}}}
	})
	defer bus.Close()

	client := bus.GetClient(1)
	_, err := client.ReadHoldings(0, 1, time.Second)
	require.Error(t, err)
	require.Contains(t, err.Error(), "illegal data address")
}
