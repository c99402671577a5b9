package modbus

import (
	"io"
	"time"
)

// frameBus is the CRC-framed RTU wire protocol shared by the serial and
// RTU-over-TCP transports (spec §4.2/§6: therm tunnels the same RTU frame
// format inside a TCP stream instead of a UART). Generalized out of the
// teacher's rtu.go so both transports share one reader/ticker/framer/
// writer pipeline and differ only in how bytes reach the wire and in
// their idle-window durations.
type frameBus struct {
	name string
	conn io.ReadWriteCloser

	closed chan struct{}

	rxchar chan byte
	rxtoc  chan struct{}
	rxto   chan struct{}

	pause time.Duration
	idle  time.Duration

	toTX    chan adu
	toDemux chan adu
	pending map[byte]uint16

	diag *diagnosticsManager
}

func newFrameBus(name string, conn io.ReadWriteCloser, pause, idle time.Duration) *frameBus {
	fb := &frameBus{
		name:    name,
		conn:    conn,
		closed:  make(chan struct{}),
		rxchar:  make(chan byte, 300),
		rxtoc:   make(chan struct{}),
		rxto:    make(chan struct{}),
		pause:   pause,
		idle:    idle,
		toTX:    make(chan adu, 5),
		toDemux: make(chan adu, 5),
		pending: make(map[byte]uint16),
		diag:    newDiagnosticsManager(),
	}
	go fb.wireReader()
	go fb.ticker()
	go fb.wireFramer()
	go fb.wireWriter()
	return fb
}

func (fb *frameBus) close() error {
	select {
	case <-fb.closed:
		return nil
	default:
		close(fb.closed)
		return fb.conn.Close()
	}
}

func (fb *frameBus) wireReader() {
	buf := make([]byte, 256)
	for {
		select {
		case <-fb.closed:
			return
		default:
		}
		n, err := fb.conn.Read(buf)
		if n > 0 {
			select {
			case fb.rxtoc <- struct{}{}:
			default:
			}
			for _, ch := range buf[:n] {
				fb.rxchar <- ch
			}
		}
		if err != nil && n == 0 {
			// A real connection error (EOF, reset) with nothing read:
			// the transport is gone, stop spinning. A serial read
			// timeout with n==0 and no error falls through and loops.
			return
		}
	}
}

// ticker tracks the idle windows that mark frame boundaries (pause) and
// bus-idle transmit-ready periods (idle).
func (fb *frameBus) ticker() {
	const (
		waitFrame = iota
		waitIdle
		isIdle
	)
	mode := waitIdle
	t := time.NewTimer(time.Second)
	for {
		t.Stop()
		switch mode {
		case waitFrame:
			t.Reset(fb.pause)
		case waitIdle:
			t.Reset(fb.idle)
		}
		select {
		case <-fb.closed:
			return
		case <-fb.rxtoc:
			mode = waitFrame
		case <-t.C:
			switch mode {
			case waitIdle:
				mode = isIdle
			case waitFrame:
				select {
				case fb.rxto <- struct{}{}:
				case <-fb.closed:
					return
				}
				mode = waitIdle
			}
		}
	}
}

func (fb *frameBus) wireFramer() {
	for {
		var data []byte
		for {
			select {
			case ch := <-fb.rxchar:
				if len(data) < 260 {
					data = append(data, ch)
				}
			case <-fb.rxto:
				fb.handleFrame(data)
				data = nil
			case <-fb.closed:
				return
			}
			if data == nil {
				break
			}
		}
	}
}

func (fb *frameBus) handleFrame(frame []byte) {
	if len(frame) < 4 {
		return
	}
	if len(frame) > 256 {
		fb.diag.overrun()
		return
	}
	xcrc := computeCRC16(frame[:len(frame)-2])
	gcrc := getWordLE(frame, len(frame)-2)
	if xcrc != gcrc {
		fb.diag.crcError()
		return
	}

	unit := frame[0]
	function := frame[1]
	payload := frame[2 : len(frame)-2]
	fb.diag.message()

	a := adu{request: false, unit: unit, pdu: pdu{function, payload}}
	if txid, ok := fb.pending[unit]; ok {
		a.txid = txid
		delete(fb.pending, unit)
	}
	fb.toDemux <- a
}

func (fb *frameBus) wireWriter() {
	for {
		select {
		case <-fb.closed:
			return
		case f := <-fb.toTX:
			fb.pending[f.unit] = f.txid
			frame := buildRTUFrame(f)
			for len(frame) > 0 {
				n, err := fb.conn.Write(frame)
				if err != nil {
					break
				}
				frame = frame[n:]
			}
		}
	}
}

func buildRTUFrame(f adu) []byte {
	size := len(f.pdu.data) + 4
	data := make([]byte, size)
	data[0] = f.unit
	data[1] = f.pdu.function
	copy(data[2:], f.pdu.data)
	crc := computeCRC16(data[:size-2])
	setWordLE(data, size-2, crc)
	return data
}
