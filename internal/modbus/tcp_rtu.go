package modbus

import (
	"fmt"
	"net"
	"time"
)

// therm-over-TCP idle windows: the rig's RTU-to-TCP bridges don't expose
// a line rate to derive 1.5/3.5-char timings from, so a fixed quiet
// window stands in for them — generous enough for any baud the bridge
// might be configured at, short enough not to stall a poll cycle.
const (
	tcpRTUFramePause = 10 * time.Millisecond
	tcpRTUBusIdle    = 20 * time.Millisecond
)

// OpenRTUOverTCP dials host:port and treats the resulting TCP stream as
// carrying RTU framing (address, function, payload, CRC16) rather than
// the standard Modbus-TCP MBAP header — this is the therm worker's wire
// format (spec §4.2, §6): "RTU framing tunneled in TCP", the common
// serial-to-Ethernet bridge behaviour. Shares the CRC framer/ticker
// pipeline with OpenRTU via frameBus; only the transport and its idle
// timings differ.
func OpenRTUOverTCP(addr string) (*Bus, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("modbus: dialing RTU-over-TCP endpoint %s: %w", addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
		_ = tcpConn.SetNoDelay(true)
	}

	fb := newFrameBus(addr, conn, tcpRTUFramePause, tcpRTUBusIdle)
	return newBus(fb.toTX, fb.toDemux, fb.close, fb.diag), nil
}
