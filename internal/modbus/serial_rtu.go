package modbus

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// OpenRTU opens a Modbus RTU connection over a serial line (the box bus
// handle, spec §2/§6; the turbovac lines are opened by turbovac.Open). parity is one of 'N', 'E', 'O'; stopBits
// is 1 or 2. Adapted from the teacher's rtu.go, driving
// github.com/tarm/serial instead of the teacher's bespoke serial package,
// and sharing its reader/ticker/framer/writer pipeline with the
// RTU-over-TCP transport via frameBus.
func OpenRTU(device string, baud int, parity byte, stopBits int) (*Bus, error) {
	cfg := &serial.Config{Name: device, Baud: baud, ReadTimeout: time.Millisecond}
	switch parity {
	case 'N':
		cfg.Parity = serial.ParityNone
	case 'E':
		cfg.Parity = serial.ParityEven
	case 'O':
		cfg.Parity = serial.ParityOdd
	default:
		return nil, fmt.Errorf("modbus: illegal parity %q", parity)
	}
	switch stopBits {
	case 1:
		cfg.StopBits = serial.Stop1
	case 2:
		cfg.StopBits = serial.Stop2
	default:
		return nil, fmt.Errorf("modbus: illegal stop bits %d", stopBits)
	}

	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("modbus: opening serial port %s: %w", device, err)
	}

	pause, idle := rtuTimings(baud, stopBits, parity)
	fb := newFrameBus(device, port, pause, idle)
	return newBus(fb.toTX, fb.toDemux, fb.close, fb.diag), nil
}

// rtuTimings computes the Modbus-spec 1.5-char frame-end pause and
// 3.5-char bus-idle window for a given line rate (spec §4.2/§6).
func rtuTimings(baud, stopBits int, parity byte) (pause, idle time.Duration) {
	bitsPerChar := 8 + stopBits
	if parity != 'N' {
		bitsPerChar++
	}
	halfChar := time.Duration(float64(bitsPerChar) / float64(baud) * float64(time.Second) / 2)
	pause = 3 * halfChar
	idle = 7 * halfChar
	if pause < time.Millisecond {
		pause = time.Millisecond
	}
	if idle < 2*time.Millisecond {
		idle = 2 * time.Millisecond
	}
	return
}
