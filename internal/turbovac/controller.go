package turbovac

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tarm/serial"
)

// setpointMax is the upper clamp on the setpoint command, in Hz (spec §4.3).
const setpointMax = 1000

// TurbineState is the live state of one turbovac, mutated as telegrams are
// encoded (commands) and decoded (received frames). Spec §4.1.
type TurbineState struct {
	Running       bool
	SetpointHz    uint16
	FreqHz        uint16
	FreqConvTempC uint8
	BearingTempC  uint8
	Voltage       uint16
}

// Controller drives one turbovac over a raw serial line. It owns the
// connection exclusively (spec §5: "global state ... instantiated per
// worker and owned exclusively by it"); callers never share a Controller
// across goroutines.
type Controller struct {
	name  string
	conn  io.ReadWriteCloser
	state TurbineState
}

// Open dials a turbovac over a serial line at 19200 8N1, the fixed rate
// the device requires (spec §4.3). name identifies the device in logs.
func Open(name, device string) (*Controller, error) {
	cfg := &serial.Config{Name: device, Baud: 19200, ReadTimeout: 2 * time.Second}
	port, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("turbovac: opening serial port %s: %w", device, err)
	}
	return &Controller{name: name, conn: port, state: TurbineState{SetpointHz: setpointMax}}, nil
}

// Close releases the underlying serial connection.
func (c *Controller) Close() error {
	return c.conn.Close()
}

// State returns a snapshot of the controller's current TurbineState.
func (c *Controller) State() TurbineState {
	return c.state
}

func (c *Controller) send(tele []byte) error {
	_, err := c.conn.Write(tele)
	if err != nil {
		return fmt.Errorf("turbovac[%s]: write: %w", c.name, err)
	}
	return nil
}

// recv reads one 24-byte reply frame, applying the device's 2s timeout
// (spec §5, suspension points). The serial config already carries the
// read deadline for each underlying read; io.ReadFull keeps reading until
// the fixed frame size is filled or a read fails.
func (c *Controller) recv() ([]byte, error) {
	buf := make([]byte, TelegramLength)
	n, err := io.ReadFull(c.conn, buf)
	if err != nil {
		return nil, fmt.Errorf("turbovac[%s]: read (%d bytes): %w", c.name, n, err)
	}
	return buf, nil
}

// apply decodes a reply frame into the controller's TurbineState. Per
// spec §4.3/§9 the checksum is not used to reject the frame; a mismatch
// is only logged.
func (c *Controller) apply(frame []byte) error {
	d, err := DecodeTelegram(frame)
	if err != nil {
		return err
	}
	if !d.ChecksumOK {
		logrus.WithField("device", c.name).Debug("turbovac: telegram checksum mismatch")
	}
	c.state.Running = d.Running
	if d.IsSetpoint {
		c.state.SetpointHz = d.Setpoint
	} else {
		c.state.FreqHz = d.Frequency
	}
	c.state.FreqConvTempC = d.FreqTemp
	c.state.BearingTempC = d.BearingTemp
	return nil
}

// exchange sends tele and applies whatever reply comes back.
func (c *Controller) exchange(tele []byte) error {
	if err := c.send(tele); err != nil {
		return err
	}
	frame, err := c.recv()
	if err != nil {
		return err
	}
	return c.apply(frame)
}

// Control sends a default-encoded telegram to request the control
// handshake (spec §4.3 "control" command).
func (c *Controller) Control() error {
	p := EncodeParams{StartBit: c.state.Running, PZD2: c.state.Running, EPD: true}
	if c.state.Running {
		p.Overrides = map[int]uint16{payloadOffset: c.state.SetpointHz}
	}
	return c.exchange(EncodeTelegram(p))
}

// Start issues start=1, PZD2=1 with the stored setpoint, and marks the
// turbine running (spec §4.3 "start" command).
func (c *Controller) Start() error {
	p := EncodeParams{StartBit: true, PZD2: true, EPD: true, Overrides: map[int]uint16{payloadOffset: c.state.SetpointHz}}
	if err := c.exchange(EncodeTelegram(p)); err != nil {
		return err
	}
	c.state.Running = true
	return nil
}

// Stop sends two telegrams 100ms apart: the first requests a zero
// setpoint with the process-data bit still enabled, the second disables
// process data entirely (epd=0). The first telegram's reply is read and
// discarded; a failed write or read there returns before the second
// telegram and leaves Running unchanged. Once the second telegram has been
// exchanged, the turbine is marked stopped whatever its outcome (spec §4.3
// "stop" command, §8 scenario 4).
func (c *Controller) Stop() error {
	first := EncodeTelegram(EncodeParams{StartBit: false, PZD2: false, EPD: true, Overrides: map[int]uint16{payloadOffset: 0}})
	if err := c.send(first); err != nil {
		return err
	}
	if _, err := c.recv(); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)

	second := EncodeTelegram(EncodeParams{StartBit: false, PZD2: false, EPD: false, Overrides: map[int]uint16{payloadOffset: 0}})
	err := c.exchange(second)
	c.state.Running = false
	return err
}

// Setpoint clamps value to [0,1000] Hz, sends a telegram carrying it, and
// updates the stored setpoint (spec §4.3 "setpoint N" command).
func (c *Controller) Setpoint(value int) error {
	if value < 0 {
		value = 0
	}
	if value > setpointMax {
		value = setpointMax
	}
	p := EncodeParams{StartBit: c.state.Running, PZD2: c.state.Running, EPD: true, Overrides: map[int]uint16{payloadOffset: uint16(value)}}
	if err := c.exchange(EncodeTelegram(p)); err != nil {
		return err
	}
	c.state.SetpointHz = uint16(value)
	return nil
}

// ReadTemp requests a temperature frame via the override bytes the device
// expects ([3]=0x10,[4]=0x01), carrying the current setpoint if running
// (spec §4.3 "read_temp" command).
func (c *Controller) ReadTemp() error {
	overrides := map[int]uint16{3: 0x1001}
	if c.state.Running {
		overrides[payloadOffset] = c.state.SetpointHz
	}
	p := EncodeParams{StartBit: c.state.Running, PZD2: c.state.Running, EPD: true, Overrides: overrides}
	return c.exchange(EncodeTelegram(p))
}
