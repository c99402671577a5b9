package worker

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cryorig/refrigctl/internal/convert"
	"github.com/cryorig/refrigctl/internal/modbus"
	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// registerCodec abstracts the box worker's byte-reversed IEEE-754 layout
// and the therm worker's straight-word fixed-point ×100 layout (spec
// §4.2) behind a single pair of functions so modbusDriver needs no
// per-bus special-casing beyond which codec it was built with.
type registerCodec struct {
	decode func(reg0, reg1 uint16) float64
	encode func(v float64) (reg0, reg1 uint16)
}

var boxCodec = registerCodec{
	decode: func(reg0, reg1 uint16) float64 { return float64(modbus.DecodeFloat32(reg0, reg1)) },
	encode: func(v float64) (uint16, uint16) { return modbus.EncodeFloat32(float32(v)) },
}

var thermCodec = registerCodec{
	decode: modbus.DecodeFixedPoint100,
	encode: modbus.EncodeFixedPoint100,
}

// readTimeout bounds every Modbus exchange a bus worker makes per poll.
const readTimeout = 500 * time.Millisecond

// modbusDriver drives a box or therm bus worker: poll the read table each
// tick, apply converters, write into the shared values map; dispatch
// write commands through the write table. Adapted from the teacher's
// mbcli read/write command flow, generalized to the rig's device tables.
type modbusDriver struct {
	name       string
	bus        *modbus.Bus
	codec      registerCodec
	reads      []ReadEntry
	writes     map[string]WriteEntry
	converters *convert.Set
}

func newModbusDriver(name string, bus *modbus.Bus, codec registerCodec, reads []ReadEntry, writes []WriteEntry, conv *convert.Set) *modbusDriver {
	wmap := make(map[string]WriteEntry, len(writes))
	for _, w := range writes {
		wmap[w.Device] = w
	}
	return &modbusDriver{name: name, bus: bus, codec: codec, reads: reads, writes: wmap, converters: conv}
}

// pollPass reads every configured device in declared order (spec §5
// ordering guarantee), converting and writing each into the shared map.
// A per-device failure sets that key to Null and emits a Warning; the
// remaining devices in the pass are still attempted.
func (d *modbusDriver) pollPass(vm *values.Map, errs *severity.Channel) {
	for _, entry := range d.reads {
		client := d.bus.GetClient(int(entry.ModbusID))
		regs, err := client.ReadHoldings(int(entry.StartRegister), int(entry.NumRegisters), readTimeout)
		if err != nil {
			vm.Set(entry.Device, values.Null)
			pushErr(errs, severity.Warningf("%s: read %s failed: %v", d.name, entry.Device, err))
			continue
		}
		if len(regs) < 2 {
			vm.Set(entry.Device, values.Null)
			pushErr(errs, severity.Warningf("%s: read %s returned %d registers, want 2", d.name, entry.Device, len(regs)))
			continue
		}
		raw := d.codec.decode(uint16(regs[0]), uint16(regs[1]))
		eng := d.converters.Read(entry.Converter, entry.Device, raw)
		vm.Set(entry.Device, values.Of(eng))
	}
}

// handleCommand parses cmd.Cmd as an integer percentage (spec §8
// scenario 1) and issues one write to the device's register pair.
func (d *modbusDriver) handleCommand(cmd Command, _ *severity.Channel) error {
	entry, ok := d.writes[cmd.Device]
	if !ok {
		return fmt.Errorf("%s: %s is not a write device", d.name, cmd.Device)
	}
	val, err := strconv.ParseFloat(cmd.Cmd, 64)
	if err != nil {
		return fmt.Errorf("%s: command %q for %s is not numeric: %w", d.name, cmd.Cmd, cmd.Device, err)
	}
	raw := d.converters.Write(entry.Converter, entry.Device, val)
	reg0, reg1 := d.codec.encode(raw)
	client := d.bus.GetClient(int(entry.ModbusID))
	return client.WriteMultipleHoldings(int(entry.StartRegister), []int{int(reg0), int(reg1)}, readTimeout)
}

func (d *modbusDriver) close() error {
	return d.bus.Close()
}

// NewBoxWorker builds the box worker: RTU-over-serial, sensors+control,
// IEEE-754 byte-reversed registers (spec §4.2, §6).
func NewBoxWorker(device string, baud int, parity byte, stopBits int, reads []ReadEntry, writes []WriteEntry, conv *convert.Set, errs *severity.Channel) (*Worker, error) {
	var bus *modbus.Bus
	if err := dialWithRetry("box", errs, func() error {
		var e error
		bus, e = modbus.OpenRTU(device, baud, parity, stopBits)
		return e
	}); err != nil {
		return nil, err
	}
	d := newModbusDriver("box", bus, boxCodec, reads, writes, conv)
	return newWorker("box", Box, DefaultReadPeriod, d), nil
}

// NewThermWorker builds the therm worker: RTU framing tunneled in TCP,
// sensors only, fixed-point ×100 registers (spec §4.2, §6).
func NewThermWorker(addr string, reads []ReadEntry, conv *convert.Set, errs *severity.Channel) (*Worker, error) {
	var bus *modbus.Bus
	if err := dialWithRetry("therm", errs, func() error {
		var e error
		bus, e = modbus.OpenRTUOverTCP(addr)
		return e
	}); err != nil {
		return nil, err
	}
	d := newModbusDriver("therm", bus, thermCodec, reads, nil, conv)
	return newWorker("therm", Therm, DefaultReadPeriod, d), nil
}
