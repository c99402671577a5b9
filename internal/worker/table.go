package worker

import "github.com/cryorig/refrigctl/internal/convert"

// ReadEntry is one polled device on a Modbus bus worker (box or therm),
// spec §3.
type ReadEntry struct {
	Device        string
	StartRegister uint16
	NumRegisters  uint16
	ModbusID      byte
	Converter     convert.Tag
	Topic         string
}

// WriteEntry is one writable device on a Modbus bus worker, spec §3.
type WriteEntry struct {
	Device        string
	StartRegister uint16
	ModbusID      byte
	Converter     convert.Tag
	Topic         string
}

// TurboAttribute names one of the turbovac's readable attributes (spec
// §4.3): TBearing, TFreq, Freq, Setpoint, State, Voltage.
type TurboAttribute string

const (
	AttrBearingTemp TurboAttribute = "TBearing"
	AttrFreqTemp    TurboAttribute = "TFreq"
	AttrFreq        TurboAttribute = "Freq"
	AttrSetpoint    TurboAttribute = "Setpoint"
	AttrState       TurboAttribute = "State"
	AttrVoltage     TurboAttribute = "Voltage"
)

// TurboReadEntry maps a DeviceId to the turbovac attribute it reports.
type TurboReadEntry struct {
	Device    string
	Attribute TurboAttribute
}

// PubSubEntry maps a DeviceId to its MQTT topic on the internal vac bus
// (spec §6); Topic defaults to Device when left blank in config.
type PubSubEntry struct {
	Device    string
	Topic     string
	Converter convert.Tag
}
