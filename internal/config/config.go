// Package config loads the rig's single YAML configuration file (spec
// §6) and validates it before any worker starts (SUPPLEMENTED FEATURES
// #5): an unknown multi_devices key or a dangling multi_devices component
// reference fails fast as a Critical rather than surfacing at runtime.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Connection is shared shape for both network and serial bus endpoints
// (spec §6); a given bus only populates the fields relevant to its
// transport (serial ignores ip/port/credentials, network ignores baud).
type Connection struct {
	IP       string `yaml:"ip"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Baudrate int    `yaml:"baudrate"`
}

// Device is one configured device entry (spec §6); converter_type and
// mqtt_topic are optional and default at use-site.
type Device struct {
	StartRegister uint16 `yaml:"start_register"`
	NumRegisters  uint16 `yaml:"num_registers"`
	ModbusID      byte   `yaml:"modbus_id"`
	ConverterType string `yaml:"converter_type"`
	MQTTTopic     string `yaml:"mqtt_topic"`
}

// Config mirrors spec §6's top-level YAML sections.
type Config struct {
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Connections struct {
		ExternalIface Connection `yaml:"external_iface"`
		BoxSerial     Connection `yaml:"box_serial"`
		ThermSerial   Connection `yaml:"therm_serial"`
		Turb1Serial   Connection `yaml:"turb1_serial"`
		Turb2Serial   Connection `yaml:"turb2_serial"`
		VacMQTT       Connection `yaml:"vac_mqtt"`
	} `yaml:"connections"`

	Devices struct {
		BoxSensorDevices    map[string]Device   `yaml:"box_sensor_devices"`
		BoxControlDevices   map[string]Device   `yaml:"box_control_devices"`
		ThermSensorDevices  map[string]Device   `yaml:"therm_sensor_devices"`
		Turb1SensorDevices  map[string]string   `yaml:"turb1_sensor_devices"` // DeviceId -> attribute name
		Turb1ControlDevices map[string]Device   `yaml:"turb1_control_devices"`
		Turb2SensorDevices  map[string]string   `yaml:"turb2_sensor_devices"`
		Turb2ControlDevices map[string]Device   `yaml:"turb2_control_devices"`
		VacSensorDevices    map[string]Device   `yaml:"vac_sensor_devices"`
		VacControlDevices   map[string]Device   `yaml:"vac_control_devices"`
		MultiDevices        map[string][]string `yaml:"multi_devices"`
	} `yaml:"devices"`
}

// knownDerivedKeys is the closed formula set derived.NewWorker also
// enforces; duplicated here (rather than importing internal/derived) so
// config has no dependency on the worker-layer packages it validates
// ahead of (spec §9: "a fixed set of formulas hard-coded by name").
var knownDerivedKeys = map[string]bool{"L1": true, "L2": true, "H1": true, "P3": true}

// Load reads path, parses it as YAML, and validates it (SUPPLEMENTED
// FEATURES #5). A config file that is missing, empty, or unreadable is a
// Critical per spec §7.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("config: %s is empty", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate checks multi_devices component ids resolve to devices declared
// elsewhere in the config, and that every derived key names a known
// formula (spec §8 "routing totality" invariant, extended to catch a
// dangling component reference before any worker starts).
func (c *Config) Validate() error {
	known := make(map[string]bool)
	for id := range c.Devices.BoxSensorDevices {
		known[id] = true
	}
	for id := range c.Devices.BoxControlDevices {
		known[id] = true
	}
	for id := range c.Devices.ThermSensorDevices {
		known[id] = true
	}
	for id := range c.Devices.Turb1SensorDevices {
		known[id] = true
	}
	for id := range c.Devices.Turb1ControlDevices {
		known[id] = true
	}
	for id := range c.Devices.Turb2SensorDevices {
		known[id] = true
	}
	for id := range c.Devices.Turb2ControlDevices {
		known[id] = true
	}
	for id := range c.Devices.VacSensorDevices {
		known[id] = true
	}
	for id := range c.Devices.VacControlDevices {
		known[id] = true
	}

	for derivedID, components := range c.Devices.MultiDevices {
		if !knownDerivedKeys[derivedID] {
			return fmt.Errorf("multi_devices entry %q is not a known derived formula", derivedID)
		}
		for _, comp := range components {
			if !known[comp] {
				return fmt.Errorf("multi_devices entry %q references unknown component device %q", derivedID, comp)
			}
		}
	}
	return nil
}
