package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: info
connections:
  box_serial:
    port: /dev/ttyUSB0
    baudrate: 9600
devices:
  box_sensor_devices:
    V13:
      start_register: 100
      num_registers: 2
    P2:
      start_register: 102
      num_registers: 2
    P2d:
      start_register: 104
      num_registers: 2
  multi_devices:
    P3:
      - P2
      - P2d
`

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesSections(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
	require.Equal(t, "/dev/ttyUSB0", cfg.Connections.BoxSerial.Port)
	require.Contains(t, cfg.Devices.BoxSensorDevices, "V13")
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	require.Error(t, err)
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := writeTemp(t, "")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnknownDerivedKey(t *testing.T) {
	yaml := `
devices:
  box_sensor_devices:
    V13:
      start_register: 100
      num_registers: 2
  multi_devices:
    Bogus:
      - V13
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsDanglingComponent(t *testing.T) {
	yaml := `
devices:
  multi_devices:
    P3:
      - NoSuchDevice
      - AlsoMissing
`
	path := writeTemp(t, yaml)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "NoSuchDevice")
}

func TestValidateAcceptsWellFormedMultiDevices(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	_, err := Load(path)
	require.NoError(t, err)
}
