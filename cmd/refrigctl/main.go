// Command refrigctl is the device-interface supervisor for the rig: it
// loads config, opens every bus, and runs the worker fleet until an
// operator interrupt or a Critical fault (spec §1, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/cryorig/refrigctl/internal/config"
	"github.com/cryorig/refrigctl/internal/convert"
	"github.com/cryorig/refrigctl/internal/derived"
	"github.com/cryorig/refrigctl/internal/gateway"
	"github.com/cryorig/refrigctl/internal/logging"
	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/supervisor"
	"github.com/cryorig/refrigctl/internal/values"
	"github.com/cryorig/refrigctl/internal/worker"
)

// options is the CLI surface, parsed with go-flags per the teacher's
// mbcli.
type options struct {
	Config  string `long:"config" default:"config.yaml" description:"path to the rig's YAML configuration file"`
	DryRun  bool   `long:"dry-run" description:"load and validate config, then exit without opening any bus"`
	LogDir  string `long:"log-dir" default:"logs" description:"directory logs/log_<date>.txt is written under"`
	SiTherm string `long:"si-therm-dir" default:"data/silicon_thermometry" description:"silicon-thermometry coefficient file directory"`
}

func main() {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		return 1
	}

	if err := logging.Init(opts.LogDir, cfg.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		return 1
	}

	if opts.DryRun {
		logrus.Info("dry-run: config loaded and validated, exiting")
		return 0
	}

	converters, err := convert.NewSet(opts.SiTherm)
	if err != nil {
		logrus.Errorf("CRITICAL: %v", err)
		return 1
	}

	vm := values.NewMap()
	errs := severity.NewChannel()
	routing := values.NewRoutingTable()

	runnables, sinks, err := buildWorkers(cfg, converters, errs, routing)
	if err != nil {
		logrus.Errorf("CRITICAL: %v", err)
		return 1
	}

	derivedWorker, err := buildDerivedWorker(cfg, routing)
	if err != nil {
		logrus.Errorf("CRITICAL: %v", err)
		return 1
	}
	runnables = append(runnables, derivedWorker)

	sup := supervisor.New(vm, errs, routing, sinks)

	gw, err := buildGateway(cfg, sup)
	if err != nil {
		logrus.Errorf("CRITICAL: %v", err)
		return 1
	}
	if gw != nil {
		runnables = append(runnables, gw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logrus.Info("received interrupt, shutting down")
		cancel()
	}()

	return sup.Run(ctx, runnables)
}

// buildWorkers constructs the five bus workers configured in cfg,
// registers every device in routing, and returns each worker alongside a
// supervisor.CommandSink keyed by its worker id.
func buildWorkers(cfg *config.Config, conv *convert.Set, errs *severity.Channel, routing *values.RoutingTable) ([]supervisor.Runnable, map[string]supervisor.CommandSink, error) {
	var runnables []supervisor.Runnable
	sinks := make(map[string]supervisor.CommandSink)

	if len(cfg.Devices.BoxSensorDevices) > 0 || len(cfg.Devices.BoxControlDevices) > 0 {
		reads, err := toReadEntries(cfg.Devices.BoxSensorDevices)
		if err != nil {
			return nil, nil, fmt.Errorf("box_sensor_devices: %w", err)
		}
		writes, err := toWriteEntries(cfg.Devices.BoxControlDevices)
		if err != nil {
			return nil, nil, fmt.Errorf("box_control_devices: %w", err)
		}
		conn := cfg.Connections.BoxSerial
		w, err := worker.NewBoxWorker(conn.Port, conn.Baudrate, 'N', 1, reads, writes, conv, errs)
		if err != nil {
			return nil, nil, fmt.Errorf("box worker: %w", err)
		}
		registerRoutes(routing, "box", reads, writes)
		sinks["box"] = w
		runnables = append(runnables, w)
	}

	if len(cfg.Devices.ThermSensorDevices) > 0 {
		reads, err := toReadEntries(cfg.Devices.ThermSensorDevices)
		if err != nil {
			return nil, nil, fmt.Errorf("therm_sensor_devices: %w", err)
		}
		conn := cfg.Connections.ThermSerial
		addr := fmt.Sprintf("%s:%s", conn.IP, conn.Port)
		w, err := worker.NewThermWorker(addr, reads, conv, errs)
		if err != nil {
			return nil, nil, fmt.Errorf("therm worker: %w", err)
		}
		registerRoutes(routing, "therm", reads, nil)
		sinks["therm"] = w
		runnables = append(runnables, w)
	}

	if len(cfg.Devices.Turb1SensorDevices) > 0 || len(cfg.Devices.Turb1ControlDevices) > 0 {
		reads := toTurboEntries(cfg.Devices.Turb1SensorDevices)
		controlIDs := deviceIDs(cfg.Devices.Turb1ControlDevices)
		conn := cfg.Connections.Turb1Serial
		w, err := worker.NewTurb1Worker(conn.Port, controlIDs, reads, errs)
		if err != nil {
			return nil, nil, fmt.Errorf("turb1 worker: %w", err)
		}
		for _, r := range reads {
			routing.Add(r.Device, "turb1")
		}
		for _, id := range controlIDs {
			routing.Add(id, "turb1")
		}
		sinks["turb1"] = w
		runnables = append(runnables, w)
	}

	if len(cfg.Devices.Turb2SensorDevices) > 0 || len(cfg.Devices.Turb2ControlDevices) > 0 {
		reads := toTurboEntries(cfg.Devices.Turb2SensorDevices)
		controlIDs := deviceIDs(cfg.Devices.Turb2ControlDevices)
		conn := cfg.Connections.Turb2Serial
		w, err := worker.NewTurb2Worker(conn.Port, controlIDs, reads, errs)
		if err != nil {
			return nil, nil, fmt.Errorf("turb2 worker: %w", err)
		}
		for _, r := range reads {
			routing.Add(r.Device, "turb2")
		}
		for _, id := range controlIDs {
			routing.Add(id, "turb2")
		}
		sinks["turb2"] = w
		runnables = append(runnables, w)
	}

	if len(cfg.Devices.VacSensorDevices) > 0 || len(cfg.Devices.VacControlDevices) > 0 {
		reads, err := toPubSubEntries(cfg.Devices.VacSensorDevices)
		if err != nil {
			return nil, nil, fmt.Errorf("vac_sensor_devices: %w", err)
		}
		writes, err := toPubSubEntries(cfg.Devices.VacControlDevices)
		if err != nil {
			return nil, nil, fmt.Errorf("vac_control_devices: %w", err)
		}
		conn := cfg.Connections.VacMQTT
		brokerURL := fmt.Sprintf("tcp://%s:%s", conn.IP, conn.Port)
		w, err := worker.NewVacWorker(brokerURL, conn.Username, conn.Password, reads, writes, conv, errs)
		if err != nil {
			return nil, nil, fmt.Errorf("vac worker: %w", err)
		}
		for _, r := range reads {
			routing.Add(r.Device, "vac")
		}
		for _, wr := range writes {
			routing.Add(wr.Device, "vac")
		}
		sinks["vac"] = w
		runnables = append(runnables, w)
	}

	return runnables, sinks, nil
}

func registerRoutes(routing *values.RoutingTable, workerID string, reads []worker.ReadEntry, writes []worker.WriteEntry) {
	for _, r := range reads {
		routing.Add(r.Device, workerID)
	}
	for _, w := range writes {
		routing.Add(w.Device, workerID)
	}
}

func toReadEntries(devices map[string]config.Device) ([]worker.ReadEntry, error) {
	entries := make([]worker.ReadEntry, 0, len(devices))
	for id, d := range devices {
		tag, err := convert.ParseTag(d.ConverterType)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
		entries = append(entries, worker.ReadEntry{
			Device:        id,
			StartRegister: d.StartRegister,
			NumRegisters:  d.NumRegisters,
			ModbusID:      d.ModbusID,
			Converter:     tag,
			Topic:         d.MQTTTopic,
		})
	}
	return entries, nil
}

func toWriteEntries(devices map[string]config.Device) ([]worker.WriteEntry, error) {
	entries := make([]worker.WriteEntry, 0, len(devices))
	for id, d := range devices {
		tag, err := convert.ParseTag(d.ConverterType)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
		entries = append(entries, worker.WriteEntry{
			Device:        id,
			StartRegister: d.StartRegister,
			ModbusID:      d.ModbusID,
			Converter:     tag,
			Topic:         d.MQTTTopic,
		})
	}
	return entries, nil
}

// deviceIDs returns the configured keys of a *_control_devices section,
// ignoring the per-entry fields (turbovac control devices carry no
// register/converter wiring of their own, unlike the Modbus/pub-sub
// sibling sections — only membership matters, spec §6).
func deviceIDs(devices map[string]config.Device) []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	return ids
}

func toTurboEntries(devices map[string]string) []worker.TurboReadEntry {
	entries := make([]worker.TurboReadEntry, 0, len(devices))
	for id, attr := range devices {
		entries = append(entries, worker.TurboReadEntry{Device: id, Attribute: worker.TurboAttribute(attr)})
	}
	return entries
}

func toPubSubEntries(devices map[string]config.Device) ([]worker.PubSubEntry, error) {
	entries := make([]worker.PubSubEntry, 0, len(devices))
	for id, d := range devices {
		tag, err := convert.ParseTag(d.ConverterType)
		if err != nil {
			return nil, fmt.Errorf("device %q: %w", id, err)
		}
		topic := d.MQTTTopic
		if topic == "" {
			topic = id
		}
		entries = append(entries, worker.PubSubEntry{Device: id, Topic: topic, Converter: tag})
	}
	return entries, nil
}

func buildDerivedWorker(cfg *config.Config, routing *values.RoutingTable) (supervisor.Runnable, error) {
	devices := make([]derived.Device, 0, len(cfg.Devices.MultiDevices))
	for key, components := range cfg.Devices.MultiDevices {
		devices = append(devices, derived.Device{Key: key, Components: components})
		routing.Add(key, "derived")
	}
	return derived.NewWorker(devices)
}

func buildGateway(cfg *config.Config, sup *supervisor.Supervisor) (supervisor.Runnable, error) {
	conn := cfg.Connections.ExternalIface
	if conn.IP == "" && conn.Port == "" {
		return nil, nil
	}
	brokerURL := fmt.Sprintf("tcp://%s:%s", conn.IP, conn.Port)
	return gateway.New(brokerURL, conn.Username, conn.Password, sup, sup)
}
