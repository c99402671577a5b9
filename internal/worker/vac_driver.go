package worker

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cryorig/refrigctl/internal/convert"
	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// vacRoot is the internal vac bus topic root (spec §6): each device
// subscribes/publishes at `vacRoot + topic`.
const vacRoot = "/devices/control/"

// vacDriver drives the pub/sub vac worker. Unlike the polling drivers it
// never initiates a read on tick: a broker callback writes into a local
// map as messages arrive, and the tick only copies that local map into
// the shared values map (spec §4.4).
type vacDriver struct {
	name       string
	client     mqtt.Client
	reads      []PubSubEntry
	writes     map[string]PubSubEntry
	converters *convert.Set

	mu    sync.Mutex
	local map[string]values.Sample
}

func newVacDriver(name string, client mqtt.Client, reads []PubSubEntry, writes []PubSubEntry, conv *convert.Set) *vacDriver {
	wmap := make(map[string]PubSubEntry, len(writes))
	for _, w := range writes {
		wmap[w.Device] = w
	}
	return &vacDriver{
		name:       name,
		client:     client,
		reads:      reads,
		writes:     wmap,
		converters: conv,
		local:      make(map[string]values.Sample),
	}
}

func (d *vacDriver) setLocal(device string, s values.Sample) {
	d.mu.Lock()
	d.local[device] = s
	d.mu.Unlock()
}

// pollPass copies the local map — last written by broker callbacks —
// into the shared values map. Readers therefore see vac values at
// worker-tick granularity (spec §4.4).
func (d *vacDriver) pollPass(vm *values.Map, _ *severity.Channel) {
	d.mu.Lock()
	snapshot := make(map[string]values.Sample, len(d.local))
	for k, v := range d.local {
		snapshot[k] = v
	}
	d.mu.Unlock()
	for device, sample := range snapshot {
		vm.Set(device, sample)
	}
}

// handleCommand publishes cmd.Cmd, unparsed and plain (no JSON), to the
// device's control topic (spec §4.4(b)).
func (d *vacDriver) handleCommand(cmd Command, _ *severity.Channel) error {
	entry, ok := d.writes[cmd.Device]
	if !ok {
		return fmt.Errorf("%s: %s is not a control device", d.name, cmd.Device)
	}
	token := d.client.Publish(vacRoot+entry.Topic, 1, false, cmd.Cmd)
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return fmt.Errorf("%s: publish to %s: %w", d.name, entry.Topic, token.Error())
	}
	return nil
}

func (d *vacDriver) close() error {
	d.client.Disconnect(250)
	return nil
}

// NewVacWorker builds the vac worker: pub/sub broker, sensors+control
// (spec §4.4, §6). No reconnect policy is implemented here: no
// on-connect or connection-lost handlers are installed, and reconnecting
// is left to the MQTT client library's defaults.
func NewVacWorker(brokerURL, username, password string, reads, writes []PubSubEntry, conv *convert.Set, errs *severity.Channel) (*Worker, error) {
	var client mqtt.Client
	if err := dialWithRetry("vac", errs, func() error {
		opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID("refrigctl-vac")
		if username != "" {
			opts.SetUsername(username)
			opts.SetPassword(password)
		}
		c := mqtt.NewClient(opts)
		if token := c.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			if token.Error() != nil {
				return token.Error()
			}
			return fmt.Errorf("vac: connect timed out")
		}
		client = c
		return nil
	}); err != nil {
		return nil, err
	}

	d := newVacDriver("vac", client, reads, writes, conv)
	for _, entry := range reads {
		entry := entry
		topic := vacRoot + entry.Topic
		token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			v, err := strconv.ParseFloat(string(msg.Payload()), 64)
			if err != nil {
				d.setLocal(entry.Device, values.Null)
				return
			}
			eng := conv.Read(entry.Converter, entry.Device, v)
			d.setLocal(entry.Device, values.Of(eng))
		})
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			return nil, fmt.Errorf("vac: subscribe %s: %w", topic, token.Error())
		}
	}

	return newWorker("vac", Vac, PubSubReadPeriod, d), nil
}
