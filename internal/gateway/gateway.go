// Package gateway implements the external pub/sub supervisory interface
// (spec §4.7): publishes every live value and the supervisor's state and
// status, and forwards operator commands from a single command topic
// back into the supervisor.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// root is the external topic root (spec §6).
const root = "refrig/"

// Period is the gateway's publish tick (spec §4.4: same 1s rate as the
// pub/sub bus worker).
const Period = time.Second

// Router is the command sink the gateway forwards parsed commands to;
// *supervisor.Supervisor satisfies this.
type Router interface {
	SendCommand(device, cmd string)
}

// StateSource reports the supervisor's current (state, status) pair so
// the gateway can publish it on change.
type StateSource interface {
	State() (state, status string)
}

// Gateway is the external pub/sub client (spec §4.7).
type Gateway struct {
	client mqtt.Client
	router Router
	source StateSource

	lastState  string
	lastStatus string
}

// New connects to brokerURL and subscribes to the command topic. The
// connect is attempted once, with no retry; New returns a failed connect
// as an error, which the caller treats as fatal.
func New(brokerURL, username, password string, router Router, source StateSource) (*Gateway, error) {
	opts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID("refrigctl-external")
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("gateway: connecting to %s: %w", brokerURL, connectErr(token))
	}

	g := &Gateway{client: client, router: router, source: source}

	topic := root + "Command"
	if token := client.Subscribe(topic, 1, g.onCommand); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		return nil, fmt.Errorf("gateway: subscribing to %s: %w", topic, connectErr(token))
	}
	return g, nil
}

func connectErr(token mqtt.Token) error {
	if token.Error() != nil {
		return token.Error()
	}
	return fmt.Errorf("timed out")
}

// onCommand parses "<DeviceId> <rest...>" and forwards the raw rest
// string, unparsed, to the router (spec §4.7). Malformed payloads (no
// space) are logged at warning level and dropped; they are not pushed onto
// the error channel, so they do not change the supervisor's state.
func (g *Gateway) onCommand(_ mqtt.Client, msg mqtt.Message) {
	payload := string(msg.Payload())
	device, rest, ok := strings.Cut(payload, " ")
	if !ok || device == "" {
		logrus.Warnf("gateway: malformed command payload %q", payload)
		return
	}
	g.router.SendCommand(device, rest)
}

// Run ticks every Period, publishing every live value, and publishing
// State/Status with retain=true whenever either changes (spec §4.7).
func (g *Gateway) Run(ctx context.Context, vm *values.Map, errs *severity.Channel) {
	ticker := time.NewTicker(Period)
	defer ticker.Stop()
	defer g.client.Disconnect(250)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.tick(vm, errs)
		}
	}
}

// nullPayload is what a Null sample publishes as (spec §4.7, §2: every
// key in the values map is published every tick, live or not, matching
// the original's unconditional send() over values_dict).
const nullPayload = ""

func (g *Gateway) tick(vm *values.Map, errs *severity.Channel) {
	for _, device := range vm.Keys() {
		sample := vm.Get(device)
		payload := nullPayload
		if v, ok := sample.Float(); ok {
			payload = strconv.FormatFloat(v, 'f', -1, 64)
		}
		token := g.client.Publish(root+device, 0, false, payload)
		if !token.WaitTimeout(time.Second) || token.Error() != nil {
			pushErr(errs, severity.Warningf("gateway: publish %s failed: %v", device, connectErr(token)))
		}
	}

	state, status := g.source.State()
	if state != g.lastState {
		g.lastState = state
		g.publishRetained("State", state, errs)
	}
	if status != g.lastStatus {
		g.lastStatus = status
		g.publishRetained("Status", status, errs)
	}
}

func (g *Gateway) publishRetained(key, payload string, errs *severity.Channel) {
	token := g.client.Publish(root+key, 1, true, payload)
	if !token.WaitTimeout(time.Second) || token.Error() != nil {
		pushErr(errs, severity.Warningf("gateway: publish %s failed: %v", key, connectErr(token)))
	}
}

// pushErr pushes rec onto errs, logging locally via logrus if the channel
// is full rather than dropping it silently (spec §3: "producers drop and
// log locally").
func pushErr(errs *severity.Channel, rec severity.Record) {
	if !errs.Push(rec) {
		logrus.Warnf("error channel full, dropping: %s", rec)
	}
}
