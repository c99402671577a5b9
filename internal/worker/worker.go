// Package worker implements the long-running bus workers (spec §4.4): one
// goroutine per physical bus, each owning its bus client exclusively, a
// bounded inbound command queue, and a reference to the shared values map
// and error channel. The loop itself is one function; per-kind behaviour
// is a closed tagged-variant dispatch through the driver interface, per
// spec §9 ("model them as tagged variants ... not open inheritance").
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// Kind is the closed set of worker flavours (spec §2/§4.4).
type Kind int

const (
	Box Kind = iota
	Therm
	Turb1
	Turb2
	Vac
	Derived
)

func (k Kind) String() string {
	switch k {
	case Box:
		return "box"
	case Therm:
		return "therm"
	case Turb1:
		return "turb1"
	case Turb2:
		return "turb2"
	case Vac:
		return "vac"
	case Derived:
		return "derived"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultReadPeriod and PubSubReadPeriod are the two tick rates spec §4.4
// names: 0.5s for the four bus workers, 1s for vac and the derived worker.
const (
	DefaultReadPeriod = 500 * time.Millisecond
	PubSubReadPeriod  = time.Second
)

// Command is one operator instruction routed to a worker's inbound queue
// (spec §4.6 send_command).
type Command struct {
	Device string
	Cmd    string
}

// inboundCapacity is the fixed command-queue depth (spec §4.4).
const inboundCapacity = 10

// driver is the per-kind behaviour a Worker dispatches to: one poll pass
// over its read table, and one command handler over its write/control
// table. Implementations never share state across workers (spec §5).
type driver interface {
	pollPass(values *values.Map, errs *severity.Channel)
	handleCommand(cmd Command, errs *severity.Channel) error
	close() error
}

// readTempFlusher is implemented only by the turbovac driver: it lets the
// worker loop coalesce repeated read_temp commands arriving within one
// drain pass into a single telegram (SUPPLEMENTED FEATURES #3).
type readTempFlusher interface {
	flushReadTemp(errs *severity.Channel)
}

// Worker is the generic long-running bus task (spec §4.4).
type Worker struct {
	Name   string
	Kind   Kind
	period time.Duration
	inbox  chan Command
	driver driver
}

func newWorker(name string, kind Kind, period time.Duration, d driver) *Worker {
	return &Worker{
		Name:   name,
		Kind:   kind,
		period: period,
		inbox:  make(chan Command, inboundCapacity),
		driver: d,
	}
}

// TryPush enqueues a command for device without blocking. It reports
// false when the queue is full, meaning the bus is wedged (spec §4.4);
// the caller (supervisor) surfaces that as an Error rather than block.
// This is the method set that satisfies supervisor.CommandSink.
func (w *Worker) TryPush(device, cmd string) bool {
	select {
	case w.inbox <- Command{Device: device, Cmd: cmd}:
		return true
	default:
		return false
	}
}

// Run is the worker loop: sleep period, drain the inbound queue, poll one
// full pass of read devices. It terminates only when ctx is cancelled; it
// never drains its queue on the way out (spec §5, daemonised workers).
func (w *Worker) Run(ctx context.Context, vm *values.Map, errs *severity.Channel) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()
	defer func() {
		if err := w.driver.close(); err != nil {
			logrus.WithField("worker", w.Name).Warnf("close: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drainInbox(errs)
			w.driver.pollPass(vm, errs)
		}
	}
}

func (w *Worker) drainInbox(errs *severity.Channel) {
	flusher, coalesces := w.driver.(readTempFlusher)
	pendingFlush := false

	for {
		select {
		case cmd := <-w.inbox:
			if coalesces && cmd.Cmd == "read_temp" {
				pendingFlush = true
				continue
			}
			if err := w.driver.handleCommand(cmd, errs); err != nil {
				pushErr(errs, severity.Warningf("%s: command %q for %s failed: %v", w.Name, cmd.Cmd, cmd.Device, err))
			}
		default:
			if pendingFlush {
				flusher.flushReadTemp(errs)
			}
			return
		}
	}
}

// pushErr pushes rec onto errs, logging locally via logrus if the channel
// is full rather than dropping it silently or recursing back into the same
// channel (spec §3: "producers drop and log locally").
func pushErr(errs *severity.Channel, rec severity.Record) {
	if !errs.Push(rec) {
		logrus.Warnf("error channel full, dropping: %s", rec)
	}
}

// dialWithRetry attempts open up to 3 times, 500ms apart, pushing a
// Warning for each failed attempt before the last (SUPPLEMENTED FEATURES
// #1); the last failure is returned as an error instead. The caller
// turns a final failure into a Critical at bus-client init.
func dialWithRetry(name string, errs *severity.Channel, open func() error) error {
	const attempts = 3
	const backoff = 500 * time.Millisecond

	var err error
	for i := 1; i <= attempts; i++ {
		if err = open(); err == nil {
			return nil
		}
		if i < attempts {
			pushErr(errs, severity.Warningf("%s: connection attempt %d/%d failed: %v", name, i, attempts, err))
			time.Sleep(backoff)
		}
	}
	return fmt.Errorf("%s: failed to connect after %d attempts: %w", name, attempts, err)
}
