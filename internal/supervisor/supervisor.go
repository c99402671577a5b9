// Package supervisor owns the shared values map, the shared error
// channel, the device routing table, and the state/status fields (spec
// §4.6). It exposes send_command and the main drain loop, and starts
// every worker goroutine under one errgroup so a cancelled context
// propagates cleanly to the whole fleet (SUPPLEMENTED FEATURES #4).
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// serviceDevice is the reserved no-op write target (spec §9): accepted,
// silently ignored.
const serviceDevice = "Service"

// CommandSink is the subset of *worker.Worker the supervisor needs to
// route a command onto a worker's inbound queue, kept narrow so this
// package never imports worker (workers are started through Runnable,
// below, avoiding an import cycle since cmd/refrigctl wires both).
type CommandSink interface {
	TryPush(device, cmd string) bool
}

// Runnable is anything the supervisor starts under its errgroup: every
// bus worker and the derived-values worker satisfy this.
type Runnable interface {
	Run(ctx context.Context, vm *values.Map, errs *severity.Channel)
}

// Supervisor is the process's single coordination point (spec §4.6).
type Supervisor struct {
	values  *values.Map
	errs    *severity.Channel
	routing *values.RoutingTable
	sinks   map[string]CommandSink

	mu         sync.Mutex
	state      string
	status     string
	lastLogged string
}

// New builds a Supervisor. routing must already be total for every
// device any worker will ever touch; cmd/refrigctl builds it from every
// worker's read and write tables before calling New.
func New(vm *values.Map, errs *severity.Channel, routing *values.RoutingTable, sinks map[string]CommandSink) *Supervisor {
	return &Supervisor{
		values:  vm,
		errs:    errs,
		routing: routing,
		sinks:   sinks,
		state:   "INIT",
	}
}

// SendCommand is the supervisor's one operation (spec §4.6). "State" is a
// reserved operator override of the state field itself; "Service" is a
// reserved no-op; any other device must resolve in the routing table and
// have room on its worker's inbound queue.
func (s *Supervisor) SendCommand(device, cmd string) {
	if device == "State" {
		s.setState(cmd, "operator override")
		return
	}
	if device == serviceDevice {
		return
	}
	workerID, ok := s.routing.Lookup(device)
	if !ok {
		s.pushErr(severity.Errorf("unknown device %q in command routing", device))
		return
	}
	sink, ok := s.sinks[workerID]
	if !ok {
		s.pushErr(severity.Errorf("no worker registered for %q (routed to %q)", device, workerID))
		return
	}
	if !sink.TryPush(device, cmd) {
		s.pushErr(severity.Errorf("command queue of %s is full", workerID))
	}
}

// pushErr pushes rec onto the shared error channel, logging locally if the
// channel is full rather than recursing back into it (spec §3, §7).
func (s *Supervisor) pushErr(rec severity.Record) {
	if !s.errs.Push(rec) {
		logrus.Warnf("error channel full, dropping: %s", rec)
	}
}

// Run starts every runnable under one errgroup tied to ctx, then runs the
// main drain loop until ctx is cancelled or a Critical is observed.
// Returns the process exit code (spec §6): 0 on clean shutdown, non-zero
// after a Critical.
func (s *Supervisor) Run(ctx context.Context, runnables []Runnable) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range runnables {
		r := r
		g.Go(func() error {
			r.Run(gctx, s.values, s.errs)
			return nil
		})
	}

	exitCode := s.drainLoop(gctx)
	cancel()
	_ = g.Wait()
	return exitCode
}

// drainLoop is the supervisor's main loop (spec §4.6): non-blocking
// drain of the error channel, folding each record into the error-handling
// policy (spec §7); sleeps 1s when the channel is empty.
func (s *Supervisor) drainLoop(ctx context.Context) int {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		if rec, ok := s.errs.TryRecv(); ok {
			if s.handle(rec) {
				return 1
			}
			continue
		}
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
		}
	}
}

// handle applies the error-handling policy from spec §7, debouncing
// identical consecutive (severity, message) pairs. Returns true if the
// process should terminate (a Critical was observed).
func (s *Supervisor) handle(rec severity.Record) bool {
	key := rec.String()

	s.mu.Lock()
	changed := key != s.lastLogged
	s.lastLogged = key
	s.mu.Unlock()

	if !changed {
		return false
	}

	switch rec.Severity {
	case severity.Warning:
		logrus.Warn(rec.Message)
		s.setState(fmt.Sprintf("WARNING:%s", rec.Message), "")
	case severity.Error:
		logrus.Error(rec.Message)
		s.setState(fmt.Sprintf("ERROR:%s", rec.Message), "")
	case severity.Critical:
		logrus.Log(logrus.FatalLevel, rec.Message)
		s.setState(fmt.Sprintf("CRITICAL:%s", rec.Message), "")
		return true
	}
	return false
}

// setState updates the supervisor's state field, debounced: identical
// consecutive states are suppressed (spec §3, §7).
func (s *Supervisor) setState(state, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == s.state {
		return
	}
	s.state = state
	if status != "" {
		s.status = status
	}
}

// State returns the current (state, status) pair, e.g. for the gateway's
// retained publishes.
func (s *Supervisor) State() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.status
}
