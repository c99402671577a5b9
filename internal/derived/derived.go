// Package derived implements the derived-values worker (spec §4.5): on
// each tick it snapshots the shared values map and writes back a fixed
// set of named formulas over other devices' readings.
package derived

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

// Period is the derived-values worker's fixed tick rate (spec §4.4: 1s,
// same as the pub/sub worker).
const Period = time.Second

// Formula computes one derived key from a snapshot of component samples,
// in the order named in config's multi_devices list. Per spec §9 the set
// of formulas is hard-coded by name; new derived devices require code
// changes here.
type Formula func(components []values.Sample) values.Sample

var formulas = map[string]Formula{
	"L1": averageOf(2),
	"L2": averageOf(2),
	"H1": differenceOf(2),
	"P3": averageOf(2),
}

// averageOf returns a Formula computing the mean of n components,
// propagating Null if any input is Null (spec §4.5, §8 scenario 6).
func averageOf(n int) Formula {
	return func(components []values.Sample) values.Sample {
		if len(components) != n {
			return values.Null
		}
		sum := 0.0
		for _, c := range components {
			v, ok := c.Float()
			if !ok {
				return values.Null
			}
			sum += v
		}
		return values.Of(sum / float64(n))
	}
}

// differenceOf returns a Formula computing components[0] - components[1],
// propagating Null if either input is Null (used by H1 = P5d - P5a).
func differenceOf(n int) Formula {
	return func(components []values.Sample) values.Sample {
		if len(components) != n {
			return values.Null
		}
		a, ok := components[0].Float()
		if !ok {
			return values.Null
		}
		b, ok := components[1].Float()
		if !ok {
			return values.Null
		}
		return values.Of(a - b)
	}
}

// Device is one configured derived device: its output key and the
// ordered list of component device ids its formula reads (spec §6
// multi_devices).
type Device struct {
	Key        string
	Components []string
}

// Worker is the derived-values worker (spec §4.5).
type Worker struct {
	devices []Device
}

// NewWorker validates every configured device against the known formula
// set and returns a Worker. Per SUPPLEMENTED FEATURES #5 this validation
// runs at config load time too; NewWorker re-checks so the worker can
// never be constructed with an unknown derived-device name.
func NewWorker(devices []Device) (*Worker, error) {
	for _, d := range devices {
		if _, ok := formulas[d.Key]; !ok {
			return nil, fmt.Errorf("derived: unknown derived device %q", d.Key)
		}
	}
	return &Worker{devices: devices}, nil
}

// Run ticks every Period, snapshotting the shared map and writing back
// each configured device's computed value (spec §4.5).
func (w *Worker) Run(ctx context.Context, vm *values.Map, errs *severity.Channel) {
	ticker := time.NewTicker(Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(vm, errs)
		}
	}
}

func (w *Worker) tick(vm *values.Map, errs *severity.Channel) {
	snapshot := vm.Snapshot()
	for _, d := range w.devices {
		formula, ok := formulas[d.Key]
		if !ok {
			pushErr(errs, severity.Errorf("derived: unknown derived device %q", d.Key))
			continue
		}
		components := make([]values.Sample, len(d.Components))
		for i, id := range d.Components {
			components[i] = snapshot[id]
		}
		result := formula(components)
		vm.Set(d.Key, result)
		if result.IsNull() {
			pushErr(errs, severity.Warningf("derived: %s is null, one or more inputs %v missing", d.Key, d.Components))
		}
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
