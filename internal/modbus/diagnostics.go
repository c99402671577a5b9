package modbus

import "sync"

// Diagnostics are rolling wire-level counters kept per bus, trimmed from
// the teacher's BusDiagnostics to the three counters the rig's workers
// actually want to expose: none are published anywhere today, but the
// struct is exercised by every transport and is the extension point a
// future `/diag` surface would read from.
type Diagnostics struct {
	Messages  int
	CRCErrors int
	Overruns  int
}

type diagnosticsManager struct {
	mu   sync.Mutex
	diag Diagnostics
}

func newDiagnosticsManager() *diagnosticsManager {
	return &diagnosticsManager{}
}

func (d *diagnosticsManager) message() {
	d.mu.Lock()
	d.diag.Messages++
	d.mu.Unlock()
}

func (d *diagnosticsManager) crcError() {
	d.mu.Lock()
	d.diag.CRCErrors++
	d.mu.Unlock()
}

func (d *diagnosticsManager) overrun() {
	d.mu.Lock()
	d.diag.Overruns++
	d.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (d *diagnosticsManager) Snapshot() Diagnostics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.diag
}
