// Package values owns the process-wide live-values map and the routing
// table that maps device ids to the worker that owns them (spec §3).
package values

import (
	"fmt"
	"sync"
)

// Sample is either a numeric engineering-unit reading or Null, meaning "no
// recent valid reading" for that device.
type Sample struct {
	value float64
	valid bool
}

// Null is the zero Sample: no recent valid reading.
var Null = Sample{}

// Of wraps a float64 as a valid Sample.
func Of(v float64) Sample {
	return Sample{value: v, valid: true}
}

// IsNull reports whether this sample carries no value.
func (s Sample) IsNull() bool {
	return !s.valid
}

// Float returns the numeric value and whether it was present.
func (s Sample) Float() (float64, bool) {
	return s.value, s.valid
}

func (s Sample) String() string {
	if !s.valid {
		return "null"
	}
	return fmt.Sprintf("%v", s.value)
}

// Map is the shared DeviceId -> Sample map. Writes are per-key atomic;
// readers observe a consistent value for any single key but not a
// consistent cross-key snapshot, except via Snapshot.
type Map struct {
	mu   sync.RWMutex
	data map[string]Sample
}

// NewMap allocates an empty Map.
func NewMap() *Map {
	return &Map{data: make(map[string]Sample)}
}

// Set atomically updates a single key.
func (m *Map) Set(device string, s Sample) {
	m.mu.Lock()
	m.data[device] = s
	m.mu.Unlock()
}

// Get atomically reads a single key. Absent keys read as Null.
func (m *Map) Get(device string) Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data[device]
}

// Snapshot copies the whole map. Used by the derived-values worker, which
// needs a consistent cross-key view to evaluate its formulas (spec §4.4).
func (m *Map) Snapshot() map[string]Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := make(map[string]Sample, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp
}

// Keys returns every device id currently present in the map. The gateway
// uses this to decide what to publish on each tick.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

// RoutingTable maps a DeviceId to the WorkerId that owns it. It is built
// once at init from the union of every worker's read and write tables and
// is append-only after that (spec §3).
type RoutingTable struct {
	mu     sync.RWMutex
	routes map[string]string
}

// NewRoutingTable allocates an empty RoutingTable.
func NewRoutingTable() *RoutingTable {
	return &RoutingTable{routes: make(map[string]string)}
}

// Add registers device under worker. Re-registering the same device under
// a different worker is a configuration bug and panics: routing must be
// total and unambiguous before any worker starts.
func (rt *RoutingTable) Add(device, worker string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if existing, ok := rt.routes[device]; ok && existing != worker {
		panic(fmt.Sprintf("device %q already routed to %q, cannot also route to %q", device, existing, worker))
	}
	rt.routes[device] = worker
}

// Lookup returns the worker id owning device, or false if unrouted.
func (rt *RoutingTable) Lookup(device string) (string, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	w, ok := rt.routes[device]
	return w, ok
}
