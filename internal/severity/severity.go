// Package severity defines the three-level fault taxonomy used across the
// supervisor and its workers, and the bounded channel faults travel over.
package severity

import "fmt"

// Severity is the fault taxonomy from spec §3/§7. There are exactly three
// levels; nothing is added to this enum without a design decision.
type Severity int

const (
	Warning Severity = iota
	Error
	Critical
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Critical:
		return "CRITICAL"
	default:
		return fmt.Sprintf("SEVERITY(%d)", int(s))
	}
}

// Record is a single fault delivered over the error channel.
type Record struct {
	Message  string
	Severity Severity
}

func (r Record) String() string {
	return fmt.Sprintf("%v: %v", r.Severity, r.Message)
}

// Warningf builds a Warning-level Record.
func Warningf(format string, args ...interface{}) Record {
	return Record{fmt.Sprintf(format, args...), Warning}
}

// Errorf builds an Error-level Record.
func Errorf(format string, args ...interface{}) Record {
	return Record{fmt.Sprintf(format, args...), Error}
}

// Criticalf builds a Critical-level Record.
func Criticalf(format string, args ...interface{}) Record {
	return Record{fmt.Sprintf(format, args...), Critical}
}

// Capacity is the fixed size of the shared many-producer single-consumer
// error channel (spec §3, §5). A stuck bus cannot swamp the supervisor.
const Capacity = 20

// Channel is the shared, bounded error channel. Producers never block on
// it: Push drops and reports overflow locally rather than waiting for the
// consumer to drain.
type Channel struct {
	c chan Record
}

// NewChannel allocates a Channel with the fixed capacity from spec §3.
func NewChannel() *Channel {
	return &Channel{c: make(chan Record, Capacity)}
}

// Push performs a non-blocking send. It reports false if the channel was
// full and the record was dropped; the caller is expected to log locally
// when that happens (loss of warnings is acceptable, see spec §3).
func (ch *Channel) Push(r Record) bool {
	select {
	case ch.c <- r:
		return true
	default:
		return false
	}
}

// TryRecv performs a non-blocking receive for the supervisor's drain loop.
func (ch *Channel) TryRecv() (Record, bool) {
	select {
	case r := <-ch.c:
		return r, true
	default:
		return Record{}, false
	}
}
