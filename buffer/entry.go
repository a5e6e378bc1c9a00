package buffer

import (
	"fmt"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
)

// Kind classifies a buffer entry.
type Kind int

const (
	// Measurement is a raw sensor measurement entry
	Measurement Kind = iota
	// SensorState is a post-update sensor nominal and calibration snapshot
	SensorState
	// CoreState is a propagated or updated core state snapshot
	CoreState
	// Init marks the filter initialization and carries the seeded core state
	Init
)

// String implements the Stringer interface.
func (k Kind) String() string {
	switch k {
	case Measurement:
		return "Measurement"
	case SensorState:
		return "SensorState"
	case CoreState:
		return "CoreState"
	case Init:
		return "Init"
	}
	return "Unknown"
}

// Metadata carries the entry flags maintained by the filter logic.
type Metadata struct {
	// Checkpoint marks snapshots usable as repropagation restart points
	Checkpoint bool
	// OutOfOrderOrigin marks a measurement that arrived out of order
	OutOfOrderOrigin bool
	// Rejected marks a measurement discarded by the outlier gate or, when
	// it arrived out of order, for predating the oldest core state
	Rejected bool
	// NumericFailure marks a measurement whose update was rolled back
	NumericFailure bool
}

// Entry is a single buffer element. Entries are totally ordered by
// (stamp, insertion sequence), the sequence preserving arrival order
// among equal stamps.
type Entry struct {
	// Stamp is the entry timestamp
	Stamp Stamp
	// Sensor is the handle of the producing sensor
	Sensor eskf.Sensor
	// Kind classifies the payload
	Kind Kind
	// Core is the core snapshot for CoreState and Init entries
	Core *core.Type
	// Data is the raw measurement of Measurement entries or the sensor
	// snapshot of SensorState entries
	Data any
	// Meta are the entry flags
	Meta Metadata

	seq uint64
}

// Seq returns the insertion sequence number assigned by the buffer.
func (e Entry) Seq() uint64 {
	return e.seq
}

// Before reports whether e orders strictly before o by
// (stamp, insertion sequence).
func (e Entry) Before(o Entry) bool {
	if e.Stamp != o.Stamp {
		return e.Stamp.Before(o.Stamp)
	}
	return e.seq < o.seq
}

// hasCore reports whether the entry carries a core state snapshot.
func (e Entry) hasCore() bool {
	return (e.Kind == CoreState || e.Kind == Init) && e.Core != nil
}

// isState reports whether the entry is a derived state snapshot that a
// repropagation rebuilds.
func (e Entry) isState() bool {
	return e.Kind == CoreState || e.Kind == SensorState
}

// String implements the Stringer interface.
func (e Entry) String() string {
	name := "<nil>"
	if e.Sensor != nil {
		name = e.Sensor.Name()
	}
	return fmt.Sprintf("%s@%.9f[%s]", e.Kind, e.Stamp.Seconds(), name)
}
