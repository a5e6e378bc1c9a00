// Package buffer provides the time ordered measurement and state buffer
// of the filter. The buffer owns all entries, keeps them sorted by
// (timestamp, insertion sequence) and supports the lookups needed for
// out of order measurement handling and repropagation.
package buffer

import (
	"sort"

	eskf "github.com/milosgajdos/go-eskf"
)

// DefaultMaxSize is the buffer capacity used when none is configured.
const DefaultMaxSize = 2000

// Buffer is a bounded, time ordered container of entries. Index lookups
// are O(log n) on the sorted backing slice, tail appends are amortized
// O(1). The zero value is not usable, use New.
type Buffer struct {
	data []Entry
	max  int
	// keepLastSensorHandle protects the newest sensor state per handle
	// from capacity pruning
	keepLastSensorHandle bool
	seq                  uint64
}

// New creates a new empty buffer with the given capacity. A non-positive
// size falls back to DefaultMaxSize.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultMaxSize
	}

	return &Buffer{
		max:                  size,
		keepLastSensorHandle: true,
	}
}

// SetMaxSize changes the buffer capacity.
func (b *Buffer) SetMaxSize(size int) {
	if size > 0 {
		b.max = size
	}
}

// MaxSize returns the buffer capacity.
func (b *Buffer) MaxSize() int {
	return b.max
}

// SetKeepLastSensorHandle enables or disables protecting the newest
// sensor state entry per sensor handle from capacity pruning.
func (b *Buffer) SetKeepLastSensorHandle(v bool) {
	b.keepLastSensorHandle = v
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	return len(b.data)
}

// IsEmpty reports whether the buffer holds no entries.
func (b *Buffer) IsEmpty() bool {
	return len(b.data) == 0
}

// Reset releases every entry.
func (b *Buffer) Reset() {
	b.data = nil
	b.seq = 0
}

// AddEntrySorted inserts e at its time ordered position and returns the
// insertion index. The out of order flag is true if an entry with a later
// timestamp already existed. Among equal timestamps the new entry is
// placed last, preserving arrival order.
//
// If the buffer exceeds its capacity the oldest unprotected entry is
// pruned. Protected are Init entries, the newest core state snapshot and,
// with the keep last sensor handle policy, the newest sensor state per
// handle. If pruning would have to evict the entry just inserted the
// insertion fails with ErrOutOfCapacity.
func (b *Buffer) AddEntrySorted(e Entry) (int, bool, error) {
	pos := sort.Search(len(b.data), func(i int) bool {
		return b.data[i].Stamp.After(e.Stamp)
	})
	outOfOrder := pos < len(b.data)

	e.seq = b.seq
	b.seq++
	if outOfOrder && e.Kind == Measurement {
		e.Meta.OutOfOrderOrigin = true
	}

	b.data = append(b.data, Entry{})
	copy(b.data[pos+1:], b.data[pos:])
	b.data[pos] = e

	if len(b.data) <= b.max {
		return pos, outOfOrder, nil
	}

	rm := b.oldestRemovable()
	if rm < 0 || rm == pos {
		// nothing older can go, the inserted entry is the victim
		b.removeAt(pos)
		return -1, outOfOrder, eskf.ErrOutOfCapacity
	}

	b.removeAt(rm)
	if rm < pos {
		pos--
	}

	return pos, outOfOrder, nil
}

// oldestRemovable returns the index of the oldest entry not protected
// from pruning, or -1 if every entry is protected.
func (b *Buffer) oldestRemovable() int {
	newestCore := -1
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].hasCore() {
			newestCore = i
			break
		}
	}

	for i := range b.data {
		e := b.data[i]
		if e.Kind == Init {
			continue
		}
		if i == newestCore {
			continue
		}
		if b.keepLastSensorHandle && e.Kind == SensorState && b.isLastSensorState(i) {
			continue
		}
		return i
	}

	return -1
}

// isLastSensorState reports whether no newer sensor state entry exists
// for the sensor of the entry at index i.
func (b *Buffer) isLastSensorState(i int) bool {
	for j := i + 1; j < len(b.data); j++ {
		if b.data[j].Kind == SensorState && b.data[j].Sensor == b.data[i].Sensor {
			return false
		}
	}
	return true
}

func (b *Buffer) removeAt(i int) {
	b.data = append(b.data[:i], b.data[i+1:]...)
}

// EntryAt returns the entry at index i.
func (b *Buffer) EntryAt(i int) (Entry, bool) {
	if i < 0 || i >= len(b.data) {
		return Entry{}, false
	}
	return b.data[i], true
}

// LatestEntry returns the newest entry overall.
func (b *Buffer) LatestEntry() (Entry, bool) {
	if len(b.data) == 0 {
		return Entry{}, false
	}
	return b.data[len(b.data)-1], true
}

// LatestState returns the newest entry carrying a core state snapshot.
func (b *Buffer) LatestState() (Entry, bool) {
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].hasCore() {
			return b.data[i], true
		}
	}
	return Entry{}, false
}

// OldestState returns the oldest entry carrying a core state snapshot.
func (b *Buffer) OldestState() (Entry, bool) {
	for i := range b.data {
		if b.data[i].hasCore() {
			return b.data[i], true
		}
	}
	return Entry{}, false
}

// LatestInitState returns the newest Init entry.
func (b *Buffer) LatestInitState() (Entry, bool) {
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].Kind == Init {
			return b.data[i], true
		}
	}
	return Entry{}, false
}

// LatestSensorHandleState returns the newest sensor state entry of the
// given sensor together with its index. After a repropagation the newest
// buffer entry may belong to a different sensor, which makes this lookup
// the safe way to read back a sensor result.
func (b *Buffer) LatestSensorHandleState(s eskf.Sensor) (Entry, int, bool) {
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].Kind == SensorState && b.data[i].Sensor == s {
			return b.data[i], i, true
		}
	}
	return Entry{}, -1, false
}

// LatestSensorHandleMeasurement returns the newest measurement entry of
// the given sensor.
func (b *Buffer) LatestSensorHandleMeasurement(s eskf.Sensor) (Entry, bool) {
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].Kind == Measurement && b.data[i].Sensor == s {
			return b.data[i], true
		}
	}
	return Entry{}, false
}

// SensorHandleMeasurements returns all measurement entries of the given
// sensor in buffer order.
func (b *Buffer) SensorHandleMeasurements(s eskf.Sensor) []Entry {
	var out []Entry
	for i := range b.data {
		if b.data[i].Kind == Measurement && b.data[i].Sensor == s {
			out = append(out, b.data[i])
		}
	}
	return out
}

// ClosestStateBefore returns the newest entry carrying a core state
// snapshot with a stamp not after t, together with its index. It is the
// repropagation restart point for a measurement at t.
func (b *Buffer) ClosestStateBefore(t Stamp) (Entry, int, bool) {
	for i := len(b.data) - 1; i >= 0; i-- {
		if b.data[i].hasCore() && !b.data[i].Stamp.After(t) {
			return b.data[i], i, true
		}
	}
	return Entry{}, -1, false
}

// LatestMeasurementBefore returns the newest measurement entry of the
// given sensor that orders strictly before index idx.
func (b *Buffer) LatestMeasurementBefore(idx int, s eskf.Sensor) (Entry, bool) {
	if idx > len(b.data) {
		idx = len(b.data)
	}
	for i := idx - 1; i >= 0; i-- {
		if b.data[i].Kind == Measurement && b.data[i].Sensor == s {
			return b.data[i], true
		}
	}
	return Entry{}, false
}

// DeleteStatesStartingAt removes every derived state entry (core state
// and sensor state snapshots) at index idx or later. Measurement and Init
// entries are preserved so a repropagation can replay them.
func (b *Buffer) DeleteStatesStartingAt(idx int) {
	if idx < 0 {
		idx = 0
	}
	out := b.data[:idx]
	for i := idx; i < len(b.data); i++ {
		if !b.data[i].isState() {
			out = append(out, b.data[i])
		}
	}
	b.data = out
}

// MarkRejected flags the entry at index i as rejected.
func (b *Buffer) MarkRejected(i int) {
	if i >= 0 && i < len(b.data) {
		b.data[i].Meta.Rejected = true
	}
}

// MarkNumericFailure flags the entry at index i as rolled back after a
// numerical failure.
func (b *Buffer) MarkNumericFailure(i int) {
	if i >= 0 && i < len(b.data) {
		b.data[i].Meta.NumericFailure = true
	}
}

// IsSorted reports whether all entries are ordered by
// (stamp, insertion sequence).
func (b *Buffer) IsSorted() bool {
	for i := 1; i < len(b.data); i++ {
		if b.data[i].Before(b.data[i-1]) {
			return false
		}
	}
	return true
}
