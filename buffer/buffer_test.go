package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
)

type fakeSensor string

func (s fakeSensor) Name() string { return string(s) }

var (
	imuS  = fakeSensor("IMU")
	poseS = fakeSensor("Pose")
)

func meas(t float64, s eskf.Sensor) Entry {
	return Entry{Stamp: StampFromSec(t), Sensor: s, Kind: Measurement}
}

func coreState(t float64, s eskf.Sensor) Entry {
	return Entry{
		Stamp:  StampFromSec(t),
		Sensor: s,
		Kind:   CoreState,
		Core:   core.NewType(core.NewStateData(), nil),
		Meta:   Metadata{Checkpoint: true},
	}
}

func sensorState(t float64, s eskf.Sensor) Entry {
	return Entry{Stamp: StampFromSec(t), Sensor: s, Kind: SensorState, Meta: Metadata{Checkpoint: true}}
}

func TestAddEntrySorted(t *testing.T) {
	assert := assert.New(t)

	b := New(10)
	assert.True(b.IsEmpty())

	idx, ooo, err := b.AddEntrySorted(meas(1.0, imuS))
	assert.NoError(err)
	assert.False(ooo)
	assert.Equal(0, idx)

	idx, ooo, err = b.AddEntrySorted(meas(2.0, imuS))
	assert.NoError(err)
	assert.False(ooo)
	assert.Equal(1, idx)

	// late arrival is flagged out of order and inserted in time order
	idx, ooo, err = b.AddEntrySorted(meas(1.5, poseS))
	assert.NoError(err)
	assert.True(ooo)
	assert.Equal(1, idx)

	e, ok := b.EntryAt(1)
	assert.True(ok)
	assert.True(e.Meta.OutOfOrderOrigin)

	assert.True(b.IsSorted())
	assert.Equal(3, b.Len())
}

func TestEqualStampOrder(t *testing.T) {
	assert := assert.New(t)

	b := New(10)
	b.AddEntrySorted(meas(1.0, imuS))

	// equal stamps keep arrival order and are not out of order
	idx, ooo, err := b.AddEntrySorted(meas(1.0, poseS))
	assert.NoError(err)
	assert.False(ooo)
	assert.Equal(1, idx)

	first, _ := b.EntryAt(0)
	second, _ := b.EntryAt(1)
	assert.Equal(imuS, first.Sensor.(fakeSensor))
	assert.Equal(poseS, second.Sensor.(fakeSensor))
	assert.True(first.Before(second))
}

func TestLookups(t *testing.T) {
	assert := assert.New(t)

	b := New(20)

	_, ok := b.LatestEntry()
	assert.False(ok)
	_, ok = b.LatestState()
	assert.False(ok)

	b.AddEntrySorted(meas(1.0, imuS))
	b.AddEntrySorted(coreState(1.0, imuS))
	b.AddEntrySorted(meas(1.5, poseS))
	b.AddEntrySorted(coreState(1.5, poseS))
	b.AddEntrySorted(sensorState(1.5, poseS))
	b.AddEntrySorted(meas(2.0, imuS))
	b.AddEntrySorted(coreState(2.0, imuS))

	e, ok := b.LatestEntry()
	assert.True(ok)
	assert.Equal(CoreState, e.Kind)
	assert.Equal(StampFromSec(2.0), e.Stamp)

	e, ok = b.LatestState()
	assert.True(ok)
	assert.Equal(StampFromSec(2.0), e.Stamp)

	e, ok = b.OldestState()
	assert.True(ok)
	assert.Equal(StampFromSec(1.0), e.Stamp)

	e, _, ok = b.LatestSensorHandleState(poseS)
	assert.True(ok)
	assert.Equal(SensorState, e.Kind)
	assert.Equal(StampFromSec(1.5), e.Stamp)

	e, ok = b.LatestSensorHandleMeasurement(imuS)
	assert.True(ok)
	assert.Equal(StampFromSec(2.0), e.Stamp)

	ms := b.SensorHandleMeasurements(imuS)
	assert.Len(ms, 2)

	e, idx, ok := b.ClosestStateBefore(StampFromSec(1.7))
	assert.True(ok)
	assert.Equal(StampFromSec(1.5), e.Stamp)
	assert.True(idx >= 0)

	_, _, ok = b.ClosestStateBefore(StampFromSec(0.5))
	assert.False(ok)
}

func TestDeleteStatesStartingAt(t *testing.T) {
	assert := assert.New(t)

	b := New(20)
	b.AddEntrySorted(meas(1.0, imuS))
	b.AddEntrySorted(coreState(1.0, imuS))
	b.AddEntrySorted(meas(1.5, poseS))
	b.AddEntrySorted(coreState(1.5, poseS))
	b.AddEntrySorted(sensorState(1.5, poseS))
	b.AddEntrySorted(meas(2.0, imuS))
	b.AddEntrySorted(coreState(2.0, imuS))

	// drop derived states after the first checkpoint, keep measurements
	b.DeleteStatesStartingAt(2)
	assert.Equal(4, b.Len())

	for i := 2; i < b.Len(); i++ {
		e, _ := b.EntryAt(i)
		assert.Equal(Measurement, e.Kind)
	}
	assert.True(b.IsSorted())
}

func TestCapacityPruning(t *testing.T) {
	assert := assert.New(t)

	b := New(4)
	b.AddEntrySorted(Entry{Stamp: StampFromSec(0), Sensor: imuS, Kind: Init, Core: core.NewType(core.NewStateData(), nil)})

	for i := 1; i <= 10; i++ {
		ts := float64(i)
		_, _, err := b.AddEntrySorted(meas(ts, imuS))
		assert.NoError(err)
		_, _, err = b.AddEntrySorted(coreState(ts, imuS))
		assert.NoError(err)
	}

	// capacity is enforced and the init entry survives pruning
	assert.Equal(4, b.Len())
	e, _ := b.EntryAt(0)
	assert.Equal(Init, e.Kind)

	// the newest core state is intact
	latest, ok := b.LatestState()
	assert.True(ok)
	assert.Equal(StampFromSec(10), latest.Stamp)
}

func TestCapacityProtected(t *testing.T) {
	assert := assert.New(t)

	// a buffer full of protected entries rejects the insert
	b := New(2)
	b.AddEntrySorted(Entry{Stamp: StampFromSec(0), Sensor: imuS, Kind: Init, Core: core.NewType(core.NewStateData(), nil)})
	b.AddEntrySorted(coreState(1.0, imuS))

	_, _, err := b.AddEntrySorted(meas(0.5, poseS))
	assert.ErrorIs(err, eskf.ErrOutOfCapacity)
	assert.Equal(2, b.Len())
}

func TestKeepLastSensorHandle(t *testing.T) {
	assert := assert.New(t)

	b := New(3)
	b.AddEntrySorted(sensorState(1.0, poseS))
	b.AddEntrySorted(meas(2.0, imuS))
	b.AddEntrySorted(meas(3.0, imuS))
	b.AddEntrySorted(meas(4.0, imuS))

	// the sole pose sensor state outlives older measurements
	e, _ := b.EntryAt(0)
	assert.Equal(SensorState, e.Kind)
	assert.Equal(3, b.Len())

	b.SetKeepLastSensorHandle(false)
	b.AddEntrySorted(meas(5.0, imuS))
	e, _ = b.EntryAt(0)
	assert.Equal(Measurement, e.Kind)
}

func TestReset(t *testing.T) {
	assert := assert.New(t)

	b := New(10)
	b.AddEntrySorted(meas(1.0, imuS))
	b.AddEntrySorted(meas(2.0, imuS))
	assert.Equal(2, b.Len())

	b.Reset()
	assert.True(b.IsEmpty())
	_, ok := b.LatestEntry()
	assert.False(ok)
}

func TestMarkFlags(t *testing.T) {
	assert := assert.New(t)

	b := New(10)
	idx, _, _ := b.AddEntrySorted(meas(1.0, poseS))

	b.MarkRejected(idx)
	e, _ := b.EntryAt(idx)
	assert.True(e.Meta.Rejected)

	b.MarkNumericFailure(idx)
	e, _ = b.EntryAt(idx)
	assert.True(e.Meta.NumericFailure)
}
