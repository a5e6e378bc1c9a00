// Package fusion provides the filter logic: measurement dispatch, filter
// initialization, out of order detection and the repropagation sweep that
// replays buffered measurements from a prior checkpoint.
package fusion

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/buffer"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/sensors"
	"github.com/milosgajdos/go-eskf/sensors/imu"
	"github.com/milosgajdos/go-eskf/so3"
)

// State is the filter logic state.
type State int

const (
	// Uninitialized means Initialize has not been called yet; measurements
	// are buffered but not processed
	Uninitialized State = iota
	// Initialized means measurements are processed on arrival
	Initialized
	// Repropagating means an out of order measurement is being replayed
	Repropagating
)

// String implements the Stringer interface.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initialized:
		return "Initialized"
	case Repropagating:
		return "Repropagating"
	}
	return "Unknown"
}

// CoreLogic owns the measurement buffer and dispatches measurements:
// propagation sensor entries advance the core state, update sensor entries
// run the Kalman correction, out of order entries trigger a repropagation.
// CoreLogic is single threaded; measurements from concurrent producers
// must be funneled through a serializing ingress.
type CoreLogic struct {
	coreStates *core.CoreState
	buf        *buffer.Buffer
	updaters   map[eskf.Sensor]sensors.Updater
	state      State
}

// New creates the filter logic around the given core state definition.
// It returns error if no propagation sensor is configured.
func New(cs *core.CoreState) (*CoreLogic, error) {
	if cs == nil || cs.PropagationSensor() == nil {
		return nil, fmt.Errorf("no propagation sensor configured")
	}

	return &CoreLogic{
		coreStates: cs,
		buf:        buffer.New(buffer.DefaultMaxSize),
		updaters:   make(map[eskf.Sensor]sensors.Updater),
	}, nil
}

// RegisterSensor registers an update sensor with the filter. Measurements
// from unregistered sensors are rejected.
func (l *CoreLogic) RegisterSensor(u sensors.Updater) error {
	if u == nil {
		return fmt.Errorf("invalid sensor")
	}
	l.updaters[u] = u

	return nil
}

// Buffer returns the measurement buffer for read access and configuration.
func (l *CoreLogic) Buffer() *buffer.Buffer {
	return l.buf
}

// CoreStates returns the core state definition.
func (l *CoreLogic) CoreStates() *core.CoreState {
	return l.coreStates
}

// State returns the filter logic state.
func (l *CoreLogic) State() State {
	return l.state
}

// Initialized reports whether Initialize has been called.
func (l *CoreLogic) Initialized() bool {
	return l.state != Uninitialized
}

// Reset drops all buffer entries and returns the filter to the
// uninitialized state.
func (l *CoreLogic) Reset() {
	l.buf.Reset()
	l.state = Uninitialized
}

// Initialize seeds the core state with the given position and attitude,
// zero velocity, zero biases and the configured initial covariance. The
// init checkpoint is anchored at the newest buffered propagation sensor
// measurement. It returns error if no propagation sensor measurement has
// been buffered yet.
func (l *CoreLogic) Initialize(p0 mat.Vector, q0 so3.Quat) error {
	prop := l.coreStates.PropagationSensor()
	m, ok := l.buf.LatestSensorHandleMeasurement(prop)
	if !ok {
		return fmt.Errorf("no propagation sensor measurement buffered: %w", eskf.ErrNotInitialized)
	}

	init := l.coreStates.InitialState(p0, q0)
	e := buffer.Entry{
		Stamp:  m.Stamp,
		Sensor: prop,
		Kind:   buffer.Init,
		Core:   init,
		Meta:   buffer.Metadata{Checkpoint: true},
	}
	if _, _, err := l.buf.AddEntrySorted(e); err != nil {
		return err
	}
	l.state = Initialized

	return nil
}

// ProcessMeasurement ingests a measurement from sensor s at time t. The
// entry is inserted at its time ordered buffer position; in order entries
// are processed immediately, out of order entries trigger a repropagation
// of all later measurements. Before initialization measurements are
// buffered and Deferred.
func (l *CoreLogic) ProcessMeasurement(s eskf.Sensor, t buffer.Stamp, z any) (eskf.Status, error) {
	prop := l.coreStates.PropagationSensor()
	if s == nil {
		return eskf.Rejected, eskf.ErrUnknownSensor
	}
	if s != prop {
		if _, ok := l.updaters[s]; !ok {
			return eskf.Rejected, fmt.Errorf("%s: %w", s.Name(), eskf.ErrUnknownSensor)
		}
	}

	e := buffer.Entry{Stamp: t, Sensor: s, Kind: buffer.Measurement, Data: z}

	idx, outOfOrder, err := l.buf.AddEntrySorted(e)
	if err != nil {
		return eskf.Rejected, err
	}

	if l.state == Uninitialized {
		return eskf.Deferred, nil
	}

	if !outOfOrder {
		return l.processEntryAt(idx)
	}

	return l.repropagate(idx)
}

// repropagate replays all measurements from the checkpoint preceding the
// out of order entry at index idx. Derived state entries after the
// checkpoint are dropped, measurement entries are preserved and reapplied
// in order. The returned status belongs to the out of order measurement.
func (l *CoreLogic) repropagate(idx int) (eskf.Status, error) {
	origin, ok := l.buf.EntryAt(idx)
	if !ok {
		return eskf.Rejected, fmt.Errorf("out of order entry vanished")
	}

	_, restartIdx, ok := l.buf.ClosestStateBefore(origin.Stamp)
	if !ok {
		// older than the oldest checkpoint, nothing to replay from
		l.buf.MarkRejected(idx)
		return eskf.Rejected, fmt.Errorf("measurement before oldest checkpoint at %.9f", origin.Stamp.Seconds())
	}

	l.state = Repropagating
	defer func() { l.state = Initialized }()

	l.buf.DeleteStatesStartingAt(restartIdx + 1)

	// snapshot the measurement sequence numbers to replay: processing
	// inserts new derived entries and capacity pruning may shift indices,
	// sequence numbers stay stable
	var seqs []uint64
	for i := restartIdx + 1; i < l.buf.Len(); i++ {
		e, _ := l.buf.EntryAt(i)
		if e.Kind == buffer.Measurement {
			seqs = append(seqs, e.Seq())
		}
	}

	status, err := eskf.Accepted, error(nil)
	for _, q := range seqs {
		i, ok := l.indexOfSeq(q)
		if !ok {
			continue
		}

		st, perr := l.processEntryAt(i)
		if q == origin.Seq() {
			status, err = st, perr
		}
	}

	return status, err
}

// indexOfSeq returns the current index of the entry with the given
// insertion sequence number.
func (l *CoreLogic) indexOfSeq(seq uint64) (int, bool) {
	for i := 0; i < l.buf.Len(); i++ {
		if e, _ := l.buf.EntryAt(i); e.Seq() == seq {
			return i, true
		}
	}
	return -1, false
}

// processEntryAt applies the measurement entry at index i: propagation for
// the propagation sensor, the Kalman correction for update sensors.
func (l *CoreLogic) processEntryAt(i int) (eskf.Status, error) {
	e, ok := l.buf.EntryAt(i)
	if !ok {
		return eskf.Rejected, fmt.Errorf("invalid buffer index: %d", i)
	}

	if e.Sensor == l.coreStates.PropagationSensor() {
		return l.propagateEntry(i, e)
	}

	return l.updateEntry(i, e)
}

// propagateEntry advances the core state to the stamp of the IMU entry e
// and appends the propagated checkpoint.
func (l *CoreLogic) propagateEntry(i int, e buffer.Entry) (eskf.Status, error) {
	cur, ok := e.Data.(imu.Measurement)
	if !ok {
		return eskf.Rejected, fmt.Errorf("invalid propagation measurement: %T", e.Data)
	}

	prevState, _, ok := l.buf.ClosestStateBefore(e.Stamp)
	if !ok {
		// entry predates the init checkpoint, leave it buffered
		return eskf.Deferred, nil
	}

	prevM := cur
	if pe, ok := l.buf.LatestMeasurementBefore(i, e.Sensor); ok {
		if m, ok := pe.Data.(imu.Measurement); ok {
			prevM = m
		}
	}

	next, err := l.coreStates.Propagate(prevState.Core, prevM, cur, e.Stamp.Sub(prevState.Stamp))
	if err != nil {
		return eskf.Rejected, err
	}

	ne := buffer.Entry{
		Stamp:  e.Stamp,
		Sensor: e.Sensor,
		Kind:   buffer.CoreState,
		Core:   next,
		Meta:   buffer.Metadata{Checkpoint: true},
	}
	if _, _, err := l.buf.AddEntrySorted(ne); err != nil {
		return eskf.Rejected, err
	}

	return eskf.Accepted, nil
}

// updateEntry propagates the core to the stamp of the sensor entry e and
// runs the Kalman correction. On success the post update sensor and core
// snapshots are appended as checkpoints.
func (l *CoreLogic) updateEntry(i int, e buffer.Entry) (eskf.Status, error) {
	u := l.updaters[e.Sensor]
	if u == nil {
		return eskf.Rejected, fmt.Errorf("%s: %w", e.Sensor.Name(), eskf.ErrUnknownSensor)
	}

	prevState, _, ok := l.buf.ClosestStateBefore(e.Stamp)
	if !ok {
		// entry predates the init checkpoint, leave it buffered
		return eskf.Deferred, nil
	}

	// zero order hold on the last IMU reading up to the update stamp
	imuM, haveIMU := imu.Measurement{}, false
	if pe, ok := l.buf.LatestMeasurementBefore(i, l.coreStates.PropagationSensor()); ok {
		if m, ok := pe.Data.(imu.Measurement); ok {
			imuM, haveIMU = m, true
		}
	}
	if !haveIMU {
		return eskf.Deferred, nil
	}

	prior, err := l.coreStates.Propagate(prevState.Core, imuM, imuM, e.Stamp.Sub(prevState.Stamp))
	if err != nil {
		return eskf.Rejected, err
	}

	pe := buffer.Entry{
		Stamp:  e.Stamp,
		Sensor: l.coreStates.PropagationSensor(),
		Kind:   buffer.CoreState,
		Core:   prior,
	}
	if _, _, err := l.buf.AddEntrySorted(pe); err != nil {
		return eskf.Rejected, err
	}

	calib, err := l.sensorCalib(u, e.Data, prior)
	if err != nil {
		return eskf.Rejected, err
	}

	post, postCalib, err := sensors.Update(u, e.Data, prior, calib)
	if err != nil {
		// inserting the propagated state may have pruned an older entry,
		// re-locate the measurement by its sequence number
		j, ok := l.indexOfSeq(e.Seq())
		if !ok {
			return eskf.Rejected, err
		}
		switch {
		case errors.Is(err, eskf.ErrOutlierRejected):
			l.buf.MarkRejected(j)
		case errors.Is(err, eskf.ErrNumericFailure):
			l.buf.MarkNumericFailure(j)
		}
		return eskf.Rejected, err
	}

	se := buffer.Entry{
		Stamp:  e.Stamp,
		Sensor: e.Sensor,
		Kind:   buffer.SensorState,
		Data:   postCalib,
		Meta:   buffer.Metadata{Checkpoint: true},
	}
	if _, _, err := l.buf.AddEntrySorted(se); err != nil {
		return eskf.Rejected, err
	}

	ce := buffer.Entry{
		Stamp:  e.Stamp,
		Sensor: e.Sensor,
		Kind:   buffer.CoreState,
		Core:   post,
		Meta:   buffer.Metadata{Checkpoint: true},
	}
	if _, _, err := l.buf.AddEntrySorted(ce); err != nil {
		return eskf.Rejected, err
	}

	return eskf.Accepted, nil
}

// sensorCalib returns the newest sensor snapshot of u from the buffer or
// initializes one from the measurement z.
func (l *CoreLogic) sensorCalib(u sensors.Updater, z any, prior *core.Type) (sensors.Data, error) {
	if se, _, ok := l.buf.LatestSensorHandleState(u); ok {
		if d, ok := se.Data.(sensors.Data); ok {
			return d, nil
		}
	}

	return u.InitFromMeasurement(z, prior)
}
