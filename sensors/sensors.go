// Package sensors provides the contract every update sensor plugs into
// and the shared Kalman correction machinery: innovation, chi-square
// outlier gate and Joseph form covariance update.
package sensors

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
)

// State is a sensor nominal substate, e.g. the extrinsic calibration of a
// pose sensor. Implementations provide the CSV row contract.
type State interface {
	eskf.RowMarshaler
	// Clone returns a deep copy of the substate
	Clone() State
}

// Data is a sensor nominal and covariance snapshot as stored in buffer
// entries: the substate, its covariance block and the cross covariance
// with the core error state.
type Data struct {
	// State is the sensor nominal substate
	State State
	// Cov is the k x k sensor covariance block
	Cov *mat.SymDense
	// CoreCross is the 15 x k cross covariance with the core error state
	CoreCross *mat.Dense
}

// NewData returns a snapshot of the given substate and covariance with a
// zero core cross covariance.
func NewData(s State, cov mat.Symmetric) Data {
	k := cov.SymmetricDim()
	c := mat.NewSymDense(k, nil)
	c.CopySym(cov)

	return Data{
		State:     s.Clone(),
		Cov:       c,
		CoreCross: mat.NewDense(core.ErrDim, k, nil),
	}
}

// Clone returns a deep copy of the snapshot.
func (d Data) Clone() Data {
	c := mat.NewSymDense(d.Cov.SymmetricDim(), nil)
	c.CopySym(d.Cov)

	x := &mat.Dense{}
	x.CloneFrom(d.CoreCross)

	return Data{State: d.State.Clone(), Cov: c, CoreCross: x}
}

// Updater is implemented by every update sensor. The filter logic treats
// updaters as opaque capability sets: predicting a measurement, its
// Jacobian with respect to the stacked error state [core; sensor],
// forming the innovation and applying the sensor substate correction.
type Updater interface {
	eskf.Sensor

	// CovDim returns the dimension of the sensor error substate
	CovDim() int
	// MeasDim returns the measurement dimension
	MeasDim() int
	// R returns the measurement noise covariance
	R() *mat.SymDense
	// SetR sets the measurement noise covariance
	SetR(r mat.Symmetric) error
	// ConstRefToNav reports whether the sensor reference frame is rigidly
	// attached to the navigation frame
	ConstRefToNav() bool
	// SetConstRefToNav sets the reference frame attachment flag
	SetConstRefToNav(v bool)
	// Gate returns the chi-square outlier gate of the sensor
	Gate() *Gate
	// SetInitialCalib sets the initial substate and covariance used the
	// first time the sensor is initialized
	SetInitialCalib(d Data)
	// DefaultState returns the identity calibration substate
	DefaultState() State
	// InitFromMeasurement produces the initial sensor snapshot for the
	// first measurement z given the current core snapshot. A configured
	// initial calibration takes precedence over the measurement.
	InitFromMeasurement(z any, c *core.Type) (Data, error)
	// Predict returns the expected measurement h(x, s)
	Predict(s core.StateData, calib Data) (any, error)
	// Residual returns the innovation z boxminus pred
	Residual(z, pred any) (*mat.VecDense, error)
	// Jacobian returns the measurement Jacobian with respect to the
	// stacked error state, sized MeasDim x (15 + CovDim)
	Jacobian(s core.StateData, calib Data) (*mat.Dense, error)
	// Boxplus applies the sensor part of the error correction
	Boxplus(calib Data, dx mat.Vector) (Data, error)
}

// Base carries the configuration shared by all update sensors. Concrete
// sensors embed it and provide the measurement model on top.
type Base struct {
	name          string
	measDim       int
	r             *mat.SymDense
	constRefToNav bool
	gate          *Gate
	initial       *Data
}

// NewBase returns a sensor base with the given name and measurement
// dimension, an identity measurement noise and the default outlier gate.
func NewBase(name string, measDim int) Base {
	r := mat.NewSymDense(measDim, nil)
	for i := 0; i < measDim; i++ {
		r.SetSym(i, i, 1.0)
	}

	return Base{
		name:    name,
		measDim: measDim,
		r:       r,
		gate:    NewGate(DefaultAlpha),
	}
}

// Name returns the sensor name.
func (b *Base) Name() string {
	return b.name
}

// MeasDim returns the measurement dimension.
func (b *Base) MeasDim() int {
	return b.measDim
}

// R returns a copy of the measurement noise covariance.
func (b *Base) R() *mat.SymDense {
	r := mat.NewSymDense(b.measDim, nil)
	r.CopySym(b.r)

	return r
}

// SetR sets the measurement noise covariance.
// It returns error if the dimension does not match the measurement.
func (b *Base) SetR(r mat.Symmetric) error {
	if r.SymmetricDim() != b.measDim {
		return fmt.Errorf("invalid measurement noise dimension: %d", r.SymmetricDim())
	}
	b.r.CopySym(r)

	return nil
}

// ConstRefToNav reports whether the sensor reference frame is rigidly
// attached to the navigation frame.
func (b *Base) ConstRefToNav() bool {
	return b.constRefToNav
}

// SetConstRefToNav sets the reference frame attachment flag.
func (b *Base) SetConstRefToNav(v bool) {
	b.constRefToNav = v
}

// Gate returns the chi-square outlier gate of the sensor.
func (b *Base) Gate() *Gate {
	return b.gate
}

// SetInitialCalib sets the initial substate and covariance.
func (b *Base) SetInitialCalib(d Data) {
	c := d.Clone()
	b.initial = &c
}

// InitialCalib returns the configured initial calibration, if any.
func (b *Base) InitialCalib() (Data, bool) {
	if b.initial == nil {
		return Data{}, false
	}
	return b.initial.Clone(), true
}
