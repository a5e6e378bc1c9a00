// Package position provides a 3 DoF position update sensor, e.g. a GNSS
// antenna or a motion capture marker rigidly attached to the IMU body.
package position

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/matrix"
	"github.com/milosgajdos/go-eskf/sensors"
	"github.com/milosgajdos/go-eskf/so3"
)

// CovDim is the dimension of the position sensor error substate.
const CovDim = 3

// State is the position sensor calibration substate: the lever arm from
// the IMU frame to the measured point.
type State struct {
	// Pip is the translation from the IMU frame to the measured point
	Pip *mat.VecDense
}

// NewState returns the zero lever arm calibration.
func NewState() State {
	return State{Pip: mat.NewVecDense(3, nil)}
}

// Clone implements sensors.State.
func (s State) Clone() sensors.State {
	c := NewState()
	c.Pip.CopyVec(s.Pip)

	return c
}

// Header returns the CSV column names of the position sensor state.
func (s State) Header() string {
	return "t, p_ip_x, p_ip_y, p_ip_z"
}

// ToRow returns the CSV row of the position sensor state at the given
// timestamp.
func (s State) ToRow(t float64) string {
	return eskf.Row(t, s.Pip.AtVec(0), s.Pip.AtVec(1), s.Pip.AtVec(2))
}

// Measurement is a position measurement of the sensor point in the
// sensor reference frame.
type Measurement struct {
	// Pwp is the measured position
	Pwp *mat.VecDense
}

// NewMeasurement creates a position measurement.
func NewMeasurement(p []float64) Measurement {
	return Measurement{Pwp: mat.NewVecDense(3, append([]float64(nil), p...))}
}

// Sensor is the position update sensor.
type Sensor struct {
	sensors.Base
}

// New creates a new position sensor with the given name.
func New(name string) *Sensor {
	return &Sensor{Base: sensors.NewBase(name, CovDim)}
}

// CovDim returns the dimension of the sensor error substate.
func (s *Sensor) CovDim() int {
	return CovDim
}

// DefaultState returns the zero lever arm calibration.
func (s *Sensor) DefaultState() sensors.State {
	return NewState()
}

// InitFromMeasurement returns the initial sensor snapshot. A configured
// initial calibration takes precedence; otherwise the lever arm starts at
// zero with a conservative covariance.
func (s *Sensor) InitFromMeasurement(z any, c *core.Type) (sensors.Data, error) {
	if d, ok := s.InitialCalib(); ok {
		return d, nil
	}

	if _, ok := z.(Measurement); !ok {
		return sensors.Data{}, fmt.Errorf("invalid position measurement: %T", z)
	}

	return sensors.NewData(NewState(), matrix.DiagStds([]float64{0.1, 0.1, 0.1})), nil
}

// Predict returns the expected position measurement.
func (s *Sensor) Predict(cs core.StateData, calib sensors.Data) (any, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid position sensor state: %T", calib.State)
	}

	p := mat.NewVecDense(3, nil)
	p.AddVec(cs.Pwi, cs.Qwi.Rotate(st.Pip))

	return Measurement{Pwp: p}, nil
}

// Residual returns the innovation z - h.
func (s *Sensor) Residual(z, pred any) (*mat.VecDense, error) {
	zm, ok := z.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid position measurement: %T", z)
	}
	pm, ok := pred.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid position prediction: %T", pred)
	}

	y := mat.NewVecDense(3, nil)
	y.SubVec(zm.Pwp, pm.Pwp)

	return y, nil
}

// Jacobian returns the measurement Jacobian with respect to the stacked
// error state [core; p_ip].
func (s *Sensor) Jacobian(cs core.StateData, calib sensors.Data) (*mat.Dense, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid position sensor state: %T", calib.State)
	}

	r := cs.Qwi.RotationMatrix()
	h := mat.NewDense(3, core.ErrDim+CovDim, nil)

	matrix.SetBlock(h, 0, core.OffPos, matrix.Eye(3))

	rsk := &mat.Dense{}
	rsk.Mul(r, so3.Skew(st.Pip))
	rsk.Scale(-1, rsk)
	matrix.SetBlock(h, 0, core.OffAtt, rsk)
	matrix.SetBlock(h, 0, core.ErrDim, r)

	return h, nil
}

// Boxplus applies the lever arm error correction.
func (s *Sensor) Boxplus(calib sensors.Data, dx mat.Vector) (sensors.Data, error) {
	st, ok := calib.State.(State)
	if !ok {
		return sensors.Data{}, fmt.Errorf("invalid position sensor state: %T", calib.State)
	}
	if dx.Len() != CovDim {
		return sensors.Data{}, fmt.Errorf("invalid correction dimension: %d", dx.Len())
	}

	out := calib.Clone()
	ns := NewState()
	for i := 0; i < 3; i++ {
		ns.Pip.SetVec(i, st.Pip.AtVec(i)+dx.AtVec(i))
	}
	out.State = ns

	return out, nil
}
