// Package attitude provides an orientation only update sensor, e.g. a
// magnetometer derived heading or an external attitude reference.
package attitude

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/matrix"
	"github.com/milosgajdos/go-eskf/sensors"
	"github.com/milosgajdos/go-eskf/so3"
)

// CovDim is the dimension of the attitude sensor error substate.
const CovDim = 3

// State is the attitude sensor calibration substate: the rotation from
// the IMU frame to the sensor frame.
type State struct {
	// Qip is the rotation from the IMU frame to the sensor frame
	Qip so3.Quat
}

// NewState returns the identity calibration.
func NewState() State {
	return State{Qip: so3.Identity()}
}

// Clone implements sensors.State.
func (s State) Clone() sensors.State {
	return State{Qip: s.Qip}
}

// Header returns the CSV column names of the attitude sensor state.
func (s State) Header() string {
	return "t, q_ip_w, q_ip_x, q_ip_y, q_ip_z"
}

// ToRow returns the CSV row of the attitude sensor state at the given
// timestamp.
func (s State) ToRow(t float64) string {
	return eskf.Row(t, s.Qip.W, s.Qip.X, s.Qip.Y, s.Qip.Z)
}

// Measurement is an attitude measurement: orientation of the sensor frame
// in the sensor reference frame.
type Measurement struct {
	// Qwp is the measured orientation
	Qwp so3.Quat
}

// NewMeasurement creates an attitude measurement.
func NewMeasurement(q so3.Quat) Measurement {
	return Measurement{Qwp: q.Normalize()}
}

// Sensor is the attitude update sensor.
type Sensor struct {
	sensors.Base
}

// New creates a new attitude sensor with the given name.
func New(name string) *Sensor {
	return &Sensor{Base: sensors.NewBase(name, CovDim)}
}

// CovDim returns the dimension of the sensor error substate.
func (s *Sensor) CovDim() int {
	return CovDim
}

// DefaultState returns the identity extrinsic rotation.
func (s *Sensor) DefaultState() sensors.State {
	return NewState()
}

// InitFromMeasurement returns the initial sensor snapshot. A configured
// initial calibration takes precedence; otherwise the extrinsic rotation
// is derived from the first measurement.
func (s *Sensor) InitFromMeasurement(z any, c *core.Type) (sensors.Data, error) {
	if d, ok := s.InitialCalib(); ok {
		return d, nil
	}

	m, ok := z.(Measurement)
	if !ok {
		return sensors.Data{}, fmt.Errorf("invalid attitude measurement: %T", z)
	}

	st := NewState()
	st.Qip = c.State.Qwi.Conj().Mul(m.Qwp).Normalize()

	ang := 10 * math.Pi / 180

	return sensors.NewData(st, matrix.DiagStds([]float64{ang, ang, ang})), nil
}

// Predict returns the expected attitude measurement.
func (s *Sensor) Predict(cs core.StateData, calib sensors.Data) (any, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid attitude sensor state: %T", calib.State)
	}

	return Measurement{Qwp: cs.Qwi.Mul(st.Qip).Normalize()}, nil
}

// Residual returns the small angle quaternion innovation
// 2*vec(q_pred^-1 * q_meas).
func (s *Sensor) Residual(z, pred any) (*mat.VecDense, error) {
	zm, ok := z.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid attitude measurement: %T", z)
	}
	pm, ok := pred.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid attitude prediction: %T", pred)
	}

	dq := pm.Qwp.Conj().Mul(zm.Qwp).Normalize()
	if dq.W < 0 {
		dq = so3.NewQuat(-dq.W, -dq.X, -dq.Y, -dq.Z)
	}

	return mat.NewVecDense(3, []float64{2 * dq.X, 2 * dq.Y, 2 * dq.Z}), nil
}

// Jacobian returns the measurement Jacobian with respect to the stacked
// error state [core; theta_ip].
func (s *Sensor) Jacobian(cs core.StateData, calib sensors.Data) (*mat.Dense, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid attitude sensor state: %T", calib.State)
	}

	h := mat.NewDense(3, core.ErrDim+CovDim, nil)

	ript := &mat.Dense{}
	ript.CloneFrom(st.Qip.RotationMatrix().T())
	matrix.SetBlock(h, 0, core.OffAtt, ript)
	matrix.SetBlock(h, 0, core.ErrDim, matrix.Eye(3))

	return h, nil
}

// Boxplus composes the extrinsic rotation with Exp of the angle error.
func (s *Sensor) Boxplus(calib sensors.Data, dx mat.Vector) (sensors.Data, error) {
	st, ok := calib.State.(State)
	if !ok {
		return sensors.Data{}, fmt.Errorf("invalid attitude sensor state: %T", calib.State)
	}
	if dx.Len() != CovDim {
		return sensors.Data{}, fmt.Errorf("invalid correction dimension: %d", dx.Len())
	}

	out := calib.Clone()
	dtheta := mat.NewVecDense(3, []float64{dx.AtVec(0), dx.AtVec(1), dx.AtVec(2)})
	out.State = State{Qip: st.Qip.Mul(so3.Exp(dtheta)).Normalize()}

	return out, nil
}
