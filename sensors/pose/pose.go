// Package pose provides a 6 DoF pose update sensor measuring the position
// and orientation of a sensor frame p rigidly attached to the IMU body.
package pose

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

// CovDim is the dimension of the pose sensor error substate:
// extrinsic translation and rotation.
const CovDim = 6

// State is the pose sensor calibration substate: the transform from the
// IMU body frame to the sensor frame.
type State struct {
	// Pip is the translation from the IMU frame to the sensor frame
	Pip *mat.VecDense
	// Qip is the rotation from the IMU frame to the sensor frame
	Qip so3.Quat
}

// NewState returns the identity calibration.
func NewState() State {
	return State{
		Pip: mat.NewVecDense(3, nil),
		Qip: so3.Identity(),
	}
}

// Clone implements sensors.State.
func (s State) Clone() sensors.State {
	c := NewState()
	c.Pip.CopyVec(s.Pip)
	c.Qip = s.Qip

	return c
}

// Header returns the CSV column names of the pose sensor state.
func (s State) Header() string {
	return "t, p_ip_x, p_ip_y, p_ip_z, q_ip_w, q_ip_x, q_ip_y, q_ip_z"
}

// ToRow returns the CSV row of the pose sensor state at the given timestamp.
func (s State) ToRow(t float64) string {
	return eskf.Row(t,
		s.Pip.AtVec(0), s.Pip.AtVec(1), s.Pip.AtVec(2),
		s.Qip.W, s.Qip.X, s.Qip.Y, s.Qip.Z)
}

// Measurement is a pose measurement: position and orientation of the
// sensor frame in the sensor reference frame.
type Measurement struct {
	// Pwp is the measured position
	Pwp *mat.VecDense
	// Qwp is the measured orientation
	Qwp so3.Quat
}

// NewMeasurement creates a pose measurement from a position and an
// orientation.
func NewMeasurement(p []float64, q so3.Quat) Measurement {
	return Measurement{
		Pwp: mat.NewVecDense(3, append([]float64(nil), p...)),
		Qwp: q.Normalize(),
	}
}

// Sensor is the pose update sensor.
type Sensor struct {
	sensors.Base
}

// New creates a new pose sensor with the given name.
func New(name string) *Sensor {
	return &Sensor{Base: sensors.NewBase(name, CovDim)}
}

// CovDim returns the dimension of the sensor error substate.
func (s *Sensor) CovDim() int {
	return CovDim
}

// DefaultState returns the identity extrinsic calibration.
func (s *Sensor) DefaultState() sensors.State {
	return NewState()
}

// InitFromMeasurement returns the initial sensor snapshot. A configured
// initial calibration takes precedence; otherwise the extrinsics are
// derived from the first measurement and bounded by a conservative
// covariance.
func (s *Sensor) InitFromMeasurement(z any, c *core.Type) (sensors.Data, error) {
	if d, ok := s.InitialCalib(); ok {
		return d, nil
	}

	m, ok := z.(Measurement)
	if !ok {
		return sensors.Data{}, fmt.Errorf("invalid pose measurement: %T", z)
	}

	st := NewState()
	diff := mat.NewVecDense(3, nil)
	diff.SubVec(m.Pwp, c.State.Pwi)
	st.Pip.MulVec(c.State.Qwi.RotationMatrix().T(), diff)
	st.Qip = c.State.Qwi.Conj().Mul(m.Qwp).Normalize()

	ang := 10 * math.Pi / 180
	cov := matrix.DiagStds([]float64{0.1, 0.1, 0.1, ang, ang, ang})

	return sensors.NewData(st, cov), nil
}

// Predict returns the expected pose measurement given the core state and
// the calibration.
func (s *Sensor) Predict(cs core.StateData, calib sensors.Data) (any, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid pose sensor state: %T", calib.State)
	}

	p := mat.NewVecDense(3, nil)
	p.AddVec(cs.Pwi, cs.Qwi.Rotate(st.Pip))

	return Measurement{Pwp: p, Qwp: cs.Qwi.Mul(st.Qip).Normalize()}, nil
}

// Residual returns the innovation: vector difference on position and the
// small angle quaternion difference 2*vec(q_pred^-1 * q_meas) on
// orientation.
func (s *Sensor) Residual(z, pred any) (*mat.VecDense, error) {
	zm, ok := z.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid pose measurement: %T", z)
	}
	pm, ok := pred.(Measurement)
	if !ok {
		return nil, fmt.Errorf("invalid pose prediction: %T", pred)
	}

	dq := pm.Qwp.Conj().Mul(zm.Qwp).Normalize()
	if dq.W < 0 {
		dq = so3.NewQuat(-dq.W, -dq.X, -dq.Y, -dq.Z)
	}

	return mat.NewVecDense(6, []float64{
		zm.Pwp.AtVec(0) - pm.Pwp.AtVec(0),
		zm.Pwp.AtVec(1) - pm.Pwp.AtVec(1),
		zm.Pwp.AtVec(2) - pm.Pwp.AtVec(2),
		2 * dq.X, 2 * dq.Y, 2 * dq.Z,
	}), nil
}

// Jacobian returns the measurement Jacobian with respect to the stacked
// error state [core; p_ip; theta_ip].
func (s *Sensor) Jacobian(cs core.StateData, calib sensors.Data) (*mat.Dense, error) {
	st, ok := calib.State.(State)
	if !ok {
		return nil, fmt.Errorf("invalid pose sensor state: %T", calib.State)
	}

	r := cs.Qwi.RotationMatrix()
	h := mat.NewDense(6, core.ErrDim+CovDim, nil)

	// position rows
	matrix.SetBlock(h, 0, core.OffPos, matrix.Eye(3))

	rsk := &mat.Dense{}
	rsk.Mul(r, so3.Skew(st.Pip))
	rsk.Scale(-1, rsk)
	matrix.SetBlock(h, 0, core.OffAtt, rsk)
	matrix.SetBlock(h, 0, core.ErrDim, r)

	// orientation rows
	rip := st.Qip.RotationMatrix()
	ript := &mat.Dense{}
	ript.CloneFrom(rip.T())
	matrix.SetBlock(h, 3, core.OffAtt, ript)
	matrix.SetBlock(h, 3, core.ErrDim+3, matrix.Eye(3))

	return h, nil
}

// Boxplus applies the extrinsic error correction: translation adds,
// rotation composes with Exp of the angle error.
func (s *Sensor) Boxplus(calib sensors.Data, dx mat.Vector) (sensors.Data, error) {
	st, ok := calib.State.(State)
	if !ok {
		return sensors.Data{}, fmt.Errorf("invalid pose sensor state: %T", calib.State)
	}
	if dx.Len() != CovDim {
		return sensors.Data{}, fmt.Errorf("invalid correction dimension: %d", dx.Len())
	}

	out := calib.Clone()
	ns := NewState()
	for i := 0; i < 3; i++ {
		ns.Pip.SetVec(i, st.Pip.AtVec(i)+dx.AtVec(i))
	}

	dtheta := mat.NewVecDense(3, []float64{dx.AtVec(3), dx.AtVec(4), dx.AtVec(5)})
	ns.Qip = st.Qip.Mul(so3.Exp(dtheta)).Normalize()
	out.State = ns

	return out, nil
}
