// Package core provides the nominal and error state of the filter and
// the IMU driven strapdown propagation of both.
package core

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/matrix"
	"github.com/milosgajdos/go-eskf/sensors/imu"
	"github.com/milosgajdos/go-eskf/so3"
)

// CoreState is the core state definition: the propagation sensor handle,
// the IMU noise model and the gravity vector. It is shared by the filter
// logic and referenced by every propagation step.
type CoreState struct {
	// propagation is the distinguished propagation sensor handle
	propagation eskf.Sensor
	// nw, nbw, na, nba are continuous time noise standard deviations
	nw, nbw, na, nba *mat.VecDense
	// gravity is the gravity vector in the navigation frame
	gravity *mat.VecDense
	// initCov is the covariance seeded on initialization
	initCov *mat.SymDense
}

// New creates a new core state definition with standard gravity and a
// conservative initial covariance. The noise model and the propagation
// sensor must be configured before the first propagation.
func New() *CoreState {
	initStd := []float64{
		0, 0, 0, // position is seeded exactly
		0.3, 0.3, 0.3,
		0.05, 0.05, 0.05,
		0.01, 0.01, 0.01,
		0.05, 0.05, 0.05,
	}

	return &CoreState{
		nw:      mat.NewVecDense(3, nil),
		nbw:     mat.NewVecDense(3, nil),
		na:      mat.NewVecDense(3, nil),
		nba:     mat.NewVecDense(3, nil),
		gravity: mat.NewVecDense(3, []float64{0, 0, -9.81}),
		initCov: matrix.DiagStds(initStd),
	}
}

// SetNoiseStd configures the continuous time IMU noise standard deviations:
// angular rate white noise, gyroscope bias random walk, acceleration white
// noise and accelerometer bias random walk.
func (c *CoreState) SetNoiseStd(nw, nbw, na, nba mat.Vector) {
	c.nw.CloneFromVec(nw)
	c.nbw.CloneFromVec(nbw)
	c.na.CloneFromVec(na)
	c.nba.CloneFromVec(nba)
}

// SetPropagationSensor registers s as the propagation sensor handle.
func (c *CoreState) SetPropagationSensor(s eskf.Sensor) {
	c.propagation = s
}

// PropagationSensor returns the propagation sensor handle.
func (c *CoreState) PropagationSensor() eskf.Sensor {
	return c.propagation
}

// SetGravity sets the gravity vector of the navigation frame.
func (c *CoreState) SetGravity(g mat.Vector) {
	c.gravity.CloneFromVec(g)
}

// Gravity returns the gravity vector of the navigation frame.
func (c *CoreState) Gravity() mat.Vector {
	g := &mat.VecDense{}
	g.CloneFromVec(c.gravity)

	return g
}

// SetInitialCovariance sets the covariance seeded on initialization.
// It returns error if the dimension does not match the core error state.
func (c *CoreState) SetInitialCovariance(p mat.Symmetric) error {
	if p.SymmetricDim() != ErrDim {
		return fmt.Errorf("invalid initial covariance dimension: %d", p.SymmetricDim())
	}
	c.initCov.CopySym(p)

	return nil
}

// InitialState returns the core state snapshot seeded by Initialize:
// the given position and attitude, zero velocity, zero biases and the
// configured initial covariance.
func (c *CoreState) InitialState(p0 mat.Vector, q0 so3.Quat) *Type {
	s := NewStateData()
	s.Pwi.CloneFromVec(p0)
	s.Qwi = q0.Normalize()

	return NewType(s, c.initCov)
}

// Propagate advances the core snapshot prev by dt using the previous and
// current IMU readings. The nominal state is integrated with midpoint
// angular velocity and specific force, the covariance with a second order
// truncation of the error state transition. It returns error if dt is
// negative. A zero dt returns an unchanged copy of prev.
func (c *CoreState) Propagate(prev *Type, prevM, curM imu.Measurement, dt float64) (*Type, error) {
	if dt < 0 {
		return nil, fmt.Errorf("negative propagation interval: %f", dt)
	}
	if dt == 0 {
		return prev.Clone(), nil
	}

	s := prev.State

	// midpoint angular velocity, bias corrected
	wMid := mat.NewVecDense(3, nil)
	wMid.AddVec(prevM.Gyro, curM.Gyro)
	wMid.ScaleVec(0.5, wMid)
	wMid.SubVec(wMid, s.Bw)

	dTheta := mat.NewVecDense(3, nil)
	dTheta.ScaleVec(dt, wMid)

	next := NewStateData()
	next.Bw.CopyVec(s.Bw)
	next.Ba.CopyVec(s.Ba)
	next.Qwi = s.Qwi.Mul(so3.Exp(dTheta)).Normalize()

	// bias corrected specific force at both interval ends, rotated with
	// the matching attitude
	aPrev := mat.NewVecDense(3, nil)
	aPrev.SubVec(prevM.Acc, s.Ba)

	aCur := mat.NewVecDense(3, nil)
	aCur.SubVec(curM.Acc, s.Ba)

	accWorld := mat.NewVecDense(3, nil)
	accWorld.AddVec(s.Qwi.Rotate(aPrev), next.Qwi.Rotate(aCur))
	accWorld.ScaleVec(0.5, accWorld)
	accWorld.AddVec(accWorld, c.gravity)

	next.Vwi.AddScaledVec(s.Vwi, dt, accWorld)

	vMid := mat.NewVecDense(3, nil)
	vMid.AddVec(s.Vwi, next.Vwi)
	vMid.ScaleVec(0.5, vMid)
	next.Pwi.AddScaledVec(s.Pwi, dt, vMid)

	cov, err := c.propagateCovariance(prev, wMid, prevM, curM, dt)
	if err != nil {
		return nil, err
	}

	return &Type{State: next, Cov: cov}, nil
}

// propagateCovariance integrates the error state covariance over dt.
func (c *CoreState) propagateCovariance(prev *Type, wMid mat.Vector, prevM, curM imu.Measurement, dt float64) (*mat.SymDense, error) {
	s := prev.State
	r := s.Qwi.RotationMatrix()

	aMid := mat.NewVecDense(3, nil)
	aMid.AddVec(prevM.Acc, curM.Acc)
	aMid.ScaleVec(0.5, aMid)
	aMid.SubVec(aMid, s.Ba)

	// continuous error state dynamics
	f := mat.NewDense(ErrDim, ErrDim, nil)
	matrix.SetBlock(f, OffPos, OffVel, matrix.Eye(3))

	rSkewA := &mat.Dense{}
	rSkewA.Mul(r, so3.Skew(aMid))
	rSkewA.Scale(-1, rSkewA)
	matrix.SetBlock(f, OffVel, OffAtt, rSkewA)

	negR := &mat.Dense{}
	negR.Scale(-1, r)
	matrix.SetBlock(f, OffVel, OffBa, negR)

	skewW := so3.Skew(wMid)
	skewW.Scale(-1, skewW)
	matrix.SetBlock(f, OffAtt, OffAtt, skewW)

	negEye := matrix.Eye(3)
	negEye.Scale(-1, negEye)
	matrix.SetBlock(f, OffAtt, OffBw, negEye)

	// discrete transition: I + F dt + F^2 dt^2 / 2
	phi := matrix.Eye(ErrDim)
	fdt := &mat.Dense{}
	fdt.Scale(dt, f)
	phi.Add(phi, fdt)

	f2 := &mat.Dense{}
	f2.Mul(f, f)
	f2.Scale(0.5*dt*dt, f2)
	phi.Add(phi, f2)

	// noise input mapping
	g := mat.NewDense(ErrDim, 12, nil)
	matrix.SetBlock(g, OffVel, 6, negR)
	matrix.SetBlock(g, OffAtt, 0, negEye)
	matrix.SetBlock(g, OffBw, 3, matrix.Eye(3))
	matrix.SetBlock(g, OffBa, 9, matrix.Eye(3))

	qc := matrix.DiagStds([]float64{
		c.nw.AtVec(0), c.nw.AtVec(1), c.nw.AtVec(2),
		c.nbw.AtVec(0), c.nbw.AtVec(1), c.nbw.AtVec(2),
		c.na.AtVec(0), c.na.AtVec(1), c.na.AtVec(2),
		c.nba.AtVec(0), c.nba.AtVec(1), c.nba.AtVec(2),
	})

	// Qd = Phi G Qc G' Phi' dt
	gq := &mat.Dense{}
	gq.Mul(g, qc)
	gqg := &mat.Dense{}
	gqg.Mul(gq, g.T())

	pg := &mat.Dense{}
	pg.Mul(phi, gqg)
	qd := &mat.Dense{}
	qd.Mul(pg, phi.T())
	qd.Scale(dt, qd)

	// P = Phi P Phi' + Qd
	pp := &mat.Dense{}
	pp.Mul(phi, prev.Cov)
	ppp := &mat.Dense{}
	ppp.Mul(pp, phi.T())
	ppp.Add(ppp, qd)

	return matrix.ToSym(ppp), nil
}
