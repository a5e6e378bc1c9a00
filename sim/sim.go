// Package sim generates synthetic sensor streams along an analytic
// trajectory. The streams are exact, optional gaussian noise corrupts the
// measurements, which makes the package the data source for the end to
// end tests.
package sim

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/buffer"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/noise"
	"github.com/milosgajdos/go-eskf/sensors/imu"
	"github.com/milosgajdos/go-eskf/sensors/pose"
	"github.com/milosgajdos/go-eskf/sensors/position"
	"github.com/milosgajdos/go-eskf/sensors/pressure"
	"github.com/milosgajdos/go-eskf/so3"
)

// gravity is the magnitude of the simulated gravity vector (0, 0, -g).
const gravity = 9.81

// Trajectory is a circular path of constant rate and height with the body
// yaw tracking the direction of travel. All sensor models are evaluated
// analytically, so the generated IMU stream is consistent with the
// generated reference poses.
type Trajectory struct {
	// Radius is the circle radius in m
	Radius float64
	// Rate is the angular rate around the circle in rad/s
	Rate float64
	// Height is the constant height of the path in m
	Height float64
}

// State returns the ground truth core state at time t. Biases are zero.
func (tr Trajectory) State(t float64) core.StateData {
	th := tr.Rate * t

	s := core.NewStateData()
	s.Pwi.SetVec(0, tr.Radius*math.Cos(th))
	s.Pwi.SetVec(1, tr.Radius*math.Sin(th))
	s.Pwi.SetVec(2, tr.Height)

	s.Vwi.SetVec(0, -tr.Radius*tr.Rate*math.Sin(th))
	s.Vwi.SetVec(1, tr.Radius*tr.Rate*math.Cos(th))

	s.Qwi = so3.Exp(mat.NewVecDense(3, []float64{0, 0, th}))

	return s
}

// IMU returns the exact IMU reading at time t: constant body yaw rate and
// the specific force of the centripetal acceleration with gravity
// compensation.
func (tr Trajectory) IMU(t float64) imu.Measurement {
	s := tr.State(t)
	th := tr.Rate * t

	// world frame acceleration minus gravity, rotated into the body frame
	aw := mat.NewVecDense(3, []float64{
		-tr.Radius * tr.Rate * tr.Rate * math.Cos(th),
		-tr.Radius * tr.Rate * tr.Rate * math.Sin(th),
		gravity,
	})

	f := mat.NewVecDense(3, nil)
	f.MulVec(s.Qwi.RotationMatrix().T(), aw)

	return imu.Measurement{
		Gyro: mat.NewVecDense(3, []float64{0, 0, tr.Rate}),
		Acc:  f,
	}
}

// Pose returns the exact pose measurement at time t for identity
// extrinsics.
func (tr Trajectory) Pose(t float64) pose.Measurement {
	s := tr.State(t)

	p := &mat.VecDense{}
	p.CloneFromVec(s.Pwi)

	return pose.Measurement{Pwp: p, Qwp: s.Qwi}
}

// Position returns the exact position measurement at time t for a zero
// lever arm.
func (tr Trajectory) Position(t float64) position.Measurement {
	s := tr.State(t)

	p := &mat.VecDense{}
	p.CloneFromVec(s.Pwi)

	return position.Measurement{Pwp: p}
}

// Pressure returns the exact height measurement at time t for a zero
// lever arm.
func (tr Trajectory) Pressure(t float64) pressure.Measurement {
	return pressure.Measurement{Height: tr.State(t).Pwi.AtVec(2)}
}

// IMUStream samples the IMU of the trajectory at interval dt over [t0, t1]
// and returns the measurement entries for the given sensor handle.
func IMUStream(tr Trajectory, s eskf.Sensor, t0, t1, dt float64) []buffer.Entry {
	var out []buffer.Entry
	for t := t0; t <= t1+dt/2; t += dt {
		out = append(out, buffer.Entry{
			Stamp:  buffer.StampFromSec(t),
			Sensor: s,
			Kind:   buffer.Measurement,
			Data:   tr.IMU(t),
		})
	}

	return out
}

// PoseStream samples the pose of the trajectory at interval dt over
// [t0, t1] and returns the measurement entries for the given sensor
// handle. A non-nil noise source corrupts position and orientation with a
// 6 dimensional sample.
func PoseStream(tr Trajectory, s eskf.Sensor, t0, t1, dt float64, n *noise.Gaussian) []buffer.Entry {
	var out []buffer.Entry
	for t := t0; t <= t1+dt/2; t += dt {
		m := tr.Pose(t)
		if n != nil {
			w := n.Sample()
			for i := 0; i < 3; i++ {
				m.Pwp.SetVec(i, m.Pwp.AtVec(i)+w.AtVec(i))
			}
			dq := so3.Exp(mat.NewVecDense(3, []float64{w.AtVec(3), w.AtVec(4), w.AtVec(5)}))
			m.Qwp = m.Qwp.Mul(dq).Normalize()
		}

		out = append(out, buffer.Entry{
			Stamp:  buffer.StampFromSec(t),
			Sensor: s,
			Kind:   buffer.Measurement,
			Data:   m,
		})
	}

	return out
}

// PressureStream samples the height of the trajectory at interval dt over
// [t0, t1] and returns the measurement entries for the given sensor
// handle. A non-nil noise source corrupts the height with a scalar sample.
func PressureStream(tr Trajectory, s eskf.Sensor, t0, t1, dt float64, n *noise.Gaussian) []buffer.Entry {
	var out []buffer.Entry
	for t := t0; t <= t1+dt/2; t += dt {
		m := tr.Pressure(t)
		if n != nil {
			m.Height += n.Sample().AtVec(0)
		}

		out = append(out, buffer.Entry{
			Stamp:  buffer.StampFromSec(t),
			Sensor: s,
			Kind:   buffer.Measurement,
			Data:   m,
		})
	}

	return out
}

// Merge combines measurement streams into a single slice sorted by stamp.
// The sort is stable, entries with equal stamps keep their relative order.
func Merge(streams ...[]buffer.Entry) []buffer.Entry {
	var out []buffer.Entry
	for _, s := range streams {
		out = append(out, s...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stamp.Before(out[j].Stamp)
	})

	return out
}
