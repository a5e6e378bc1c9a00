// Package imu provides the propagation sensor of the filter. IMU
// measurements drive time advancement of the nominal state and covariance,
// they are never fused through the Kalman update.
package imu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sensor is the IMU propagation sensor handle.
type Sensor struct {
	name string
}

// New creates a new IMU sensor handle with the given name.
func New(name string) *Sensor {
	return &Sensor{name: name}
}

// Name returns the sensor name.
func (s *Sensor) Name() string {
	return s.name
}

// String implements the Stringer interface.
func (s *Sensor) String() string {
	return fmt.Sprintf("IMU(%s)", s.name)
}

// Measurement is a single IMU reading: angular velocity in rad/s and
// specific force in m/s^2, both in the body frame.
type Measurement struct {
	// Gyro is the measured angular velocity
	Gyro *mat.VecDense
	// Acc is the measured specific force
	Acc *mat.VecDense
}

// NewMeasurement creates a new IMU measurement from raw gyroscope and
// accelerometer readings.
func NewMeasurement(gyro, acc []float64) Measurement {
	return Measurement{
		Gyro: mat.NewVecDense(3, append([]float64(nil), gyro...)),
		Acc:  mat.NewVecDense(3, append([]float64(nil), acc...)),
	}
}

// Clone returns a deep copy of the measurement.
func (m Measurement) Clone() Measurement {
	g := &mat.VecDense{}
	g.CloneFromVec(m.Gyro)

	a := &mat.VecDense{}
	a.CloneFromVec(m.Acc)

	return Measurement{Gyro: g, Acc: a}
}
