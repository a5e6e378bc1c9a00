// Package so3 provides quaternion algebra and the SO(3) exponential and
// logarithmic maps used by the error-state filter.
package so3

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// smallAngle is the norm bound below which the Taylor
// expansions of the trigonometric maps are used.
const smallAngle = 1e-6

// Quat is a Hamilton quaternion with scalar part W.
type Quat struct {
	W, X, Y, Z float64
}

// NewQuat returns a quaternion with the given components.
func NewQuat(w, x, y, z float64) Quat {
	return Quat{W: w, X: x, Y: y, Z: z}
}

// Identity returns the identity quaternion.
func Identity() Quat {
	return Quat{W: 1}
}

// Mul returns the Hamilton product q*r.
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// Conj returns the conjugate of q. For a unit quaternion this is its inverse.
func (q Quat) Conj() Quat {
	return Quat{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Norm returns the Euclidean norm of q.
func (q Quat) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

// Normalize returns q scaled to unit norm.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 {
		return Identity()
	}
	return Quat{W: q.W / n, X: q.X / n, Y: q.Y / n, Z: q.Z / n}
}

// RotationMatrix returns the 3x3 rotation matrix of the unit quaternion q.
func (q Quat) RotationMatrix() *mat.Dense {
	w, x, y, z := q.W, q.X, q.Y, q.Z

	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Rotate rotates the 3-vector v by the unit quaternion q.
func (q Quat) Rotate(v mat.Vector) *mat.VecDense {
	out := mat.NewVecDense(3, nil)
	out.MulVec(q.RotationMatrix(), v)

	return out
}

// Exp maps the rotation vector theta onto the unit quaternion group.
// A Taylor expansion is used for rotations below the small angle bound.
func Exp(theta mat.Vector) Quat {
	tx, ty, tz := theta.AtVec(0), theta.AtVec(1), theta.AtVec(2)
	a := math.Sqrt(tx*tx + ty*ty + tz*tz)

	var w, s float64
	if a < smallAngle {
		// sin(a/2)/a and cos(a/2) expanded around zero
		w = 1.0 - a*a/8.0
		s = 0.5 - a*a/48.0
	} else {
		w = math.Cos(a / 2.0)
		s = math.Sin(a/2.0) / a
	}

	return Quat{W: w, X: s * tx, Y: s * ty, Z: s * tz}.Normalize()
}

// Log maps the quaternion q onto its rotation vector. Non-unit input is
// silently normalized. The result angle is minimal, i.e. within (-pi, pi].
func Log(q Quat) *mat.VecDense {
	q = q.Normalize()
	if q.W < 0 {
		q = Quat{W: -q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
	}

	vn := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z)

	var s float64
	if vn < smallAngle {
		// 2*atan2(vn, w)/vn expanded around zero
		s = 2.0/q.W - 2.0*vn*vn/(3.0*q.W*q.W*q.W)
	} else {
		s = 2.0 * math.Atan2(vn, q.W) / vn
	}

	return mat.NewVecDense(3, []float64{s * q.X, s * q.Y, s * q.Z})
}

// Skew returns the skew-symmetric cross product matrix of the 3-vector v.
func Skew(v mat.Vector) *mat.Dense {
	x, y, z := v.AtVec(0), v.AtVec(1), v.AtVec(2)

	return mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
}

// RightJacobian returns the right Jacobian of SO(3) at the rotation vector
// theta. It relates additive perturbations of theta to local tangent
// perturbations of Exp(theta).
func RightJacobian(theta mat.Vector) *mat.Dense {
	tx, ty, tz := theta.AtVec(0), theta.AtVec(1), theta.AtVec(2)
	a := math.Sqrt(tx*tx + ty*ty + tz*tz)

	sk := Skew(theta)
	sk2 := &mat.Dense{}
	sk2.Mul(sk, sk)

	var c1, c2 float64
	if a < smallAngle {
		c1 = 0.5 - a*a/24.0
		c2 = 1.0/6.0 - a*a/120.0
	} else {
		c1 = (1.0 - math.Cos(a)) / (a * a)
		c2 = (a - math.Sin(a)) / (a * a * a)
	}

	jr := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
	sk.Scale(c1, sk)
	jr.Sub(jr, sk)
	sk2.Scale(c2, sk2)
	jr.Add(jr, sk2)

	return jr
}
