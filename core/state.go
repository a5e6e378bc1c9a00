package core

import (
	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/so3"
)

const (
	// StateDim is the number of scalars in the nominal core state
	StateDim = 16
	// ErrDim is the dimension of the core error state
	ErrDim = 15
)

// Offsets of the core error state blocks [dp, dv, dtheta, dbw, dba].
const (
	OffPos = 0
	OffVel = 3
	OffAtt = 6
	OffBw  = 9
	OffBa  = 12
)

// StateData is the nominal core state: position, velocity and attitude of
// the IMU body frame in the navigation frame plus the IMU biases.
type StateData struct {
	// Pwi is the position of the IMU frame in the navigation frame
	Pwi *mat.VecDense
	// Vwi is the velocity of the IMU frame in the navigation frame
	Vwi *mat.VecDense
	// Qwi is the attitude of the IMU frame in the navigation frame
	Qwi so3.Quat
	// Bw is the gyroscope bias
	Bw *mat.VecDense
	// Ba is the accelerometer bias
	Ba *mat.VecDense
}

// NewStateData returns a zero nominal state with identity attitude.
func NewStateData() StateData {
	return StateData{
		Pwi: mat.NewVecDense(3, nil),
		Vwi: mat.NewVecDense(3, nil),
		Qwi: so3.Identity(),
		Bw:  mat.NewVecDense(3, nil),
		Ba:  mat.NewVecDense(3, nil),
	}
}

// Clone returns a deep copy of the state.
func (s StateData) Clone() StateData {
	c := NewStateData()
	c.Pwi.CopyVec(s.Pwi)
	c.Vwi.CopyVec(s.Vwi)
	c.Qwi = s.Qwi
	c.Bw.CopyVec(s.Bw)
	c.Ba.CopyVec(s.Ba)

	return c
}

// Boxplus applies the 15 dimensional error state correction dx to the
// nominal state and returns the corrected state. Euclidean blocks add,
// the attitude composes with Exp of the angle error. The attitude of the
// result is renormalized.
func (s StateData) Boxplus(dx mat.Vector) StateData {
	c := s.Clone()

	for i := 0; i < 3; i++ {
		c.Pwi.SetVec(i, c.Pwi.AtVec(i)+dx.AtVec(OffPos+i))
		c.Vwi.SetVec(i, c.Vwi.AtVec(i)+dx.AtVec(OffVel+i))
		c.Bw.SetVec(i, c.Bw.AtVec(i)+dx.AtVec(OffBw+i))
		c.Ba.SetVec(i, c.Ba.AtVec(i)+dx.AtVec(OffBa+i))
	}

	dtheta := mat.NewVecDense(3, []float64{
		dx.AtVec(OffAtt), dx.AtVec(OffAtt + 1), dx.AtVec(OffAtt + 2),
	})
	c.Qwi = c.Qwi.Mul(so3.Exp(dtheta)).Normalize()

	return c
}

// Header returns the CSV column names of the core state.
func (s StateData) Header() string {
	return "t, p_wi_x, p_wi_y, p_wi_z, v_wi_x, v_wi_y, v_wi_z, " +
		"q_wi_w, q_wi_x, q_wi_y, q_wi_z, " +
		"b_w_x, b_w_y, b_w_z, b_a_x, b_a_y, b_a_z"
}

// ToRow returns the CSV row of the core state at the given timestamp.
func (s StateData) ToRow(t float64) string {
	return eskf.Row(t,
		s.Pwi.AtVec(0), s.Pwi.AtVec(1), s.Pwi.AtVec(2),
		s.Vwi.AtVec(0), s.Vwi.AtVec(1), s.Vwi.AtVec(2),
		s.Qwi.W, s.Qwi.X, s.Qwi.Y, s.Qwi.Z,
		s.Bw.AtVec(0), s.Bw.AtVec(1), s.Bw.AtVec(2),
		s.Ba.AtVec(0), s.Ba.AtVec(1), s.Ba.AtVec(2))
}

// Type is a core state snapshot: nominal state plus error state covariance.
// Snapshots are stored in buffer entries and serve as repropagation
// restart points.
type Type struct {
	// State is the nominal core state
	State StateData
	// Cov is the 15 x 15 error state covariance
	Cov *mat.SymDense
}

// NewType returns a snapshot of the given nominal state and covariance.
// Both are deep copied.
func NewType(s StateData, cov mat.Symmetric) *Type {
	c := mat.NewSymDense(ErrDim, nil)
	if cov != nil {
		c.CopySym(cov)
	}

	return &Type{State: s.Clone(), Cov: c}
}

// Clone returns a deep copy of the snapshot.
func (t *Type) Clone() *Type {
	return NewType(t.State, t.Cov)
}
