package attitude

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/so3"
)

func testCore() *core.Type {
	s := core.NewStateData()
	s.Qwi = so3.Exp(mat.NewVecDense(3, []float64{0, 0, math.Pi / 4}))

	return core.NewType(s, nil)
}

func TestPredictResidual(t *testing.T) {
	assert := assert.New(t)

	s := New("Att")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement(c.State.Qwi), c)
	assert.NoError(err)

	pred, err := s.Predict(c.State, calib)
	assert.NoError(err)

	// with derived extrinsics the prediction matches the measurement
	y, err := s.Residual(NewMeasurement(c.State.Qwi), pred)
	assert.NoError(err)
	for i := 0; i < 3; i++ {
		assert.InDelta(0.0, y.AtVec(i), 1e-12)
	}

	// a small yaw offset shows up in the residual
	dz := c.State.Qwi.Mul(so3.Exp(mat.NewVecDense(3, []float64{0, 0, 0.01})))
	y, err = s.Residual(NewMeasurement(dz), pred)
	assert.NoError(err)
	assert.InDelta(0.01, y.AtVec(2), 1e-6)
}

func TestJacobianDims(t *testing.T) {
	assert := assert.New(t)

	s := New("Att")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement(c.State.Qwi), c)
	assert.NoError(err)

	h, err := s.Jacobian(c.State, calib)
	assert.NoError(err)

	r, cc := h.Dims()
	assert.Equal(3, r)
	assert.Equal(core.ErrDim+CovDim, cc)
}

func TestBoxplus(t *testing.T) {
	assert := assert.New(t)

	s := New("Att")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement(c.State.Qwi), c)
	assert.NoError(err)

	got, err := s.Boxplus(calib, mat.NewVecDense(3, []float64{0, 0, 0.1}))
	assert.NoError(err)

	st := got.State.(State)
	assert.InDelta(1.0, st.Qip.Norm(), 1e-12)

	_, err = s.Boxplus(calib, mat.NewVecDense(2, nil))
	assert.Error(err)
}

func TestStateRow(t *testing.T) {
	assert := assert.New(t)

	st := NewState()
	assert.Equal("t, q_ip_w, q_ip_x, q_ip_y, q_ip_z", st.Header())

	_, vals, err := eskf.ParseRow(st.ToRow(1.0))
	assert.NoError(err)
	assert.Len(vals, 4)
	assert.Equal(1.0, vals[0])
}
