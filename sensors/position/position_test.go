package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
)

func testCore() *core.Type {
	s := core.NewStateData()
	s.Pwi.SetVec(0, 2)

	return core.NewType(s, nil)
}

func TestPredictResidual(t *testing.T) {
	assert := assert.New(t)

	s := New("GPS")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement([]float64{2, 0, 0}), c)
	assert.NoError(err)

	pred, err := s.Predict(c.State, calib)
	assert.NoError(err)
	assert.InDelta(2.0, pred.(Measurement).Pwp.AtVec(0), 1e-12)

	y, err := s.Residual(NewMeasurement([]float64{2.5, 0, 0}), pred)
	assert.NoError(err)
	assert.InDelta(0.5, y.AtVec(0), 1e-12)

	_, err = s.Residual(42, pred)
	assert.Error(err)
}

func TestJacobianDims(t *testing.T) {
	assert := assert.New(t)

	s := New("GPS")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement([]float64{0, 0, 0}), c)
	assert.NoError(err)

	h, err := s.Jacobian(c.State, calib)
	assert.NoError(err)

	r, cc := h.Dims()
	assert.Equal(3, r)
	assert.Equal(core.ErrDim+CovDim, cc)

	for i := 0; i < 3; i++ {
		assert.Equal(1.0, h.At(i, core.OffPos+i))
	}
}

func TestBoxplus(t *testing.T) {
	assert := assert.New(t)

	s := New("GPS")
	c := testCore()

	calib, err := s.InitFromMeasurement(NewMeasurement([]float64{0, 0, 0}), c)
	assert.NoError(err)

	got, err := s.Boxplus(calib, mat.NewVecDense(3, []float64{0.1, -0.2, 0.3}))
	assert.NoError(err)

	st := got.State.(State)
	assert.InDelta(0.1, st.Pip.AtVec(0), 1e-12)
	assert.InDelta(-0.2, st.Pip.AtVec(1), 1e-12)
	assert.InDelta(0.3, st.Pip.AtVec(2), 1e-12)

	_, err = s.Boxplus(calib, mat.NewVecDense(2, nil))
	assert.Error(err)
}

func TestStateRow(t *testing.T) {
	assert := assert.New(t)

	st := NewState()
	assert.Equal("t, p_ip_x, p_ip_y, p_ip_z", st.Header())

	_, vals, err := eskf.ParseRow(st.ToRow(1.0))
	assert.NoError(err)
	assert.Len(vals, 3)
}
