package pressure_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/matrix"
	"github.com/milosgajdos/go-eskf/sensors"
	"github.com/milosgajdos/go-eskf/sensors/pressure"
)

func newPrior() *core.Type {
	s := core.NewStateData()
	s.Pwi.SetVec(2, 5)

	cov := mat.NewSymDense(core.ErrDim, nil)
	for i := 0; i < core.ErrDim; i++ {
		cov.SetSym(i, i, 0.01)
	}

	return core.NewType(s, cov)
}

func newSensor(t *testing.T) *pressure.Sensor {
	s := pressure.New("Baro")
	if err := s.SetR(matrix.DiagStds([]float64{0.5})); err != nil {
		t.Fatalf("failed to set measurement noise: %v", err)
	}

	return s
}

func TestHeader(t *testing.T) {
	assert := assert.New(t)

	st := pressure.NewState()
	assert.Equal("t, p_ip_x, p_ip_y, p_ip_z", st.Header())

	ts, vals, err := eskf.ParseRow(st.ToRow(0.5))
	assert.NoError(err)
	assert.Equal(0.5, ts)
	assert.Len(vals, 3)
}

func TestPredictResidual(t *testing.T) {
	assert := assert.New(t)

	s := newSensor(t)
	prior := newPrior()

	calib, err := s.InitFromMeasurement(pressure.NewMeasurement(5), prior)
	assert.NoError(err)

	pred, err := s.Predict(prior.State, calib)
	assert.NoError(err)
	assert.InDelta(5.0, pred.(pressure.Measurement).Height, 1e-12)

	y, err := s.Residual(pressure.NewMeasurement(5.3), pred)
	assert.NoError(err)
	assert.Equal(1, y.Len())
	assert.InDelta(0.3, y.AtVec(0), 1e-12)
}

func TestUpdateAcceptsInlier(t *testing.T) {
	assert := assert.New(t)

	s := newSensor(t)
	prior := newPrior()

	calib, err := s.InitFromMeasurement(pressure.NewMeasurement(5), prior)
	assert.NoError(err)

	post, _, err := sensors.Update(s, pressure.NewMeasurement(5.2), prior, calib)
	assert.NoError(err)
	assert.True(post.State.Pwi.AtVec(2) > 5.0)
}

func TestUpdateRejectsOutlier(t *testing.T) {
	assert := assert.New(t)

	s := newSensor(t)
	prior := newPrior()

	calib, err := s.InitFromMeasurement(pressure.NewMeasurement(5), prior)
	assert.NoError(err)

	// far beyond 3 sigma and well outside the gate bound
	_, _, err = sensors.Update(s, pressure.NewMeasurement(500), prior, calib)
	assert.ErrorIs(err, eskf.ErrOutlierRejected)
}

func TestJacobianDims(t *testing.T) {
	assert := assert.New(t)

	s := newSensor(t)
	prior := newPrior()

	calib, err := s.InitFromMeasurement(pressure.NewMeasurement(5), prior)
	assert.NoError(err)

	h, err := s.Jacobian(prior.State, calib)
	assert.NoError(err)

	r, c := h.Dims()
	assert.Equal(1, r)
	assert.Equal(core.ErrDim+pressure.CovDim, c)
	assert.Equal(1.0, h.At(0, core.OffPos+2))
}
