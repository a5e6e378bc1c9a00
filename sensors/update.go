package sensors

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	eskf "github.com/milosgajdos/go-eskf"
	"github.com/milosgajdos/go-eskf/core"
	"github.com/milosgajdos/go-eskf/matrix"
)

// Update runs the Kalman correction of sensor s for measurement z against
// the core snapshot prior and the sensor snapshot calib. On success it
// returns the corrected core and sensor snapshots, both freshly allocated.
//
// The innovation covariance is solved with a Cholesky factorization; a
// factorization failure returns eskf.ErrNumericFailure and leaves both
// inputs untouched. A measurement failing the chi-square gate returns
// eskf.ErrOutlierRejected, also without a state change.
func Update(s Updater, z any, prior *core.Type, calib Data) (*core.Type, Data, error) {
	m := s.MeasDim()
	k := s.CovDim()
	n := core.ErrDim + k

	pred, err := s.Predict(prior.State, calib)
	if err != nil {
		return nil, Data{}, fmt.Errorf("measurement prediction failed: %v", err)
	}

	y, err := s.Residual(z, pred)
	if err != nil {
		return nil, Data{}, fmt.Errorf("innovation failed: %v", err)
	}
	if y.Len() != m {
		return nil, Data{}, fmt.Errorf("invalid innovation dimension: %d", y.Len())
	}

	h, err := s.Jacobian(prior.State, calib)
	if err != nil {
		return nil, Data{}, fmt.Errorf("measurement Jacobian failed: %v", err)
	}
	if hr, hc := h.Dims(); hr != m || hc != n {
		return nil, Data{}, fmt.Errorf("invalid Jacobian dimensions: [%d x %d]", hr, hc)
	}

	p := matrix.BlockSym(prior.Cov, calib.CoreCross, calib.Cov)

	// S = H P H' + R
	ph := &mat.Dense{}
	ph.Mul(p, h.T())
	hph := &mat.Dense{}
	hph.Mul(h, ph)
	hph.Add(hph, s.R())
	sInn := matrix.ToSym(hph)

	var chol mat.Cholesky
	if ok := chol.Factorize(sInn); !ok {
		return nil, Data{}, eskf.ErrNumericFailure
	}

	// normalized innovation squared, gated against the chi-square quantile
	sy := mat.NewVecDense(m, nil)
	if err := chol.SolveVecTo(sy, y); err != nil {
		return nil, Data{}, eskf.ErrNumericFailure
	}
	nis := mat.Dot(y, sy)
	if s.Gate().Exceeds(nis, m) {
		return nil, Data{}, eskf.ErrOutlierRejected
	}

	// K = P H' S^-1
	kt := &mat.Dense{}
	if err := chol.SolveTo(kt, ph.T()); err != nil {
		return nil, Data{}, eskf.ErrNumericFailure
	}
	gain := &mat.Dense{}
	gain.CloneFrom(kt.T())

	// error correction, core boxplus and sensor boxplus
	dx := mat.NewVecDense(n, nil)
	dx.MulVec(gain, y)

	postState := prior.State.Boxplus(dx.SliceVec(0, core.ErrDim))
	postCalib, err := s.Boxplus(calib, dx.SliceVec(core.ErrDim, n))
	if err != nil {
		return nil, Data{}, fmt.Errorf("sensor state correction failed: %v", err)
	}

	// Joseph form: P = (I - KH) P (I - KH)' + K R K'
	a := matrix.Eye(n)
	kh := &mat.Dense{}
	kh.Mul(gain, h)
	a.Sub(a, kh)

	ap := &mat.Dense{}
	ap.Mul(a, p)
	apa := &mat.Dense{}
	apa.Mul(ap, a.T())

	kr := &mat.Dense{}
	kr.Mul(gain, s.R())
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())
	apa.Add(apa, krk)

	post := matrix.ToSym(apa)

	postCore := core.NewType(postState, matrix.SymBlock(post, 0, core.ErrDim))
	postCalib.Cov = matrix.SymBlock(post, core.ErrDim, k)
	postCalib.CoreCross = matrix.DenseBlock(post, 0, core.ErrDim, core.ErrDim, k)

	return postCore, postCalib, nil
}
