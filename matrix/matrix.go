// Package matrix provides block assembly and symmetrization helpers for the
// filter covariance algebra.
package matrix

import (
	mx "github.com/milosgajdos/matrix"
	"gonum.org/v1/gonum/mat"
)

// Eye returns the n x n identity matrix.
func Eye(n int) *mat.Dense {
	eye, _ := mx.NewDenseValIdentity(n, 1.0)

	return eye
}

// ToSym returns the symmetrized copy (m + m^T)/2 of the square matrix m.
// It panics if m is not square.
func ToSym(m mat.Matrix) *mat.SymDense {
	r, c := m.Dims()
	if r != c {
		panic("matrix: symmetrizing a non-square matrix")
	}

	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, 0.5*(m.At(i, j)+m.At(j, i)))
		}
	}

	return s
}

// SetBlock copies src into dst with its upper left corner at (i, j).
// It panics if the block does not fit.
func SetBlock(dst *mat.Dense, i, j int, src mat.Matrix) {
	r, c := src.Dims()
	dst.Slice(i, i+r, j, j+c).(*mat.Dense).Copy(src)
}

// BlockSym assembles the symmetric matrix
//
//	| a  x |
//	| x' b |
//
// from the symmetric diagonal blocks a, b and the cross block x.
// It panics if the block dimensions are inconsistent.
func BlockSym(a mat.Symmetric, x mat.Matrix, b mat.Symmetric) *mat.SymDense {
	na, nb := a.SymmetricDim(), b.SymmetricDim()
	xr, xc := x.Dims()
	if xr != na || xc != nb {
		panic("matrix: inconsistent cross block dimensions")
	}

	n := na + nb
	full := mat.NewDense(n, n, nil)
	SetBlock(full, 0, 0, a)
	SetBlock(full, 0, na, x)
	SetBlock(full, na, na, b)

	xt := &mat.Dense{}
	xt.CloneFrom(x.T())
	SetBlock(full, na, 0, xt)

	return ToSym(full)
}

// SymBlock extracts the square symmetric block of size n starting at
// diagonal position i from the symmetric matrix m.
func SymBlock(m mat.Symmetric, i, n int) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for r := 0; r < n; r++ {
		for c := r; c < n; c++ {
			s.SetSym(r, c, m.At(i+r, i+c))
		}
	}

	return s
}

// DenseBlock extracts the r x c block with upper left corner (i, j) from m.
func DenseBlock(m mat.Matrix, i, j, r, c int) *mat.Dense {
	d := mat.NewDense(r, c, nil)
	for ri := 0; ri < r; ri++ {
		for ci := 0; ci < c; ci++ {
			d.Set(ri, ci, m.At(i+ri, j+ci))
		}
	}

	return d
}

// DiagStds returns the diagonal covariance matrix built from the given
// per-axis standard deviations.
func DiagStds(stds []float64) *mat.SymDense {
	s := mat.NewSymDense(len(stds), nil)
	for i, v := range stds {
		s.SetSym(i, i, v*v)
	}

	return s
}
