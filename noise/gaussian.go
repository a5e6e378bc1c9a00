// Package noise provides noise sources used to corrupt simulated
// measurements and to model measurement noise in tests.
package noise

import (
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Gaussian is zero mean gaussian noise
type Gaussian struct {
	// dist is a multivariate normal distribution
	dist *distmv.Normal
	// cov is Gaussian covariance
	cov *mat.SymDense
}

// NewGaussian creates new Gaussian noise with the given covariance.
// It returns error if the normal distribution fails to be created.
func NewGaussian(cov mat.Symmetric) (*Gaussian, error) {
	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	dist, ok := newGaussianDist(c)
	if !ok {
		return nil, fmt.Errorf("failed to create new Gaussian noise")
	}

	return &Gaussian{
		dist: dist,
		cov:  c,
	}, nil
}

// NewGaussianDiag creates new Gaussian noise with a diagonal covariance
// built from the given per-axis standard deviations.
// It returns error if the normal distribution fails to be created.
func NewGaussianDiag(stds []float64) (*Gaussian, error) {
	cov := mat.NewSymDense(len(stds), nil)
	for i, v := range stds {
		cov.SetSym(i, i, v*v)
	}

	return NewGaussian(cov)
}

// Sample generates a sample from Gaussian noise and returns it.
func (g *Gaussian) Sample() mat.Vector {
	r := g.dist.Rand(nil)
	return mat.NewVecDense(len(r), r)
}

// Cov returns covariance matrix of Gaussian noise.
func (g *Gaussian) Cov() mat.Symmetric {
	cov := mat.NewSymDense(g.cov.SymmetricDim(), nil)
	cov.CopySym(g.cov)

	return cov
}

// Reset resets Gaussian noise.
// It returns error if it fails to reset the noise.
func (g *Gaussian) Reset() error {
	dist, ok := newGaussianDist(g.cov)
	if !ok {
		return fmt.Errorf("failed to reset Gaussian noise")
	}
	g.dist = dist

	return nil
}

func newGaussianDist(cov mat.Symmetric) (*distmv.Normal, bool) {
	seed := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	size := cov.SymmetricDim()

	return distmv.NewNormal(make([]float64, size), cov, seed)
}

// String implements the Stringer interface.
func (g *Gaussian) String() string {
	return fmt.Sprintf("Gaussian{\nCov=%v\n}", mat.Formatted(g.Cov(), mat.Prefix("    "), mat.Squeeze()))
}
