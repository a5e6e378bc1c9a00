package sensors

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// DefaultAlpha is the default outlier gate confidence.
const DefaultAlpha = 0.95

// Gate is the chi-square outlier gate. Quantiles are computed once per
// measurement dimension and cached.
type Gate struct {
	alpha      float64
	thresholds map[int]float64
}

// NewGate returns a gate with the given confidence. An out of range alpha
// falls back to DefaultAlpha.
func NewGate(alpha float64) *Gate {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultAlpha
	}

	return &Gate{
		alpha:      alpha,
		thresholds: make(map[int]float64),
	}
}

// Alpha returns the gate confidence.
func (g *Gate) Alpha() float64 {
	return g.alpha
}

// SetAlpha changes the gate confidence and drops the cached quantiles.
// Out of range values are ignored.
func (g *Gate) SetAlpha(alpha float64) {
	if alpha <= 0 || alpha >= 1 {
		return
	}
	g.alpha = alpha
	g.thresholds = make(map[int]float64)
}

// Threshold returns the chi-square quantile for the given measurement
// dimension.
func (g *Gate) Threshold(dim int) float64 {
	if t, ok := g.thresholds[dim]; ok {
		return t
	}

	t := distuv.ChiSquared{K: float64(dim)}.Quantile(g.alpha)
	g.thresholds[dim] = t

	return t
}

// Exceeds reports whether the normalized innovation squared nis fails the
// gate for the given measurement dimension.
func (g *Gate) Exceeds(nis float64, dim int) bool {
	return nis > g.Threshold(dim)
}
