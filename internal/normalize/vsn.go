package normalize

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"github.com/pepdiff/pepdiff/internal/expr"
)

// vsnMethod is a variance-stabilizing transform of raw intensities.
// Each column gets an affine calibration (a, b) fitted so that the
// generalized log of the calibrated values tracks a common reference
// profile. The output is on the glog2 scale, which approaches log2 for
// large intensities.
type vsnMethod struct{}

func (vsnMethod) Name() string { return "vsn" }
func (vsnMethod) Raw() bool    { return true }

func (vsnMethod) Apply(s *expr.Set) error {
	nf, ns := s.NumFeatures(), s.NumSamples()
	if nf == 0 {
		return nil
	}

	// Start from a pure scale calibration per column.
	scale := make([]float64, ns)
	for j := 0; j < ns; j++ {
		m := quantileR7(observedColumn(s, j), 0.5)
		if math.IsNaN(m) || m <= 0 {
			m = 1
		}
		scale[j] = m
	}

	// Reference profile: row medians of the initial transform.
	ref := make([]float64, nf)
	for i := 0; i < nf; i++ {
		var t []float64
		for j := 0; j < ns; j++ {
			if s.Observed(i, j) {
				t = append(t, glog2(s.X.At(i, j)/scale[j]))
			}
		}
		ref[i] = quantileR7(t, 0.5)
	}

	for j := 0; j < ns; j++ {
		var rows []int
		for i := 0; i < nf; i++ {
			if s.Observed(i, j) && !math.IsNaN(ref[i]) {
				rows = append(rows, i)
			}
		}
		if len(rows) == 0 {
			continue
		}
		a, b := 0.0, scale[j]
		if len(rows) >= 3 {
			a, b = fitColumn(s, j, rows, ref, scale[j])
		}
		for _, i := range rows {
			s.X.Set(i, j, glog2((s.X.At(i, j)-a)/b))
		}
	}
	return nil
}

// fitColumn minimizes the distance between the calibrated column and
// the reference profile over the offset a and log scale. The initial
// calibration is kept when the optimizer fails.
func fitColumn(s *expr.Set, j int, rows []int, ref []float64, scale float64) (a, b float64) {
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			a, b := p[0], math.Exp(p[1])
			var ss float64
			for _, i := range rows {
				d := glog2((s.X.At(i, j)-a)/b) - ref[i]
				ss += d * d
			}
			return math.Sqrt(ss)
		},
	}
	pInit := []float64{0, math.Log(scale)}
	res, err := optimize.Minimize(problem, pInit, nil, nil)
	if err != nil {
		return 0, scale
	}
	return res.X[0], math.Exp(res.X[1])
}

// glog2 is the generalized log2, defined for all reals and tending to
// log2(2x) for large x.
func glog2(x float64) float64 {
	return math.Log2(x + math.Sqrt(x*x+1))
}
